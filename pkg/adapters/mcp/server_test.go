package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/labflow"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/persistence/middleware"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, lab, err := labflow.OpenLab(context.Background(), lims.DemoFixture())
	require.NoError(t, err)
	return NewServer(eng, lab, WithVersion("test"))
}

func TestListTransitions(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.handleListTransitions(context.Background(), mcp.CallToolRequest{}, map[string]any{"uid": "AR-0001"})
	require.NoError(t, err)
	assert.Equal(t, "AR-0001", resp.UID)
	assert.Equal(t, lims.StateRegistered, resp.States[domain.AxisReview])

	var ids []domain.TransitionID
	for _, tr := range resp.Transitions {
		ids = append(ids, tr.ID)
	}
	assert.Contains(t, ids, lims.Cancel)
	assert.NotContains(t, ids, lims.NoSamplingWorkflow, "automatic transitions are not offered")

	_, err = s.handleListTransitions(context.Background(), mcp.CallToolRequest{}, map[string]any{"uid": "NOPE"})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = s.handleListTransitions(context.Background(), mcp.CallToolRequest{}, map[string]any{})
	assert.ErrorContains(t, err, "uid is required")
}

func TestPerformAndHistory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	out, err := s.handlePerform(ctx, mcp.CallToolRequest{}, map[string]any{
		"uid": "AR-0001", "transition": "no_sampling_workflow", "actor": "clerk", "comment": "via agent",
	})
	require.NoError(t, err)
	assert.True(t, out.Performed)
	assert.Equal(t, lims.StateSampleDue, out.States[domain.AxisReview])

	out, err = s.handlePerform(ctx, mcp.CallToolRequest{}, map[string]any{"uid": "AR-0001", "transition": "publish"})
	require.NoError(t, err, "rejections are results, not tool errors")
	assert.False(t, out.Performed)
	assert.NotEmpty(t, out.Reason)

	hist, err := s.handleHistory(ctx, mcp.CallToolRequest{}, map[string]any{"uid": "AR-0001"})
	require.NoError(t, err)
	require.NotEmpty(t, hist.Entries)
	assert.Equal(t, "clerk", hist.Entries[0].Actor)
	assert.Equal(t, "via agent", hist.Entries[0].Comment)
}

func TestHistory_AuditReaders(t *testing.T) {
	ctx := context.Background()
	eng, lab, err := labflow.OpenLab(ctx, lims.DemoFixture())
	require.NoError(t, err)
	auditors := ports.PermissionFunc(func(_ context.Context, p domain.Permission, actor string, _ domain.Entity) bool {
		return p != lims.PermViewHistory || actor == "auditor"
	})
	s := NewServer(eng, lab, WithAudit(middleware.HistoryPrivilege(auditors, lims.PermViewHistory, middleware.WithResolver(lab))(eng.Store())))

	out, err := s.handlePerform(ctx, mcp.CallToolRequest{}, map[string]any{
		"uid": "AR-0001", "transition": "no_sampling_workflow", "actor": "clerk",
	})
	require.NoError(t, err)
	require.True(t, out.Performed)

	hist, err := s.handleHistory(ctx, mcp.CallToolRequest{}, map[string]any{"uid": "AR-0001", "actor": "clerk"})
	require.NoError(t, err)
	assert.Empty(t, hist.Entries)

	hist, err = s.handleHistory(ctx, mcp.CallToolRequest{}, map[string]any{"uid": "AR-0001", "actor": "auditor"})
	require.NoError(t, err)
	assert.NotEmpty(t, hist.Entries)
}

func TestRegistryResource(t *testing.T) {
	s := newTestServer(t)

	data, err := s.registryJSON()
	require.NoError(t, err)

	var defs map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &defs))
	assert.Contains(t, defs, string(lims.TypeAnalysis))
	assert.Contains(t, defs, string(lims.TypeWorksheet))
}

func TestNewServer_RegistersCapabilities(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	raw := s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	for _, name := range []string{"list_transitions", "perform_transition", "get_history"} {
		assert.Contains(t, string(data), name)
	}
}
