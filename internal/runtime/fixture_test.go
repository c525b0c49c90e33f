package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/labflow/internal/runtime"
	"github.com/aretw0/labflow/internal/testutils"
	"github.com/aretw0/labflow/pkg/adapters/memory"
	"github.com/aretw0/labflow/pkg/dispatch"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
	"github.com/stretchr/testify/require"
)

const (
	boxType  domain.EntityType = "box"
	itemType domain.EntityType = "item"
	items    domain.Relation   = "items"
)

func cancellation(et domain.EntityType) registry.Workflow {
	return registry.Workflow{
		EntityType: et,
		Axis:       domain.AxisCancellation,
		Initial:    domain.StateActive,
		Transitions: []domain.Transition{
			testutils.T("cancel", domain.StateCancelled, domain.StateActive),
			testutils.T("reinstate", domain.StateActive, domain.StateCancelled),
		},
	}
}

func fixtureRegistry() *registry.Registry {
	reg := registry.New()
	reg.MustRegister(
		registry.Workflow{
			EntityType: itemType,
			Axis:       domain.AxisReview,
			Initial:    "due",
			Transitions: []domain.Transition{
				testutils.T("receive", "received", "due"),
				testutils.T("touch", "due", "due"),
				testutils.T("submit", "submitted", "received"),
				{ID: "expire", To: "expired", From: []domain.StateID{"received"}, Trigger: domain.TriggerAutomatic},
			},
		},
		cancellation(itemType),
		registry.Workflow{
			EntityType: boxType,
			Axis:       domain.AxisReview,
			Initial:    "due",
			Transitions: []domain.Transition{
				testutils.T("receive", "received", "due"),
				{ID: "seal", To: "sealed", From: []domain.StateID{"received"}, Permission: "seal box"},
			},
		},
		cancellation(boxType),
	)
	return reg
}

// fixtureHooks wires the quorum: a box is received once all its active items are,
// items escalate their receive and a received box cascades it down.
func fixtureHooks(t *testing.T) *registry.Hooks {
	t.Helper()
	h := registry.NewHooks()
	require.NoError(t, h.RegisterGuard(boxType, "receive", func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		var active []domain.Entity
		for _, it := range e.Children(items) {
			if wf.IsActive(ctx, it) {
				active = append(active, it)
			}
		}
		if wf.IsAllowed(ctx, e, "receive", domain.GuardOptions{
			Dependencies:    active,
			TargetStatuses:  []domain.StateID{"received"},
			CheckAll:        true,
			SkipActionCheck: true,
		}) {
			return domain.Allow()
		}
		return domain.Deny("items not received")
	}))
	require.NoError(t, h.RegisterAfter(itemType, "receive", dispatch.Fanout{Transition: "receive", Parent: true}.Hook()))
	require.NoError(t, h.RegisterAfter(boxType, "receive", dispatch.Fanout{Transition: "receive", Children: []domain.Relation{items}}.Hook()))
	require.NoError(t, h.RegisterAfter(boxType, "cancel", dispatch.Fanout{Transition: "cancel", Children: []domain.Relation{items}}.Hook()))
	return h
}

type fixture struct {
	engine *runtime.Engine
	store  *memory.Store
	box    *testutils.Node
	items  []*testutils.Node
}

func newFixture(t *testing.T, n int, opts ...runtime.EngineOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	box := testutils.NewNode("BOX-1", boxType)
	f := &fixture{store: store, box: box}
	for i := 0; i < n; i++ {
		it := testutils.NewNode(string(rune('A'+i)), itemType)
		box.Adopt(items, it)
		f.items = append(f.items, it)
	}
	opts = append([]runtime.EngineOption{runtime.WithHooks(fixtureHooks(t))}, opts...)
	f.engine = runtime.NewEngine(fixtureRegistry(), store, opts...)
	return f
}

func (f *fixture) state(e domain.Entity) domain.StateID {
	return f.engine.State(context.Background(), e, domain.AxisReview)
}

// failingStore refuses every write.
type failingStore struct {
	*memory.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) SetState(context.Context, string, domain.Axis, domain.StateID, domain.HistoryEntry) error {
	return errDiskFull
}
