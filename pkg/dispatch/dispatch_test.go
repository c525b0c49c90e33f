package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/labflow/internal/testutils"
	"github.com/aretw0/labflow/pkg/dispatch"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	uid string
	t   domain.TransitionID
}

// recorder performs everything except the uids listed in refuse.
type recorder struct {
	ports.Workflow
	calls  []call
	refuse map[string]bool
	fail   map[string]error
}

func (r *recorder) Perform(ctx context.Context, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	r.calls = append(r.calls, call{e.UID(), t})
	if err := r.fail[e.UID()]; err != nil {
		return domain.Failure(domain.ReasonCommitFailed, err)
	}
	if r.refuse[e.UID()] {
		return domain.Rejection(domain.ReasonNotAllowed, "refused")
	}
	return domain.Performed()
}

func family() (*testutils.Node, *testutils.Node, *testutils.Node) {
	parent := testutils.NewNode("P", "parent")
	a := testutils.NewNode("A", "child")
	b := testutils.NewNode("B", "child")
	parent.Adopt("children", a, b)
	return parent, a, b
}

func TestCascade_CountsOnlyPerformed(t *testing.T) {
	parent, _, _ := family()
	wf := &recorder{refuse: map[string]bool{"B": true}}

	n, err := dispatch.Cascade(context.Background(), wf, parent, "children", "receive")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []call{{"A", "receive"}, {"B", "receive"}}, wf.calls)
}

func TestPromote_NoParent(t *testing.T) {
	parent, _, _ := family()
	wf := &recorder{}

	out := dispatch.Promote(context.Background(), wf, parent, "receive")

	assert.False(t, out.Performed)
	assert.Equal(t, domain.ReasonNoEntity, out.Reason)
	assert.Empty(t, wf.calls)
}

func TestFanout_ChildrenBeforeParent(t *testing.T) {
	root := testutils.NewNode("R", "root")
	parent, _, _ := family()
	root.Adopt("parents", parent)
	wf := &recorder{}

	hook := dispatch.Fanout{Transition: "receive", Children: []domain.Relation{"children"}, Parent: true}.Hook()
	require.NoError(t, hook(context.Background(), wf, parent))

	assert.Equal(t, []call{{"A", "receive"}, {"B", "receive"}, {"R", "receive"}}, wf.calls)
}

func TestFanout_ParentFailureIsReported(t *testing.T) {
	root := testutils.NewNode("R", "root")
	parent, _, _ := family()
	root.Adopt("parents", parent)
	boom := errors.New("boom")
	wf := &recorder{fail: map[string]error{"R": boom}}

	err := dispatch.Fanout{Transition: "receive", Parent: true}.Hook()(context.Background(), wf, parent)
	assert.ErrorIs(t, err, boom)
}

func TestFanout_ChildFailuresAreJoined(t *testing.T) {
	root := testutils.NewNode("R", "root")
	parent, _, _ := family()
	root.Adopt("parents", parent)
	down := errors.New("store down")
	wf := &recorder{fail: map[string]error{"A": down}, refuse: map[string]bool{"B": true}}

	err := dispatch.Fanout{Transition: "receive", Children: []domain.Relation{"children"}, Parent: true}.Hook()(context.Background(), wf, parent)

	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "receive on A")
	assert.NotContains(t, err.Error(), "B", "a rejected child is not an error")
	assert.Equal(t, []call{{"A", "receive"}, {"B", "receive"}, {"R", "receive"}}, wf.calls, "a failed child does not stop the fanout")
}

func TestSequence_JoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	ran := 0
	hook := dispatch.Sequence(
		func(context.Context, ports.Workflow, domain.Entity) error { ran++; return first },
		nil,
		func(context.Context, ports.Workflow, domain.Entity) error { ran++; return second },
	)

	err := hook(context.Background(), &recorder{}, testutils.NewNode("X", "x"))
	assert.Equal(t, 2, ran)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}
