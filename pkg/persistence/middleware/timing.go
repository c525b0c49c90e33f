package middleware

import (
	"context"
	"time"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

// Observer receives the latency of one store call.
type Observer func(operation string, elapsed time.Duration)

// Store operation names reported to the Observer.
const (
	OpGetState = "get_state"
	OpSetState = "set_state"
	OpHistory  = "history"
	OpReindex  = "reindex"
	OpDelete   = "delete"
	OpList     = "list"
)

type timingMiddleware struct {
	next    ports.StateStore
	observe Observer
	now     func() time.Time
}

// Timing reports the latency of every store call, failed ones included.
func Timing(observe Observer) Middleware {
	return func(next ports.StateStore) ports.StateStore {
		return &timingMiddleware{next: next, observe: observe, now: time.Now}
	}
}

func (m *timingMiddleware) track(op string) func() {
	start := m.now()
	return func() {
		m.observe(op, m.now().Sub(start))
	}
}

func (m *timingMiddleware) GetState(ctx context.Context, uid string, axis domain.Axis) (domain.StateID, error) {
	defer m.track(OpGetState)()
	return m.next.GetState(ctx, uid, axis)
}

func (m *timingMiddleware) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	defer m.track(OpSetState)()
	return m.next.SetState(ctx, uid, axis, state, entry)
}

func (m *timingMiddleware) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	defer m.track(OpHistory)()
	return m.next.History(ctx, uid)
}

func (m *timingMiddleware) Reindex(ctx context.Context, uid string, axes ...domain.Axis) error {
	defer m.track(OpReindex)()
	return m.next.Reindex(ctx, uid, axes...)
}

func (m *timingMiddleware) Delete(ctx context.Context, uid string) error {
	defer m.track(OpDelete)()
	return m.next.Delete(ctx, uid)
}

func (m *timingMiddleware) List(ctx context.Context) ([]string, error) {
	defer m.track(OpList)()
	return m.next.List(ctx)
}
