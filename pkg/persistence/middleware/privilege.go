package middleware

import (
	"context"
	"log/slog"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/scope"
)

// PrivilegeOption configures HistoryPrivilege.
type PrivilegeOption func(*privilegeMiddleware)

// WithResolver lets the checker see the entity behind a UID. Without it the
// checker is called with a nil entity.
func WithResolver(r ports.EntityResolver) PrivilegeOption {
	return func(m *privilegeMiddleware) {
		m.resolver = r
	}
}

// WithLogger sets the logger of history read failures.
func WithLogger(l *slog.Logger) PrivilegeOption {
	return func(m *privilegeMiddleware) {
		if l != nil {
			m.logger = l
		}
	}
}

type privilegeMiddleware struct {
	ports.StateStore
	checker    ports.PermissionChecker
	permission domain.Permission
	resolver   ports.EntityResolver
	logger     *slog.Logger
}

// HistoryPrivilege hides the audit trail from actors without permission: History
// returns an empty list instead of an error. A failing store degrades the same
// way, and the failure is logged. Every other call passes through.
func HistoryPrivilege(checker ports.PermissionChecker, permission domain.Permission, opts ...PrivilegeOption) Middleware {
	return func(next ports.StateStore) ports.StateStore {
		m := &privilegeMiddleware{
			StateStore: next,
			checker:    checker,
			permission: permission,
			logger:     logging.NewNop(),
		}
		for _, opt := range opts {
			opt(m)
		}
		return m
	}
}

func (m *privilegeMiddleware) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	var ent domain.Entity
	if m.resolver != nil {
		if e, err := m.resolver.Resolve(ctx, uid); err == nil {
			ent = e
		}
	}
	actor := scope.Actor(ctx)
	if !m.checker.CheckPermission(ctx, m.permission, actor, ent) {
		m.logger.Debug("History hidden", "uid", uid, "actor", actor, "permission", m.permission)
		return []domain.HistoryEntry{}, nil
	}

	history, err := m.StateStore.History(ctx, uid)
	if err != nil {
		m.logger.Warn("Failed to read history", "uid", uid, "err", err)
		return []domain.HistoryEntry{}, nil
	}
	return history, nil
}
