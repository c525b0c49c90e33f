package ports

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
)

// EntityResolver finds entities by UID for front ends (HTTP, MCP, CLI).
// Returns domain.ErrEntityNotFound for unknown UIDs.
type EntityResolver interface {
	Resolve(ctx context.Context, uid string) (domain.Entity, error)
}
