package ports

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
)

// PermissionChecker decides whether actor holds permission on entity.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, permission domain.Permission, actor string, entity domain.Entity) bool
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(ctx context.Context, permission domain.Permission, actor string, entity domain.Entity) bool

func (f PermissionFunc) CheckPermission(ctx context.Context, permission domain.Permission, actor string, entity domain.Entity) bool {
	return f(ctx, permission, actor, entity)
}

// AllowAll grants every permission. It is the engine default.
var AllowAll PermissionChecker = PermissionFunc(func(context.Context, domain.Permission, string, domain.Entity) bool {
	return true
})
