package ctxutil

import (
	"context"
	"slices"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

type ctxKey string

const (
	userIDKey    ctxKey = "user_id"
	rolesKey     ctxKey = "roles"
	requestIDKey ctxKey = "request_id"
)

// WithUserID stores the caller identity in the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx extracts the caller identity from the context.
// Returns an empty string and false if the value is missing, empty, or wrong type.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithRoles stores the caller's roles in the context.
func WithRoles(ctx context.Context, roles []domain.Role) context.Context {
	return context.WithValue(ctx, rolesKey, slices.Clone(roles))
}

// RolesFromCtx extracts the caller's roles. Returns nil if absent.
func RolesFromCtx(ctx context.Context) []domain.Role {
	roles, _ := ctx.Value(rolesKey).([]domain.Role)
	return roles
}

// IsAdminCtx reports whether the caller carries the admin role.
func IsAdminCtx(ctx context.Context) bool {
	return slices.ContainsFunc(RolesFromCtx(ctx), domain.Role.IsAdmin)
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx extracts the request ID from the context.
// Returns an empty string if absent.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
