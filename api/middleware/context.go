package middleware

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

// UserIDFromContext returns the authenticated user id, or "" before Auth ran.
func UserIDFromContext(ctx context.Context) string { return stringFrom(ctx, userIDKey) }

// RoleFromContext returns the caller's platform role.
func RoleFromContext(ctx context.Context) string { return stringFrom(ctx, roleKey) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withString(ctx, roleKey, role)
}
