package models

import "context"

type userContextKey struct{}

// WithUserId attaches the authenticated user id to a context.
func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userId)
}

// UserIdFromContext returns the authenticated user id, or "" if absent.
func UserIdFromContext(ctx context.Context) string {
	userId, _ := ctx.Value(userContextKey{}).(string)
	return userId
}
