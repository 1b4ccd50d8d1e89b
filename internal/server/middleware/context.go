package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ContextKeyUserID      contextKey = "user_id"
	ContextKeyUserRole    contextKey = "role"
	ContextKeyRequestMeta contextKey = "request_meta"
)

// RequestMeta is the client provenance captured for every request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	v, ok := ctx.Value(ContextKeyRequestMeta).(RequestMeta)
	return v, ok
}

// WithUser returns ctx carrying an authenticated identity. Tests and the
// websocket path use it to build contexts without a token.
func WithUser(ctx context.Context, userID uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	return context.WithValue(ctx, ContextKeyUserRole, role)
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, ContextKeyRequestMeta, meta)
}
