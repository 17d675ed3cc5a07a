package middleware

import (
	"context"

	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxAccessID  contextKey = "access_id"
)

// WithPrincipal seeds the context with the authenticated caller and the id of
// the session backing their token.
func WithPrincipal(ctx context.Context, principal policy.Principal, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPrincipal, principal)
	return context.WithValue(ctx, ctxAccessID, accessID)
}

func PrincipalFromContext(ctx context.Context) (policy.Principal, bool) {
	if ctx == nil {
		return policy.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(policy.Principal)
	return p, ok && p.UserID != uuid.Nil
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}
