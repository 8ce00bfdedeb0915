package middleware

import (
	"context"

	"github.com/JonMunkholm/classifieds/internal/auth"
)

// principalHolder lets Logger, which runs first, see the principal that
// APIKeyAuth resolves further down the chain.
type principalHolder struct {
	id string
}

type holderKey struct{}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// withPrincipal stores p in ctx and reports it to the request logger.
func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	if h, ok := ctx.Value(holderKey{}).(*principalHolder); ok {
		h.id = p.ID
	}
	return auth.WithPrincipal(ctx, p)
}
