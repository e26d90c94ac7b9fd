package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller: a POS device or an operator.
type Principal struct {
	DeviceID   string
	FestivalID string // empty for dev tokens and operators
	Role       string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
