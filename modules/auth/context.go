package auth

import (
	"context"
	"strings"
)

type contextKey string

const (
	ClaimsKey contextKey = "auth_claims"
	TokenKey  contextKey = "auth_token"
)

// WithToken stores the raw Authorization header value.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// TokenFrom returns the bearer token without its scheme.
func TokenFrom(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(TokenKey).(string)
	if !ok || raw == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		raw = raw[len(prefix):]
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}
