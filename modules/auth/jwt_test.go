package auth

import (
	"context"
	"testing"
	"time"

	"github.com/Deepreo/cronkit/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider(&JWTConfig{
		Enabled:   true,
		SecretKey: "0123456789abcdef0123456789abcdef",
		TTL:       time.Minute,
		Issuer:    "cronkit",
	})
	require.NoError(t, err)
	return p
}

func TestJWTProvider(t *testing.T) {
	p := testProvider(t)

	token, err := p.Generate("user-1", "admin")
	require.NoError(t, err)

	claims, err := p.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	_, err = p.Validate(token + "x")
	require.Error(t, err)
	assert.Equal(t, errors.ERR_AUTH, errors.GetLevel(err))
}

func TestJWTConfigValidate(t *testing.T) {
	_, err := NewJWTProvider(&JWTConfig{Enabled: true, SecretKey: "short", TTL: time.Minute})
	assert.Error(t, err)

	assert.NoError(t, (&JWTConfig{}).Validate(), "disabled config is not validated")
}

func TestRequireBearer(t *testing.T) {
	p := testProvider(t)
	token, err := p.Generate("user-2")
	require.NoError(t, err)

	handler := RequireBearer(p)(func(ctx context.Context, req any) (any, error) {
		claims, ok := ClaimsFrom(ctx)
		require.True(t, ok)
		return claims.Subject, nil
	})

	res, err := handler(WithToken(context.Background(), "Bearer "+token), nil)
	require.NoError(t, err)
	assert.Equal(t, "user-2", res)

	_, err = handler(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "AUTH_MISSING_TOKEN", errors.GetCode(err))
}
