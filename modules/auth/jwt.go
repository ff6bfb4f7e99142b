package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/Deepreo/cronkit/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of tokens issued by JWTProvider.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider issues and validates HS256 tokens.
type JWTProvider struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
}

func NewJWTProvider(cfg *JWTConfig) (*JWTProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTProvider{
		secretKey: []byte(cfg.SecretKey),
		ttl:       cfg.TTL,
		issuer:    cfg.Issuer,
	}, nil
}

func (p *JWTProvider) Generate(subject string, roles ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secretKey)
}

func (p *JWTProvider) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secretKey, nil
	}, jwt.WithIssuer(p.issuer))
	if err != nil {
		return nil, errors.AuthError(err).WithCode("AUTH_INVALID_TOKEN")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.AuthError(errors.New("invalid token")).WithCode("AUTH_INVALID_TOKEN")
	}
	return claims, nil
}

// RequireBearer rejects requests without a valid bearer token and stores
// the claims on the handler context.
func RequireBearer(p *JWTProvider) core.Middleware {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			token, ok := TokenFrom(ctx)
			if !ok {
				return nil, errors.AuthError(errors.New("missing bearer token")).WithCode("AUTH_MISSING_TOKEN")
			}
			claims, err := p.Validate(token)
			if err != nil {
				return nil, err
			}
			return next(WithClaims(ctx, claims), req)
		}
	}
}
