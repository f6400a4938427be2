// Package auth issues and verifies the bearer tokens that identify link owners.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/serroba/qrlinks/internal/links"
)

// DefaultTokenTTL is the lifetime of tokens minted by Issue.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrEmptySecret  = errors.New("jwt secret must not be empty")
)

// Tokens signs and verifies HS256 tokens whose subject is the owner id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer and verifier for secret.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a token for owner.
func (t *Tokens) Issue(owner links.OwnerID) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	now := t.now()
	claims := &jwt.RegisteredClaims{
		Subject:   string(owner),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature and expiry and returns the owner the token was issued to.
func (t *Tokens) Verify(token string) (links.OwnerID, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return links.OwnerID(claims.Subject), nil
}

type ownerKey struct{}

// ContextWithOwner stores the authenticated owner in ctx.
func ContextWithOwner(ctx context.Context, owner links.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the authenticated owner, if any.
func OwnerFromContext(ctx context.Context) (links.OwnerID, bool) {
	owner, ok := ctx.Value(ownerKey{}).(links.OwnerID)

	return owner, ok && owner != ""
}
