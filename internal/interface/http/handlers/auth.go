package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

type userIDKey struct{}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// WithUserID attaches an authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UnauthorizedFunc writes the 401 response.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, err error)

// JWTAuth verifies HS256 bearer tokens whose subject is the user id.
// Issuance happens elsewhere.
type JWTAuth struct {
	secret       []byte
	issuer       string
	clock        timeutil.Clock
	unauthorized UnauthorizedFunc
}

// JWTAuthOption configures a JWTAuth.
type JWTAuthOption func(*JWTAuth)

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) JWTAuthOption {
	return func(a *JWTAuth) { a.issuer = iss }
}

// WithAuthClock overrides the time used for exp/nbf checks.
func WithAuthClock(c timeutil.Clock) JWTAuthOption {
	return func(a *JWTAuth) { a.clock = c }
}

// WithUnauthorized overrides the 401 writer.
func WithUnauthorized(fn UnauthorizedFunc) JWTAuthOption {
	return func(a *JWTAuth) { a.unauthorized = fn }
}

// NewJWTAuth creates a verifier. secret must not be empty.
func NewJWTAuth(secret string, opts ...JWTAuthOption) (*JWTAuth, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	a := &JWTAuth{
		secret: []byte(secret),
		clock:  timeutil.SystemClock{},
		unauthorized: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, `{"error":{"code":"unauthorized","message":"Authentication required"}}`, http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Verify parses the raw token and returns its subject.
func (a *JWTAuth) Verify(raw string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if !shared.ValidUserID(claims.Subject) {
		return "", fmt.Errorf("%w: invalid subject", shared.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// subject for UserIDFromContext.
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			a.unauthorized(w, r, fmt.Errorf("%w: missing bearer token", shared.ErrUnauthorized))
			return
		}

		userID, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			a.unauthorized(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Sign issues a token for userID. Tests and local tooling only.
func (a *JWTAuth) Sign(userID string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
