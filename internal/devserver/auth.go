package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid or expired token")

// tokenClaims is the payload of issued access tokens. The client reads the
// identity from the top-level email and role claims.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	Email string
	Role  string
}

type identityKey struct{}

func issueToken(acc Account, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: acc.Email,
		Role:  acc.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(raw, secret string, now func() time.Time) (*tokenClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// authMiddleware rejects requests without a valid Bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Warnf("missing Authorization header: %s %s", r.Method, r.URL.Path)
			writeJSONError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		raw, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || raw == "" {
			writeJSONError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := parseToken(raw, s.cfg.JWTSecret, s.now)
		if err != nil {
			s.logger.Warnf("rejected token: %v", err)
			writeJSONError(w, http.StatusUnauthorized, "Token has expired or is invalid")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, Identity{Email: claims.Email, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller stored by authMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
