package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken возвращается, когда токен не удаётся разобрать.
var ErrMalformedToken = errors.New("session: malformed token")

// Claims содержит поля токена, нужные клиенту.
type Claims struct {
	Email     string
	Role      Role
	ExpiresAt *time.Time
}

// Expired сообщает, истёк ли токен к моменту now. Токен без exp не истекает.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now)
}

// DecodeToken разбирает полезную нагрузку токена без проверки подписи:
// подпись проверяет сервер, клиенту нужны только email, роль и срок жизни.
func DecodeToken(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty", ErrMalformedToken)
	}
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: exp: %v", ErrMalformedToken, err)
	}
	claims := Claims{
		Email: identityField(mapClaims, "email"),
		Role:  Role(identityField(mapClaims, "role")),
	}
	if exp != nil {
		t := exp.Time
		claims.ExpiresAt = &t
	}
	if claims.Email == "" {
		return Claims{}, fmt.Errorf("%w: no subject", ErrMalformedToken)
	}
	return claims, nil
}

// identityField ищет поле сначала на верхнем уровне, затем в sub.
// sub бывает строкой (email) или объектом {email, role}.
func identityField(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	switch sub := claims["sub"].(type) {
	case string:
		if name == "email" {
			return strings.TrimSpace(sub)
		}
	case map[string]any:
		if v, ok := sub[name].(string); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
