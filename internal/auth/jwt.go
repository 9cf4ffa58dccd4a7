package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// JWT handles access token generation and validation.
type JWT struct {
	secret []byte
	exp    time.Duration
	now    func() time.Time
}

// Claims carries the subject and the roles used for permission checks.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// User returns the principal the claims describe.
func (c *Claims) User() rbac.User {
	return rbac.User{ID: c.Subject, Roles: c.Roles}
}

// NewJWT returns a new JWT handler.
func NewJWT(secret string, exp time.Duration) *JWT {
	return &JWT{secret: []byte(secret), exp: exp, now: time.Now}
}

// TTL returns the lifetime of generated tokens.
func (j *JWT) TTL() time.Duration { return j.exp }

// Generate creates a signed token for u and returns it with its expiry.
func (j *JWT) Generate(u rbac.User) (string, time.Time, error) {
	if u.ID == "" {
		return "", time.Time{}, fmt.Errorf("empty subject")
	}
	now := j.now()
	exp := now.Add(j.exp)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: u.Roles,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

// Validate parses and validates the token returning its claims.
func (j *JWT) Validate(tok string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
