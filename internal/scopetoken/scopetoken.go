// Package scopetoken signs validated scopes so clients can present them
// again later without the server keeping request state.
package scopetoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// ErrInvalidToken is the only error Verify returns. Bad signatures, expiry,
// foreign algorithms and malformed input are indistinguishable.
var ErrInvalidToken = errors.New("invalid scope token")

// DefaultTTL applies when Sign is called with a non-positive ttl.
const DefaultTTL = 15 * time.Minute

const issuer = "gcadmin/scope"

// Claims is the signed payload.
type Claims struct {
	jwt.RegisteredClaims
	Scope filter.Scope `json:"scope"`
}

// Service signs and verifies scope tokens with an HMAC key.
type Service struct {
	secret []byte
	now    func() time.Time
}

// New returns a Service keyed by secret.
func New(secret []byte) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("scope token secret is empty")
	}
	return &Service{secret: append([]byte(nil), secret...), now: time.Now}, nil
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Sign returns a token for scope on model valid for ttl, and its expiry.
func (s *Service) Sign(model descriptor.ModelID, scope filter.Scope, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   model.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Scope: scope,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

// Verify returns the model and scope carried by tok.
func (s *Service) Verify(tok string) (descriptor.ModelID, filter.Scope, error) {
	parsed, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return descriptor.ModelID{}, filter.Scope{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return descriptor.ModelID{}, filter.Scope{}, ErrInvalidToken
	}
	model, err := descriptor.ParseModelID(claims.Subject)
	if err != nil {
		return descriptor.ModelID{}, filter.Scope{}, ErrInvalidToken
	}
	return model, claims.Scope, nil
}
