package scopetoken

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

var postID = descriptor.ModelID{App: "blog", Model: "post"}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	s, err := New([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return s.WithClock(c.now), c
}

func TestSignVerify(t *testing.T) {
	s, _ := newService(t)
	scope := filter.Scope{Filters: map[string]any{"views.gte": "3"}, Search: "go", Order: []string{"-id"}}
	tok, exp, err := s.Sign(postID, scope, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	model, got, err := s.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if model != postID {
		t.Fatalf("unexpected model %v", model)
	}
	if diff := cmp.Diff(scope, got); diff != "" {
		t.Fatalf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestExpiredMatchesTampered(t *testing.T) {
	s, c := newService(t)
	tok, _, err := s.Sign(postID, filter.Scope{IDs: []any{float64(1)}}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	c.t = c.t.Add(2 * time.Second)
	_, _, expiredErr := s.Verify(tok)

	c.t = c.t.Add(-2 * time.Second)
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, _, tamperedErr := s.Verify(parts[0] + "." + parts[1] + "." + string(sig))

	if !errors.Is(expiredErr, ErrInvalidToken) || !errors.Is(tamperedErr, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v and %v", expiredErr, tamperedErr)
	}
	if expiredErr.Error() != tamperedErr.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", expiredErr, tamperedErr)
	}
}

func TestRejectsForeignKeyAndAlgorithm(t *testing.T) {
	s, _ := newService(t)
	other, _ := New([]byte("other-secret"))
	tok, _, _ := other.WithClock(s.now).Sign(postID, filter.Scope{}, time.Minute)
	if _, _, err := s.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign key accepted: %v", err)
	}

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: postID.String(), ExpiresAt: jwt.NewNumericDate(s.now().Add(time.Minute))}}
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, _, err := s.Verify(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none accepted: %v", err)
	}
	if _, _, err := s.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
