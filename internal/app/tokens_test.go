package app

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testJWTSecret, time.Hour)
	token, claims, err := issuer.Issue("u1", "+919876543210")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parsed, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.UserID() != "u1" || parsed.ID != claims.ID || parsed.Phone != "+919876543210" {
		t.Fatalf("unexpected claims %+v", parsed)
	}
	if r := parsed.Remaining(time.Now()); r <= 0 || r > time.Hour {
		t.Fatalf("unexpected remaining lifetime %v", r)
	}
}

func TestTokenRejections(t *testing.T) {
	issuer := NewTokenIssuer(testJWTSecret, time.Hour)
	token, _, _ := issuer.Issue("u1", "")

	other := NewTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour)
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected signature mismatch")
	}

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": tokenIssuer}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := NewTokenIssuer(testJWTSecret, time.Hour).Parse(none); err == nil {
		t.Fatal("expected alg none to be rejected")
	}
}
