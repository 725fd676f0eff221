package authn

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() *Claims {
	return &Claims{
		Email:  "dev@example.com",
		Name:   "Dev User",
		Groups: []string{"editors"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "sso.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	verifier := NewVerifier(testSecret, "sso.example.com")
	token := signToken(t, testSecret, validClaims())

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
	if claims.Email != "dev@example.com" {
		t.Fatalf("unexpected email: %q", claims.Email)
	}
	if len(claims.Groups) != 1 || claims.Groups[0] != "editors" {
		t.Fatalf("unexpected groups: %v", claims.Groups)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := NewVerifier(testSecret, "")
	token := signToken(t, "other-secret", validClaims())

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	verifier := NewVerifier(testSecret, "sso.example.com")
	claims := validClaims()
	claims.Issuer = "rogue.example.com"
	token := signToken(t, testSecret, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	verifier := NewVerifier(testSecret, "")
	claims := validClaims()
	claims.Subject = ""
	token := signToken(t, testSecret, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := NewVerifier(testSecret, "")
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signToken(t, testSecret, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	verifier := NewVerifier(testSecret, "")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := verifier.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
