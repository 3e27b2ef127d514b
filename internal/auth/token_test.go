package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewClaims(499245, "asha@example.org", "CO Full Time", "jti-1", time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 499245 {
		t.Fatalf("UserID() = %d, %v", id, err)
	}
	if claims.Email != "asha@example.org" || claims.Role != "CO Full Time" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewClaims(1, "a@b.c", "CXO", "jti-1", time.Now().Add(-2*time.Hour), time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), NewClaims(1, "a@b.c", "CXO", "jti-1", time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	cases := map[string]string{
		"wrong secret": issued,
		"garbage":      "not.a.token",
		"truncated":    issued[:strings.LastIndex(issued, ".")],
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken([]byte("other"), token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatal("hash should be deterministic and distinct")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("expected hex sha256")
	}
}
