package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	token, err := issuer.GenerateJWT("user-1")
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	sub, err := issuer.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("expected subject user-1, got %q", sub)
	}
}

func TestValidateJWTRejectsOtherSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret").GenerateJWT("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenIssuer("other").ValidateJWT(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	issuer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := issuer.GenerateJWT("user-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokenIssuer("secret").ValidateJWT(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPasswordHash("hunter2", hash) {
		t.Error("expected matching password to verify")
	}
	if CheckPasswordHash("hunter3", hash) {
		t.Error("expected wrong password to fail")
	}
}
