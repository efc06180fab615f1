package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifySessionToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.IssueSessionToken(123456789)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	key, err := svc.VerifySessionToken(token)
	if err != nil {
		t.Fatalf("VerifySessionToken: %v", err)
	}
	if key != 123456789 {
		t.Fatalf("want auth key 123456789, got %d", key)
	}
}

func TestVerifySessionTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, err := issuer.IssueSessionToken(42)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	if _, err := verifier.VerifySessionToken(token); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerifySessionTokenRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", time.Millisecond)
	token, err := svc.IssueSessionToken(1)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.VerifySessionToken(token); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerifySessionTokenRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", 0)
	if _, err := svc.VerifySessionToken("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestConstantTimeVerifier(t *testing.T) {
	var v ConstantTimeVerifier
	if !v.Verify("abc123", "abc123") {
		t.Fatal("expected matching hashes to verify")
	}
	if v.Verify("abc123", "wrong") {
		t.Fatal("expected mismatched hashes to fail verification")
	}
	if v.Verify("", "") {
		t.Fatal("expected empty hash to fail verification")
	}
}
