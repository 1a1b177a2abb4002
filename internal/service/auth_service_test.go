package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthService_TokenRoundTrip(t *testing.T) {
	svc := NewAuthService("s3cr3t")
	if !svc.Enabled() {
		t.Fatal("expected auth to be enabled with a secret")
	}

	token, err := svc.GenerateToken("grafana")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	sub, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if sub != "grafana" {
		t.Fatalf("subject = %q; want grafana", sub)
	}
}

func TestAuthService_Disabled(t *testing.T) {
	svc := NewAuthService("")
	if svc.Enabled() {
		t.Fatal("expected auth to be disabled without a secret")
	}
	if _, err := svc.GenerateToken("x"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("GenerateToken err = %v; want ErrAuthDisabled", err)
	}
	if _, err := svc.ParseToken("x"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("ParseToken err = %v; want ErrAuthDisabled", err)
	}
}

func TestAuthService_ParseToken_WrongSecret(t *testing.T) {
	token, err := NewAuthService("one").GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewAuthService("two").ParseToken(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestAuthService_ParseToken_Expired(t *testing.T) {
	svc := NewAuthService("s3cr3t")
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(tokenTTL + time.Minute) }
	if _, err := svc.ParseToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired; got %v", err)
	}
}

func TestAuthService_ParseToken_RejectsNoneAlg(t *testing.T) {
	svc := NewAuthService("s3cr3t")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "ops"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.ParseToken(signed); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}
