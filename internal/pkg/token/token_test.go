package token

import (
	"testing"
	"time"
)

func TestIssuer_IssueAndParse(t *testing.T) {
	issuer := NewIssuer("test_secret", time.Hour, 30, false)

	tokenStr, err := issuer.Issue(42, "publisher")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokenStr == "" {
		t.Fatalf("expected non-empty token")
	}

	claims, err := issuer.Parse(tokenStr)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("expected subject 42, got %q", claims.Subject)
	}
	if claims.Role != "publisher" {
		t.Fatalf("expected role publisher, got %q", claims.Role)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry")
	}
}

func TestIssuer_RejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("test_secret", time.Hour, 30, false)
	other := NewIssuer("other_secret", time.Hour, 30, false)

	tokenStr, err := issuer.Issue(1, "user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Parse(tokenStr); err == nil {
		t.Fatalf("expected parse to fail with wrong secret")
	}
}

func TestIssuer_RejectsExpiredToken(t *testing.T) {
	issuer := &Issuer{secret: []byte("test_secret"), ttl: -time.Minute, cookieDays: 30}

	tokenStr, err := issuer.Issue(1, "user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(tokenStr); err == nil {
		t.Fatalf("expected parse to fail for expired token")
	}
}

func TestIssuer_CookieParams(t *testing.T) {
	issuer := NewIssuer("test_secret", time.Hour, 7, true)

	c := issuer.Cookie("abc")
	if c.Name != CookieName || c.Value != "abc" {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Fatalf("cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Fatalf("expected Secure cookie in production mode")
	}
	want := time.Now().Add(7 * 24 * time.Hour)
	if c.Expires.Before(want.Add(-time.Minute)) || c.Expires.After(want.Add(time.Minute)) {
		t.Fatalf("cookie expiry %v not near %v", c.Expires, want)
	}

	dev := NewIssuer("test_secret", time.Hour, 7, false)
	if dev.Cookie("abc").Secure {
		t.Fatalf("expected non-Secure cookie outside production mode")
	}
}
