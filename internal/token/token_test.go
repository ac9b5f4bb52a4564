package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testIssuer(t *testing.T, accessTTL, refreshTTL time.Duration) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := NewIssuer(key, &key.PublicKey, accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func TestIssueAndParseAccess(t *testing.T) {
	issuer := testIssuer(t, 15*time.Minute, 24*time.Hour)
	now := time.Now()

	raw, err := issuer.IssueAccess(42, "alice@example.com", now)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := issuer.Parse(raw, TypeAccess)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	if id != 42 {
		t.Errorf("expected user id 42, got %d", id)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("expected email claim, got %q", claims.Email)
	}
	if claims.TokenType != TypeAccess {
		t.Errorf("expected access token type, got %q", claims.TokenType)
	}
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	issuer := testIssuer(t, 15*time.Minute, 24*time.Hour)

	raw, err := issuer.IssueAccess(1, "a@example.com", time.Now())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	if _, err := issuer.Parse(raw, TypeRefresh); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for type mismatch, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := testIssuer(t, time.Minute, 24*time.Hour)

	raw, err := issuer.IssueAccess(1, "a@example.com", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	if _, err := issuer.Parse(raw, TypeAccess); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestForeignKeyRejected(t *testing.T) {
	signer := testIssuer(t, time.Minute, 24*time.Hour)
	verifier := testIssuer(t, time.Minute, 24*time.Hour)

	raw, err := signer.IssueAccess(1, "a@example.com", time.Now())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	if _, err := verifier.Parse(raw, TypeAccess); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for foreign signature, got %v", err)
	}
}

func TestRefreshCarriesJTIAndExpiry(t *testing.T) {
	issuer := testIssuer(t, time.Minute, 24*time.Hour)
	now := time.Now()

	raw, jti, expiresAt, err := issuer.IssueRefresh(7, "b@example.com", now)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}
	if got, want := expiresAt.Sub(now), 24*time.Hour; got != want {
		t.Errorf("expected expiry in %v, got %v", want, got)
	}

	claims, err := issuer.Parse(raw, TypeRefresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.ID != jti {
		t.Errorf("expected jti %q in claims, got %q", jti, claims.ID)
	}
}

func TestVerifierOnlyIssuerCannotSign(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier, err := NewIssuer(nil, &key.PublicKey, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	if _, err := verifier.IssueAccess(1, "a@example.com", time.Now()); err == nil {
		t.Error("expected signing without private key to fail")
	}
}

func TestEnsureAndLoadKeys(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "keys", "private.pem")
	pubPath := filepath.Join(dir, "keys", "public.pem")

	if err := EnsureKeys(privPath, pubPath); err != nil {
		t.Fatalf("ensure keys: %v", err)
	}

	private, public, err := LoadKeys(privPath, pubPath)
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	if private == nil || public == nil {
		t.Fatal("expected both keys to load")
	}

	// A second call must leave the existing pair alone.
	if err := EnsureKeys(privPath, pubPath); err != nil {
		t.Fatalf("ensure keys again: %v", err)
	}
	reloaded, _, err := LoadKeys(privPath, pubPath)
	if err != nil {
		t.Fatalf("reload keys: %v", err)
	}
	if private.N.Cmp(reloaded.N) != 0 {
		t.Error("expected EnsureKeys to keep the existing key pair")
	}

	// Tokens signed with the loaded pair verify end to end.
	issuer, err := NewIssuer(private, public, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	raw, err := issuer.IssueAccess(3, "c@example.com", time.Now())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := issuer.Parse(raw, TypeAccess); err != nil {
		t.Errorf("parse access: %v", err)
	}
}
