package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskhub/internal/storage/sqlite"
	"taskhub/internal/token"
)

func testService(t *testing.T) *Service {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := token.NewIssuer(key, &key.PublicKey, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	return New(store, issuer, nil)
}

func TestSignupValidation(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"malformed email", "not-an-email", "longenough"},
		{"empty email", "", "longenough"},
		{"short password", "ok@example.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Signup(ctx, tc.email, tc.password)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "dup@example.com", "password123"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, _, err := svc.Signup(ctx, "DUP@example.com", "password123")
	if !errors.Is(err, sqlite.ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestSigninAndTokenPair(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	user, pair, err := svc.Signup(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected signup to return a full token pair")
	}
	if user.PasswordHash == "password123" {
		t.Fatal("password stored unhashed")
	}

	if _, _, err := svc.Signin(ctx, "alice@example.com", "password123"); err != nil {
		t.Errorf("signin with valid credentials: %v", err)
	}
	if _, _, err := svc.Signin(ctx, "alice@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := svc.Signin(ctx, "ghost@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, pair, err := svc.Signup(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	access, err := svc.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access == "" {
		t.Fatal("expected a new access token")
	}

	// The access token is not accepted in place of the refresh token.
	if _, err := svc.Refresh(ctx, pair.Access); !errors.Is(err, token.ErrInvalid) {
		t.Errorf("expected ErrInvalid for access token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, token.ErrInvalid) {
		t.Errorf("expected ErrInvalid for garbage, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, pair, err := svc.Signup(ctx, "carol@example.com", "password123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := svc.Logout(ctx, pair.Refresh); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Every refresh attempt after logout fails.
	for i := 0; i < 2; i++ {
		if _, err := svc.Refresh(ctx, pair.Refresh); !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("refresh %d after logout: expected ErrTokenRevoked, got %v", i, err)
		}
	}
}

func TestExpiredRefreshRejected(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, pair, err := svc.Signup(ctx, "dave@example.com", "password123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	// Move the clock past the refresh lifetime.
	svc.SetNow(func() time.Time { return time.Now().Add(8 * 24 * time.Hour) })

	if _, err := svc.Refresh(ctx, pair.Refresh); !errors.Is(err, token.ErrInvalid) {
		t.Errorf("expected ErrInvalid for expired refresh, got %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if err := svc.EnsureAdmin(ctx, "admin@example.com", "adminpass123"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if _, _, err := svc.Signin(ctx, "admin@example.com", "adminpass123"); err != nil {
		t.Errorf("admin signin: %v", err)
	}

	// Second call leaves the existing account alone.
	if err := svc.EnsureAdmin(ctx, "admin@example.com", "differentpass"); err != nil {
		t.Fatalf("ensure admin again: %v", err)
	}
	if _, _, err := svc.Signin(ctx, "admin@example.com", "adminpass123"); err != nil {
		t.Errorf("admin signin after re-ensure: %v", err)
	}

	// Unset credentials are a no-op.
	if err := svc.EnsureAdmin(ctx, "", ""); err != nil {
		t.Errorf("ensure admin with empty credentials: %v", err)
	}
}
