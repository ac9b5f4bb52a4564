// Package auth implements the account and token lifecycle: signup, signin,
// access-token refresh and refresh-token revocation on logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskhub/internal/models"
	"taskhub/internal/storage/sqlite"
	"taskhub/internal/token"
)

const minPasswordLen = 8

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenRevoked is returned when a refresh token was blacklisted by
	// logout.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrValidation is returned for malformed signup input.
	ErrValidation = errors.New("validation failed")
)

// TokenPair bundles the access and refresh tokens handed out on signup and
// signin.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Service wires the store and the token issuer into the auth operations.
type Service struct {
	store  *sqlite.Store
	tokens *token.Issuer
	logger *slog.Logger
	now    func() time.Time
}

// New creates the auth service.
func New(store *sqlite.Store, tokens *token.Issuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, tokens: tokens, logger: logger, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Signup registers a new account and returns it with a fresh token pair.
// Malformed input yields ErrValidation; a taken email yields
// sqlite.ErrExists.
func (s *Service) Signup(ctx context.Context, email, password string) (models.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, TokenPair{}, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if len(password) < minPasswordLen {
		return models.User{}, TokenPair{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash))
	if err != nil {
		return models.User{}, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}

	s.logger.Info("user registered", slog.String("email", user.Email))
	return user, pair, nil
}

// Signin authenticates the credentials and returns the user with a fresh
// token pair.
func (s *Service) Signin(ctx context.Context, email, password string) (models.User, TokenPair, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return models.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return models.User{}, TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *Service) issuePair(ctx context.Context, user models.User) (TokenPair, error) {
	now := s.now()

	access, err := s.tokens.IssueAccess(user.ID, user.Email, now)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, jti, expiresAt, err := s.tokens.IssueRefresh(user.ID, user.Email, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, models.RefreshToken{JTI: jti, UserID: user.ID, ExpiresAt: expiresAt}); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh validates a refresh token and issues a new access token. The
// refresh token itself stays valid until logout or expiry.
func (s *Service) Refresh(ctx context.Context, refreshRaw string) (string, error) {
	claims, err := s.verifyRefresh(ctx, refreshRaw)
	if err != nil {
		return "", err
	}

	userID, err := claims.UserID()
	if err != nil {
		return "", err
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return "", token.ErrInvalid
		}
		return "", err
	}

	return s.tokens.IssueAccess(user.ID, user.Email, s.now())
}

// Logout blacklists the refresh token. Subsequent refresh attempts with it
// fail with ErrTokenRevoked.
func (s *Service) Logout(ctx context.Context, refreshRaw string) error {
	claims, err := s.verifyRefresh(ctx, refreshRaw)
	if err != nil {
		return err
	}
	if err := s.store.RevokeRefreshToken(ctx, claims.ID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return token.ErrInvalid
		}
		return err
	}
	s.logger.Info("refresh token revoked", slog.String("jti", claims.ID))
	return nil
}

// verifyRefresh checks signature, expiry, token type and revocation state.
func (s *Service) verifyRefresh(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := s.tokens.Parse(raw, token.TypeRefresh)
	if err != nil {
		return nil, err
	}

	record, err := s.store.RefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, token.ErrInvalid
		}
		return nil, err
	}
	if record.Revoked {
		return nil, ErrTokenRevoked
	}
	if !s.now().Before(record.ExpiresAt) {
		return nil, token.ErrInvalid
	}
	return claims, nil
}

// EnsureAdmin creates the bootstrap account when it does not exist yet. An
// existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := s.store.CreateUser(ctx, email, string(hash)); err != nil {
		return err
	}
	s.logger.Info("bootstrap account created", slog.String("email", strings.ToLower(email)))
	return nil
}
