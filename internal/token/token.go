// Package token issues and verifies the RS256-signed access and refresh
// tokens. Signing needs the private key; verification needs only the public
// key, so a verifier-only deployment never holds the signing secret.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the claims so a refresh token can never pass as an
// access token and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const issuerName = "taskhub"

// ErrInvalid is returned when a token fails parsing, its signature, its
// expiry, or its type check.
var ErrInvalid = errors.New("invalid token")

// Claims are the JWT claims for both token types.
type Claims struct {
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token subject %q: %w", c.Subject, ErrInvalid)
	}
	return id, nil
}

// Issuer signs and verifies tokens with a fixed RSA key pair and lifetimes.
type Issuer struct {
	private    *rsa.PrivateKey
	public     *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an Issuer. The private key may be nil for a
// verify-only issuer; signing then fails.
func NewIssuer(private *rsa.PrivateKey, public *rsa.PublicKey, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if public == nil {
		return nil, fmt.Errorf("public key is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}
	return &Issuer{private: private, public: public, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// IssueAccess signs a short-lived access token for the user.
func (i *Issuer) IssueAccess(userID int64, email string, now time.Time) (string, error) {
	return i.sign(userID, email, TypeAccess, uuid.NewString(), now, now.Add(i.accessTTL))
}

// IssueRefresh signs a refresh token and returns it with the jti and expiry
// the caller persists for revocation.
func (i *Issuer) IssueRefresh(userID int64, email string, now time.Time) (raw string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	expiresAt = now.Add(i.refreshTTL)
	raw, err = i.sign(userID, email, TypeRefresh, jti, now, expiresAt)
	return raw, jti, expiresAt, err
}

func (i *Issuer) sign(userID int64, email, tokenType, jti string, now, expiresAt time.Time) (string, error) {
	if i.private == nil {
		return "", fmt.Errorf("issuer has no private key")
	}
	claims := &Claims{
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   strconv.FormatInt(userID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(i.private)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry and type of a token and returns its
// claims. Any failure is reported as ErrInvalid.
func (i *Issuer) Parse(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.public, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithIssuer(issuerName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalid, wantType)
	}
	return claims, nil
}
