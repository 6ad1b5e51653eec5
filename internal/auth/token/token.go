package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
)

// TTL is how long a session credential stays valid.
const TTL = 15 * 24 * time.Hour

var (
	ErrMissingSecret = errors.New("auth_jwt_secret_missing")
	ErrInvalidToken  = errors.New("invalid_token")
)

// Claims is the signed session payload.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session credentials.
type Issuer struct {
	secret []byte
	clock  clock.Clock
}

func NewIssuer(cfg config.Config, clk clock.Clock) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Issuer{secret: []byte(secret), clock: clk}, nil
}

// Issue returns a signed credential and its expiry.
func (i *Issuer) Issue(principalID, email string) (string, time.Time, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := i.clock.Now()
	expiresAt := now.Add(TTL)
	claims := Claims{
		ID:    principalID,
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates signature, algorithm and expiry. Any failure is
// ErrInvalidToken so callers can treat the credential as absent.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		claims.ID = claims.Subject
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
