package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) (*Issuer, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	issuer, err := NewIssuer(config.Config{AuthJWTSecret: "s3cret"}, clk)
	require.NoError(t, err)
	return issuer, clk
}

func TestIssueAndVerify(t *testing.T) {
	issuer, clk := newIssuer(t)

	raw, expiresAt, err := issuer.Issue("1087", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(TTL), expiresAt)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "1087", claims.ID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, clk := newIssuer(t)
	raw, _, err := issuer.Issue("1087", "")
	require.NoError(t, err)

	clk.Advance(TTL + time.Second)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSignatureAndAlgorithm(t *testing.T) {
	issuer, _ := newIssuer(t)
	other, err := NewIssuer(config.Config{AuthJWTSecret: "other"}, issuer.clock)
	require.NoError(t, err)

	raw, _, err := other.Issue("1087", "")
	require.NoError(t, err)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "1087"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
