package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mailauth/broker/token"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://broker.example"
	testClientID = "https://rp.example"
	testEmail    = "john@example.com"
	testNonce    = "random-nonce-value"
)

func TestCreateIDTokenClaims(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	m, err := token.NewManager(testIssuer,
		token.WithExpiry(10*time.Minute),
		token.WithNowTime(func() time.Time { return now }),
	)
	require.NoError(t, err)

	signed, err := m.CreateIDToken(testClientID, testEmail, testNonce)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		require.Equal(t, "RS256", tok.Method.Alg())
		require.NotEmpty(t, tok.Header["kid"])
		return m.PublicKey(), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, testIssuer, claims["iss"])
	require.Equal(t, testClientID, claims["aud"])
	require.Equal(t, testEmail, claims["sub"])
	require.Equal(t, testEmail, claims["email"])
	require.Equal(t, true, claims["email_verified"])
	require.Equal(t, testNonce, claims["nonce"])
	require.Equal(t, float64(now.Unix()), claims["iat"])
	require.Equal(t, float64(now.Add(10*time.Minute).Unix()), claims["exp"])
}

func TestJWKSMatchesSigningKey(t *testing.T) {
	m, err := token.NewManager(testIssuer)
	require.NoError(t, err)

	jwks := m.JWKS()
	require.Len(t, jwks.Keys, 1)

	key := jwks.Keys[0]
	require.Equal(t, "RSA", key.Kty)
	require.Equal(t, "sig", key.Use)
	require.Equal(t, token.RS256, key.Alg)
	require.NotEmpty(t, key.Kid)
	require.NotEmpty(t, key.N)
	require.NotEmpty(t, key.E)

	signed, err := m.CreateIDToken(testClientID, testEmail, testNonce)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		require.Equal(t, key.Kid, tok.Header["kid"])
		return m.PublicKey(), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}

func TestNewManagerRequiresIssuer(t *testing.T) {
	_, err := token.NewManager("")
	require.Error(t, err)
}
