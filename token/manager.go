// Package token creates the signed identity assertions (id_tokens) the
// broker hands back to relying parties, and publishes the matching public
// key set.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// RS256 is the only signing algorithm this broker issues.
	RS256 = "RS256"

	defaultKeyBits = 2048
	defaultExpiry  = 10 * time.Minute
)

// Manager signs id_tokens with a single RSA key pair.
type Manager struct {
	key     *rsa.PrivateKey
	keyID   string
	issuer  string
	expiry  time.Duration
	nowTime func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExpiry sets the id_token lifetime.
func WithExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expiry = expiry
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a Manager with a freshly generated RSA key pair.
// Tokens signed with an ephemeral key become unverifiable on restart; use
// NewManagerFromPEM with persistent key material in production.
func NewManager(issuer string, options ...ManagerOption) (*Manager, error) {
	key, err := rsa.GenerateKey(rand.Reader, defaultKeyBits)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] generating RSA key")
	}
	return newManager(issuer, key, options...)
}

// NewManagerFromPEM creates a Manager from a PEM-encoded RSA private key.
func NewManagerFromPEM(issuer string, pemData []byte, options ...ManagerOption) (*Manager, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("[NewManagerFromPEM] no PEM block found")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Also accept PKCS#8, the form most key generators emit today.
		parsed, err8 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err8 != nil {
			return nil, errors.Wrap(err, "[NewManagerFromPEM] parsing private key")
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("[NewManagerFromPEM] private key is not RSA")
		}
		key = rsaKey
	}

	return newManager(issuer, key, options...)
}

func newManager(issuer string, key *rsa.PrivateKey, options ...ManagerOption) (*Manager, error) {
	if issuer == "" {
		return nil, errors.New("[newManager] issuer is required")
	}

	m := &Manager{
		key:     key,
		keyID:   keyIDFor(&key.PublicKey),
		issuer:  issuer,
		expiry:  defaultExpiry,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// CreateIDToken signs an identity assertion for the given RP and email.
// The nonce is echoed verbatim so the RP can bind the token to its request.
func (m *Manager) CreateIDToken(clientID, email, nonce string) (string, error) {
	now := m.nowTime()

	claims := jwt.MapClaims{
		"iss":            m.issuer,
		"aud":            clientID,
		"sub":            email,
		"email":          email,
		"email_verified": true,
		"iat":            now.Unix(),
		"exp":            now.Add(m.expiry).Unix(),
		"nonce":          nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.keyID

	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] signing token")
	}
	return signed, nil
}

// PublicKey returns the verification key for issued tokens.
func (m *Manager) PublicKey() *rsa.PublicKey {
	return &m.key.PublicKey
}

// keyIDFor derives a stable key ID from the public key material.
func keyIDFor(pub *rsa.PublicKey) string {
	hash := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(hash[:8])
}
