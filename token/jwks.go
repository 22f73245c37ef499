package token

import (
	"encoding/base64"
	"math/big"
)

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig or enc
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
}

// JWKS returns the public half of the signing key material, in the form
// relying parties fetch to verify issued tokens.
func (m *Manager) JWKS() *JWKS {
	pub := m.PublicKey()
	return &JWKS{
		Keys: []JWK{{
			Kty: "RSA",
			Use: "sig",
			Kid: m.keyID,
			Alg: RS256,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
}
