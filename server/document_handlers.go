package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DiscoveryHandler serves the OpenID Connect discovery document. Relying
// parties use it to locate the authorization endpoint and signing keys.
func (s *Server) DiscoveryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetPublicURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuth,
			"jwks_uri":               baseURL + RouteKeys,

			"scopes_supported": []string{"openid", "email"},
			"claims_supported": []string{"iss", "aud", "exp", "iat", "email"},

			// The broker only issues id_tokens directly, implicit style.
			"response_types_supported":              []string{"id_token"},
			"response_modes_supported":              []string{"form_post", "fragment"},
			"grant_types_supported":                 []string{"implicit"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}

		writeCachedJSON(w, resp, s.config.GetDiscoveryTTL())
	}
}

// KeysHandler serves the broker's public signing keys as a JWK set.
func (s *Server) KeysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCachedJSON(w, s.tokens.JWKS(), s.config.GetKeysTTL())
	}
}

func writeCachedJSON(w http.ResponseWriter, body any, maxAge time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge/time.Second)))
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("encoding document response failed")
	}
}
