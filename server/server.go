// Package server is the HTTP surface of the broker: the /auth endpoint, the
// bridge completion endpoints, and the static OIDC documents.
package server

import (
	"net/http"

	"github.com/mailauth/broker/bridges/email"
	"github.com/mailauth/broker/bridges/oidc"
	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/config"
	"github.com/mailauth/broker/sessions"
	"github.com/mailauth/broker/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "production")
	mux    *http.ServeMux
	routes []string

	config      config.Config
	auth        *broker.Service
	tokens      *token.Manager
	sessions    sessions.Repo
	oidcBridge  *oidc.Bridge
	emailBridge *email.Bridge
}

func New(
	cfg config.Config,
	authService *broker.Service,
	tokens *token.Manager,
	sessionRepo sessions.Repo,
	oidcBridge *oidc.Bridge,
	emailBridge *email.Bridge,
) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}
	if tokens == nil {
		return nil, errors.New("[Server New] token manager is required")
	}
	if sessionRepo == nil {
		return nil, errors.New("[Server New] session repo is required")
	}
	if oidcBridge == nil {
		return nil, errors.New("[Server New] oidc bridge is required")
	}
	if emailBridge == nil {
		return nil, errors.New("[Server New] email bridge is required")
	}

	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		auth:        authService,
		tokens:      tokens,
		sessions:    sessionRepo,
		oidcBridge:  oidcBridge,
		emailBridge: emailBridge,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered route")
	}
}
