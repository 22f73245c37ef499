package server

import (
	"net/http"

	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConfirmHandler completes the email loop. The mailed link arrives as a
// GET with session and code in the query; the code entry form POSTs the
// same parameters.
func (s *Server) ConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := requestParams(r)
		if err != nil {
			s.renderErrorPage(w, http.StatusBadRequest, "Could not parse the request.")
			return
		}

		sessionID := params.Get("session")
		code := params.Get("code")
		if sessionID == "" || code == "" {
			s.renderErrorPage(w, http.StatusBadRequest, "The confirmation link is incomplete.")
			return
		}

		session, err := s.sessions.Get(r.Context(), sessionID)
		if err != nil {
			s.completionSessionError(w, err)
			return
		}

		if err := s.emailBridge.Verify(r.Context(), session, code); err != nil {
			s.completionVerifyError(w, session, err)
			return
		}
		s.finishAuth(w, session)
	}
}

// CallbackHandler completes an attempt brokered through an upstream OIDC
// provider. The provider returns state (our session ID) and an
// authorization code, or error parameters if the user bailed out.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := requestParams(r)
		if err != nil {
			s.renderErrorPage(w, http.StatusBadRequest, "Could not parse the request.")
			return
		}

		sessionID := params.Get("state")
		if sessionID == "" {
			s.renderErrorPage(w, http.StatusBadRequest, "The provider response is incomplete.")
			return
		}

		session, err := s.sessions.Get(r.Context(), sessionID)
		if err != nil {
			s.completionSessionError(w, err)
			return
		}

		if providerErr := params.Get("error"); providerErr != "" {
			log.Warn().
				Str("session_id", session.ID).
				Str("error", providerErr).
				Str("error_description", params.Get("error_description")).
				Msg("provider returned an error")
			s.renderErrorPage(w, http.StatusBadRequest, "The identity provider rejected the sign-in.")
			return
		}

		code := params.Get("code")
		if code == "" {
			s.renderErrorPage(w, http.StatusBadRequest, "The provider response is incomplete.")
			return
		}

		if err := s.oidcBridge.Callback(r.Context(), session, code); err != nil {
			s.completionVerifyError(w, session, err)
			return
		}
		s.finishAuth(w, session)
	}
}

func (s *Server) completionSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessions.ErrNotFound) {
		s.renderErrorPage(w, http.StatusBadRequest, "This sign-in attempt has expired. Please start over.")
		return
	}
	log.Error().Err(err).Msg("session lookup failed")
	s.renderErrorPage(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

func (s *Server) completionVerifyError(w http.ResponseWriter, session *sessions.Session, err error) {
	kind := broker.KindOf(err)
	if kind == broker.KindInternal {
		log.Error().Err(err).Str("session_id", session.ID).Msg("completion failed")
		s.renderErrorPage(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	log.Warn().Err(err).Str("session_id", session.ID).Msg("completion rejected")
	s.renderErrorPage(w, errorStatusCode(kind), err.Error())
}
