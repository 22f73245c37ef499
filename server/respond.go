package server

import (
	"net/http"
	"net/url"

	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/sessions"
	"github.com/rs/zerolog/log"
)

// oauthErrorCode maps an error kind onto the OAuth error code the RP sees.
func oauthErrorCode(kind broker.ErrorKind) string {
	switch kind {
	case broker.KindInput:
		return "invalid_request"
	case broker.KindRateLimited:
		return "temporarily_unavailable"
	default:
		return "server_error"
	}
}

func errorStatusCode(kind broker.ErrorKind) int {
	switch kind {
	case broker.KindInput:
		return http.StatusBadRequest
	case broker.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError reports a failed attempt. When a validated return channel
// exists and the RP opted in with response_errors, client-caused failures
// are redirected to the RP as OAuth error parameters. Everything else gets
// a generic error page that never exposes the failure cause.
func (s *Server) respondError(w http.ResponseWriter, rp *broker.ReturnParams, err error) {
	kind := broker.KindOf(err)

	reportable := kind == broker.KindInput || kind == broker.KindRateLimited
	if rp != nil && rp.ResponseErrors && reportable {
		values := url.Values{}
		values.Set("error", oauthErrorCode(kind))
		values.Set("error_description", err.Error())
		if rp.State != "" {
			values.Set("state", rp.State)
		}
		s.deliverToRP(w, rp.RedirectURI.String(), rp.ResponseMode, values)
		return
	}

	if kind == broker.KindInternal {
		log.Error().Err(err).Msg("authentication attempt failed")
	}

	message := "Something went wrong. Please try again."
	if reportable {
		message = err.Error()
	}
	s.renderErrorPage(w, errorStatusCode(kind), message)
}

// deliverToRP hands response parameters to the relying party through the
// negotiated response mode.
func (s *Server) deliverToRP(w http.ResponseWriter, redirectURI string, mode broker.ResponseModeType, values url.Values) {
	if mode == broker.FormPostResponseMode {
		s.renderFormPost(w, redirectURI, values)
		return
	}
	w.Header().Set("Location", redirectURI+"#"+values.Encode())
	w.WriteHeader(http.StatusSeeOther)
}

// finishAuth mints the identity assertion for a completed attempt and
// delivers it through the return channel stored on the session.
func (s *Server) finishAuth(w http.ResponseWriter, session *sessions.Session) {
	idToken, err := s.tokens.CreateIDToken(session.ClientID, session.Email, session.Nonce)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("id_token signing failed")
		s.renderErrorPage(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	values := url.Values{}
	values.Set("id_token", idToken)
	if session.State != "" {
		values.Set("state", session.State)
	}
	s.deliverToRP(w, session.RedirectURI, broker.ResponseModeType(session.ResponseMode), values)
}
