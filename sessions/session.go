// Package sessions holds per-attempt authentication state. A session is
// created in memory when an attempt starts; whichever bridge proceeds with
// the attempt performs the durable write, so attempts that never reach a
// bridge leave no record in the store.
package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is the state of one authentication attempt.
type Session struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	// Email is the normalized address being authenticated.
	Email string `json:"email"`
	// Nonce is supplied by the RP, stored verbatim and echoed back in the
	// final assertion. It is never used for security decisions here.
	Nonce string `json:"nonce"`

	// Return parameters, carried so the completion handlers can deliver the
	// assertion (or a final error) to the RP.
	RedirectURI    string `json:"redirect_uri"`
	ResponseMode   string `json:"response_mode"`
	ResponseErrors bool   `json:"response_errors"`
	State          string `json:"state"`

	// BridgeData is opaque to the core; each bridge stores what it needs to
	// complete the attempt.
	BridgeData map[string]string `json:"bridge_data,omitempty"`

	Created time.Time `json:"created"`
}

// New creates an in-memory session for one attempt.
func New(clientID, email, nonce string, created time.Time) *Session {
	return &Session{
		ID:         uuid.New().String(),
		ClientID:   clientID,
		Email:      email,
		Nonce:      nonce,
		BridgeData: make(map[string]string),
		Created:    created,
	}
}
