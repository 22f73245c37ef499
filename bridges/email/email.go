// Package email implements the email-loop bridge: the fallback
// authentication method that mails the user a one-time code and confirms it
// on the /confirm endpoint.
package email

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/mailauth/broker/sessions"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// codeAlphabet avoids characters users confuse when retyping.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	defaultSessionTTL = 15 * time.Minute

	bridgeName = "email"
)

// Mailer delivers a plain-text message to one recipient.
type Mailer interface {
	Send(to, subject, body string) error
}

// Bridge mails verification codes and confirms them.
type Bridge struct {
	sessions   sessions.Repo
	mailer     Mailer
	publicURL  string
	sessionTTL time.Duration
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithSessionTTL sets how long a mailed code stays valid.
func WithSessionTTL(ttl time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.sessionTTL = ttl
	}
}

// NewBridge creates the email-loop bridge.
func NewBridge(publicURL string, sessionRepo sessions.Repo, mailer Mailer, options ...BridgeOption) (*Bridge, error) {
	if publicURL == "" {
		return nil, errors.New("[NewBridge] publicURL is required")
	}
	if sessionRepo == nil {
		return nil, errors.New("[NewBridge] session repo is required")
	}
	if mailer == nil {
		return nil, errors.New("[NewBridge] mailer is required")
	}

	b := &Bridge{
		sessions:   sessionRepo,
		mailer:     mailer,
		publicURL:  publicURL,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

var _ broker.EmailBridge = (*Bridge)(nil)

// Auth starts the email loop for the attempt in reqCtx: it stores the
// session with a hash of a fresh one-time code, mails the code, and renders
// the confirmation page. This is the first durable write of the attempt.
func (b *Bridge) Auth(ctx context.Context, reqCtx *broker.RequestContext, email emailaddr.Address) (*broker.Response, error) {
	session := reqCtx.Session
	if session == nil {
		return nil, broker.InternalError("email bridge invoked without a session", nil)
	}

	code, err := generateCode()
	if err != nil {
		return nil, broker.InternalError("could not generate a verification code", err)
	}

	// Only the hash is stored; a leaked session store must not leak live
	// codes.
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, broker.InternalError("could not hash the verification code", err)
	}

	session.BridgeData["bridge"] = bridgeName
	session.BridgeData["code_hash"] = string(codeHash)
	if err := b.sessions.Upsert(ctx, session, b.sessionTTL); err != nil {
		return nil, broker.InternalError("could not save the session", err)
	}

	confirmURL := fmt.Sprintf("%s/confirm?session=%s&code=%s",
		b.publicURL, url.QueryEscape(session.ID), url.QueryEscape(code))

	body := fmt.Sprintf(
		"Finish logging in to %s.\n\nYour verification code is: %s\n\nOr open this link:\n%s\n\nIf you did not request this, you can ignore this message.\n",
		session.ClientID, code, confirmURL)

	if err := b.mailer.Send(email.String(), "Finish logging in to "+session.ClientID, body); err != nil {
		return nil, broker.InternalError("could not send mail to "+email.String(), err)
	}

	html, err := renderConfirmPrompt(confirmPromptData{
		Email:         email.String(),
		DisplayOrigin: session.ClientID,
		SessionID:     session.ID,
		FormAction:    b.publicURL + "/confirm",
	})
	if err != nil {
		return nil, broker.InternalError("could not render the confirmation page", err)
	}
	return &broker.Response{HTML: html}, nil
}

// Verify checks a submitted code against the stored hash. On success the
// session is consumed so a code can only be used once.
func (b *Bridge) Verify(ctx context.Context, session *sessions.Session, code string) error {
	if session.BridgeData["bridge"] != bridgeName {
		return broker.InputErrorf("session does not belong to the email loop")
	}

	codeHash := session.BridgeData["code_hash"]
	if bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(code)) != nil {
		return broker.InputErrorf("invalid verification code")
	}

	if err := b.sessions.Delete(ctx, session.ID); err != nil {
		return broker.InternalError("could not consume the session", err)
	}
	return nil
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[index.Int64()]
	}
	return string(code), nil
}
