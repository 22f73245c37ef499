// Package oidc implements the provider bridge for OIDC-family identity
// providers (generic issuers, Portier IdPs and Google, which all speak the
// same protocol). It redirects the user to the provider and completes the
// attempt on the /callback endpoint.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/mailauth/broker/sessions"
	"github.com/mailauth/broker/webfinger"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	defaultSessionTTL = 15 * time.Minute

	bridgeName = "oidc"
)

// Bridge drives the auth-code exchange with a discovered provider.
type Bridge struct {
	sessions   sessions.Repo
	publicURL  string
	clientID   string
	sessionTTL time.Duration
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithSessionTTL sets how long a pending provider round-trip stays valid.
func WithSessionTTL(ttl time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.sessionTTL = ttl
	}
}

// NewBridge creates the OIDC bridge. The broker's own origin is used as
// client_id toward providers, mirroring how RPs identify to this broker.
func NewBridge(publicURL string, sessionRepo sessions.Repo, options ...BridgeOption) (*Bridge, error) {
	if publicURL == "" {
		return nil, errors.New("[NewBridge] publicURL is required")
	}
	if sessionRepo == nil {
		return nil, errors.New("[NewBridge] session repo is required")
	}

	parsed, err := url.Parse(publicURL)
	if err != nil || !parsed.IsAbs() {
		return nil, errors.New("[NewBridge] publicURL must be an absolute URL")
	}

	b := &Bridge{
		sessions:   sessionRepo,
		publicURL:  publicURL,
		clientID:   parsed.Scheme + "://" + parsed.Host,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

var _ broker.OIDCBridge = (*Bridge)(nil)

// Auth persists the session and redirects the user agent to the provider's
// authorization endpoint. Discovery or configuration failures are provider
// errors, so the caller can still degrade to the email loop.
func (b *Bridge) Auth(ctx context.Context, reqCtx *broker.RequestContext, email emailaddr.Address, link webfinger.Link) (*broker.Response, error) {
	session := reqCtx.Session
	if session == nil {
		return nil, broker.InternalError("oidc bridge invoked without a session", nil)
	}

	provider, err := gooidc.NewProvider(ctx, link.Href)
	if err != nil {
		return nil, broker.ProviderError("could not discover provider at "+link.Href, err)
	}

	// A fresh nonce for the provider leg; the RP's nonce stays opaque and
	// is only echoed in our own final assertion.
	providerNonce, err := randomToken()
	if err != nil {
		return nil, broker.InternalError("could not generate a provider nonce", err)
	}

	session.BridgeData["bridge"] = bridgeName
	session.BridgeData["issuer"] = link.Href
	session.BridgeData["provider_nonce"] = providerNonce
	if err := b.sessions.Upsert(ctx, session, b.sessionTTL); err != nil {
		return nil, broker.InternalError("could not save the session", err)
	}

	authURL := b.oauthConfig(provider).AuthCodeURL(session.ID,
		gooidc.Nonce(providerNonce),
		oauth2.SetAuthURLParam("login_hint", email.String()),
	)
	return &broker.Response{RedirectURL: authURL}, nil
}

// Callback completes the provider round-trip: it exchanges the code,
// verifies the provider's id_token, and checks that the asserted email is
// the one this attempt was started for. On success the session is consumed.
func (b *Bridge) Callback(ctx context.Context, session *sessions.Session, code string) error {
	if session.BridgeData["bridge"] != bridgeName {
		return broker.InputErrorf("session does not belong to a provider attempt")
	}
	issuer := session.BridgeData["issuer"]

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return broker.ProviderError("could not rediscover provider at "+issuer, err)
	}

	oauthToken, err := b.oauthConfig(provider).Exchange(ctx, code)
	if err != nil {
		return broker.ProviderError("code exchange with "+issuer+" failed", err)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return broker.ProviderErrorf("%s returned no id_token", issuer)
	}

	verifier := provider.Verifier(&gooidc.Config{ClientID: b.clientID})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return broker.ProviderError("id_token from "+issuer+" failed verification", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Nonce         string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return broker.ProviderError("id_token from "+issuer+" has malformed claims", err)
	}

	if claims.Nonce != session.BridgeData["provider_nonce"] {
		return broker.InputErrorf("nonce mismatch in the provider response")
	}

	asserted, err := emailaddr.Parse(claims.Email)
	if err != nil || asserted.String() != session.Email {
		return broker.ProviderErrorf("%s asserted a different email address", issuer)
	}
	if !claims.EmailVerified {
		return broker.ProviderErrorf("%s did not verify the email address", issuer)
	}

	if err := b.sessions.Delete(ctx, session.ID); err != nil {
		return broker.InternalError("could not consume the session", err)
	}
	return nil
}

func (b *Bridge) oauthConfig(provider *gooidc.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    b.clientID,
		Endpoint:    provider.Endpoint(),
		RedirectURL: b.publicURL + "/callback",
		Scopes:      []string{gooidc.ScopeOpenID, "email"},
	}
}

func randomToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
