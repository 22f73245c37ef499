package broker_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/broker/brokerfakes"
	"github.com/mailauth/broker/webfinger"
	"github.com/stretchr/testify/require"
)

const (
	testPublicURL   = "https://broker.example"
	testClientID    = "https://rp.example"
	testRedirectURI = "https://rp.example/callback"
	testNonce       = "random-nonce-value"
	testState       = "random-state-value"
	testEmail       = "john@example.com"
)

// testFixture holds all test dependencies
type testFixture struct {
	discoverer  *brokerfakes.FakeDiscoverer
	limiter     *brokerfakes.FakeAddrLimiter
	oidcBridge  *brokerfakes.FakeOIDCBridge
	emailBridge *brokerfakes.FakeEmailBridge
	service     *broker.Service
}

func setupTestFixture(t *testing.T, options ...broker.ServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{
		discoverer:  brokerfakes.NewFakeDiscoverer(),
		limiter:     &brokerfakes.FakeAddrLimiter{},
		oidcBridge:  &brokerfakes.FakeOIDCBridge{},
		emailBridge: &brokerfakes.FakeEmailBridge{},
	}
	f.oidcBridge.Response = &broker.Response{RedirectURL: "https://op.example/authorize"}
	f.emailBridge.Response = &broker.Response{HTML: "<p>confirmation code sent</p>"}

	service, err := broker.NewService(testPublicURL, broker.Deps{
		Discoverer: f.discoverer,
		Limiter:    f.limiter,
		OIDC:       f.oidcBridge,
		Email:      f.emailBridge,
	}, options...)
	require.NoError(t, err)

	f.service = service
	return f
}

func validParams() url.Values {
	return url.Values{
		"redirect_uri":  {testRedirectURI},
		"client_id":     {testClientID},
		"nonce":         {testNonce},
		"response_type": {"id_token"},
		"state":         {testState},
		"login_hint":    {testEmail},
	}
}

func newRequestContext(params url.Values) *broker.RequestContext {
	return &broker.RequestContext{Method: "GET", Params: params}
}

func requireKind(t *testing.T, err error, kind broker.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, broker.KindOf(err))
}

func TestAuthMissingRequiredParams(t *testing.T) {
	for _, name := range []string{"redirect_uri", "client_id", "nonce", "response_type"} {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t)

			params := validParams()
			params.Del(name)

			_, err := f.service.Auth(context.Background(), newRequestContext(params))
			requireKind(t, err, broker.KindInput)
			require.Contains(t, err.Error(), name)

			require.Zero(t, f.limiter.CallCount(), "no rate-limit call may happen")
			require.Zero(t, f.discoverer.CallCount(), "no network call may happen")
		})
	}
}

func TestAuthClientIDMustMatchRedirectOrigin(t *testing.T) {
	cases := []struct {
		name        string
		redirectURI string
		clientID    string
		wantErr     bool
	}{
		{"exact origin", "https://rp.example/callback", "https://rp.example", false},
		{"explicit default port elided", "https://rp.example:443/callback", "https://rp.example", false},
		{"non-default port kept", "https://rp.example:8443/callback", "https://rp.example:8443", false},
		{"different scheme", "http://rp.example/callback", "https://rp.example", true},
		{"different host", "https://rp.example/callback", "https://other.example", true},
		{"different port", "https://rp.example:8443/callback", "https://rp.example", true},
		{"path is not part of the origin", "https://rp.example/callback", "https://rp.example/callback", true},
		{"relative redirect_uri", "/callback", "https://rp.example", true},
		{"idn host matches its punycode origin", "https://bücher.example/callback", "https://xn--bcher-kva.example", false},
		{"idn host does not match the unicode form", "https://bücher.example/callback", "https://bücher.example", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t)

			params := validParams()
			params.Set("redirect_uri", tc.redirectURI)
			params.Set("client_id", tc.clientID)

			_, err := f.service.Auth(context.Background(), newRequestContext(params))
			if tc.wantErr {
				requireKind(t, err, broker.KindInput)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAuthResponseModeValidation(t *testing.T) {
	f := setupTestFixture(t)

	for _, mode := range []string{"query", "web_message", "FRAGMENT", "garbage"} {
		params := validParams()
		params.Set("response_mode", mode)
		_, err := f.service.Auth(context.Background(), newRequestContext(params))
		requireKind(t, err, broker.KindInput)
		require.Contains(t, err.Error(), "response_mode")
	}

	for _, mode := range []string{"fragment", "form_post"} {
		params := validParams()
		params.Set("response_mode", mode)
		_, err := f.service.Auth(context.Background(), newRequestContext(params))
		require.NoError(t, err, "response_mode %q must be accepted", mode)
	}
}

func TestAuthResponseErrorsValidation(t *testing.T) {
	f := setupTestFixture(t)

	for _, value := range []string{"yes", "1", "TRUE", ""} {
		params := validParams()
		params.Set("response_errors", value)
		_, err := f.service.Auth(context.Background(), newRequestContext(params))
		requireKind(t, err, broker.KindInput)
		require.Contains(t, err.Error(), "response_errors")
	}
}

func TestAuthResponseTypeMustBeIDToken(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Set("response_type", "code")

	_, err := f.service.Auth(context.Background(), newRequestContext(params))
	requireKind(t, err, broker.KindInput)
	require.Contains(t, err.Error(), "response_type")
}

func TestAuthBindsReturnChannelBeforeLaterFailures(t *testing.T) {
	f := setupTestFixture(t)

	// nonce is validated after the return channel is bound, so this Input
	// error must find the channel in place.
	params := validParams()
	params.Del("nonce")
	params.Set("response_mode", "form_post")

	reqCtx := newRequestContext(params)
	_, err := f.service.Auth(context.Background(), reqCtx)
	requireKind(t, err, broker.KindInput)

	rp := reqCtx.ReturnParams()
	require.NotNil(t, rp)
	require.Equal(t, testRedirectURI, rp.RedirectURI.String())
	require.Equal(t, broker.FormPostResponseMode, rp.ResponseMode)
	require.True(t, rp.ResponseErrors)
	require.Equal(t, testState, rp.State)
}

func TestAuthNoReturnChannelOnEarlyFailure(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Set("client_id", "https://other.example")

	reqCtx := newRequestContext(params)
	_, err := f.service.Auth(context.Background(), reqCtx)
	requireKind(t, err, broker.KindInput)
	require.Nil(t, reqCtx.ReturnParams(), "a failed origin check must not bind the channel")
}

func TestAuthOriginWhitelist(t *testing.T) {
	t.Run("whitelisted origin passes", func(t *testing.T) {
		f := setupTestFixture(t, broker.WithAllowedOrigins([]string{testClientID}))

		_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.NoError(t, err)
	})

	t.Run("unknown origin is rejected before the limiter", func(t *testing.T) {
		f := setupTestFixture(t, broker.WithAllowedOrigins([]string{"https://allowed.example"}))

		reqCtx := newRequestContext(validParams())
		_, err := f.service.Auth(context.Background(), reqCtx)
		requireKind(t, err, broker.KindInput)
		require.Contains(t, err.Error(), "whitelisted")

		require.Zero(t, f.limiter.CallCount(), "non-whitelisted origins must not probe rate-limit state")
		require.Zero(t, f.discoverer.CallCount())
		require.NotNil(t, reqCtx.ReturnParams(), "the whitelist failure must be redirectable")
	})
}

func TestAuthLoginPromptWithoutHint(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Del("login_hint")
	params.Set("custom_param", "custom-value")

	res, err := f.service.Auth(context.Background(), newRequestContext(params))
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Empty(t, res.RedirectURL)

	// Every original parameter, known or not, rides along for resubmission.
	require.Contains(t, res.HTML, `name="redirect_uri" value="`+testRedirectURI+`"`)
	require.Contains(t, res.HTML, `name="client_id" value="`+testClientID+`"`)
	require.Contains(t, res.HTML, `name="nonce" value="`+testNonce+`"`)
	require.Contains(t, res.HTML, `name="custom_param" value="custom-value"`)
	require.Contains(t, res.HTML, `action="`+testPublicURL+`/auth"`)

	require.Zero(t, f.limiter.CallCount(), "the prompt is terminal, no rate-limit check")
	require.Zero(t, f.discoverer.CallCount(), "the prompt is terminal, no discovery")
}

func TestAuthEmptyLoginHintShowsPrompt(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Set("login_hint", "")

	res, err := f.service.Auth(context.Background(), newRequestContext(params))
	require.NoError(t, err)
	require.Contains(t, res.HTML, "login_hint")
}

func TestAuthInvalidLoginHint(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Set("login_hint", "not-an-email")

	_, err := f.service.Auth(context.Background(), newRequestContext(params))
	requireKind(t, err, broker.KindInput)
	require.Contains(t, err.Error(), "login_hint")
	require.Zero(t, f.limiter.CallCount())
}

func TestAuthNormalizesEmailForAllStages(t *testing.T) {
	f := setupTestFixture(t)

	params := validParams()
	params.Set("login_hint", "John.Doe@EXAMPLE.com")

	reqCtx := newRequestContext(params)
	_, err := f.service.Auth(context.Background(), reqCtx)
	require.NoError(t, err)

	require.Equal(t, "john.doe@example.com", f.limiter.LastAddr())
	require.Equal(t, "john.doe@example.com", f.discoverer.LastEmail().String())
	require.Equal(t, "john.doe@example.com", reqCtx.Session.Email)
}

func TestAuthRateLimited(t *testing.T) {
	f := setupTestFixture(t)
	f.limiter.Blocked = true

	_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	requireKind(t, err, broker.KindRateLimited)

	require.Zero(t, f.discoverer.CallCount(), "rate-limited attempts never reach discovery")
	require.Zero(t, f.emailBridge.CallCount(), "rate limiting must never fall back")
}

func TestAuthLimiterStoreErrorPropagates(t *testing.T) {
	f := setupTestFixture(t)
	storeErr := errors.New("store unavailable")
	f.limiter.Err = storeErr

	_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	require.ErrorIs(t, err, storeErr)
	require.Zero(t, f.discoverer.CallCount())
	require.Zero(t, f.emailBridge.CallCount())
}

func TestAuthDispatchesToOIDCBridge(t *testing.T) {
	f := setupTestFixture(t)
	link := webfinger.Link{Rel: webfinger.RelOIDCIssuer, Href: "https://op.example"}
	f.discoverer.Links = []webfinger.Link{link}

	reqCtx := newRequestContext(validParams())
	res, err := f.service.Auth(context.Background(), reqCtx)
	require.NoError(t, err)
	require.Equal(t, f.oidcBridge.Response, res)

	require.Equal(t, 1, f.oidcBridge.CallCount())
	require.Equal(t, link, f.oidcBridge.LastLink())
	require.Equal(t, testEmail, f.oidcBridge.LastEmail().String())
	require.Zero(t, f.emailBridge.CallCount())

	session := reqCtx.Session
	require.NotNil(t, session)
	require.Equal(t, testClientID, session.ClientID)
	require.Equal(t, testEmail, session.Email)
	require.Equal(t, testNonce, session.Nonce)
	require.Equal(t, testRedirectURI, session.RedirectURI)
	require.Equal(t, testState, session.State)
}

func TestAuthPortierAndGoogleShareTheOIDCBridge(t *testing.T) {
	for _, rel := range []webfinger.Relation{webfinger.RelPortierIDP, webfinger.RelGoogleIDP} {
		f := setupTestFixture(t)
		f.discoverer.Links = []webfinger.Link{{Rel: rel, Href: "https://op.example"}}

		_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.NoError(t, err)
		require.Equal(t, 1, f.oidcBridge.CallCount(), "relation %s must use the OIDC bridge", rel)
	}
}

func TestAuthOnlyFirstLinkIsTried(t *testing.T) {
	f := setupTestFixture(t)
	f.discoverer.Links = []webfinger.Link{
		{Rel: "http://example.com/unsupported", Href: "https://first.example"},
		{Rel: webfinger.RelOIDCIssuer, Href: "https://second.example"},
	}

	res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	require.NoError(t, err)
	require.Equal(t, f.emailBridge.Response, res, "an unsupported first link falls back, later links are discarded")
	require.Zero(t, f.oidcBridge.CallCount())
}

func TestAuthEmptyDiscoveryFallsBackToEmailLoop(t *testing.T) {
	f := setupTestFixture(t)
	f.discoverer.Links = nil

	res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	require.NoError(t, err)
	require.Equal(t, f.emailBridge.Response, res)
	require.Equal(t, 1, f.emailBridge.CallCount())
	require.Equal(t, testEmail, f.emailBridge.LastEmail().String())
	require.Zero(t, f.oidcBridge.CallCount())
}

func TestAuthDiscoveryFailureFallsBackToEmailLoop(t *testing.T) {
	t.Run("classified provider error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.discoverer.Err = broker.ProviderErrorf("webfinger unreachable")

		res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.NoError(t, err)
		require.Equal(t, f.emailBridge.Response, res)
	})

	t.Run("plain network error classifies as provider", func(t *testing.T) {
		f := setupTestFixture(t)
		f.discoverer.Err = errors.New("connection refused")

		res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.NoError(t, err)
		require.Equal(t, f.emailBridge.Response, res)
	})
}

func TestAuthOIDCBridgeErrorClassification(t *testing.T) {
	t.Run("provider error falls back", func(t *testing.T) {
		f := setupTestFixture(t)
		f.discoverer.Links = []webfinger.Link{{Rel: webfinger.RelOIDCIssuer, Href: "https://op.example"}}
		f.oidcBridge.Response = nil
		f.oidcBridge.Err = broker.ProviderErrorf("provider exchange failed")

		res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.NoError(t, err)
		require.Equal(t, f.emailBridge.Response, res)
	})

	t.Run("input error propagates unchanged", func(t *testing.T) {
		f := setupTestFixture(t)
		f.discoverer.Links = []webfinger.Link{{Rel: webfinger.RelOIDCIssuer, Href: "https://op.example"}}
		f.oidcBridge.Response = nil
		inputErr := broker.InputErrorf("bad provider parameters")
		f.oidcBridge.Err = inputErr

		_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
		require.ErrorIs(t, err, inputErr)
		require.Zero(t, f.emailBridge.CallCount(), "input errors must never downgrade to the email loop")
	})
}

func TestAuthDiscoveryTimeoutDetachesAndFallsBack(t *testing.T) {
	f := setupTestFixture(t, broker.WithDiscoveryTimeout(30*time.Millisecond))
	f.discoverer.Delay = 250 * time.Millisecond
	f.discoverer.Links = []webfinger.Link{{Rel: webfinger.RelOIDCIssuer, Href: "https://op.example"}}

	started := time.Now()
	res, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	elapsed := time.Since(started)

	require.NoError(t, err)
	require.Equal(t, f.emailBridge.Response, res, "a timed-out discovery degrades to the email loop")
	require.Less(t, elapsed, 200*time.Millisecond, "the handler must not wait for the slow discovery")
	require.Zero(t, f.oidcBridge.CallCount(), "the detached result is never observed by the caller")

	// The losing branch is detached, not cancelled: it still runs to
	// completion in the background.
	select {
	case <-f.discoverer.Completed:
	case <-time.After(2 * time.Second):
		t.Fatal("detached discovery never completed")
	}
	require.Equal(t, 1, f.discoverer.CallCount())
}

func TestAuthEmailBridgeFailureIsFinal(t *testing.T) {
	f := setupTestFixture(t)
	f.discoverer.Links = nil
	f.emailBridge.Response = nil
	bridgeErr := broker.InternalError("could not send mail", errors.New("smtp down"))
	f.emailBridge.Err = bridgeErr

	_, err := f.service.Auth(context.Background(), newRequestContext(validParams()))
	require.ErrorIs(t, err, bridgeErr)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	deps := broker.Deps{
		Discoverer: brokerfakes.NewFakeDiscoverer(),
		Limiter:    &brokerfakes.FakeAddrLimiter{},
		OIDC:       &brokerfakes.FakeOIDCBridge{},
		Email:      &brokerfakes.FakeEmailBridge{},
	}

	_, err := broker.NewService("", deps)
	require.Error(t, err)

	broken := deps
	broken.Discoverer = nil
	_, err = broker.NewService(testPublicURL, broken)
	require.Error(t, err)

	broken = deps
	broken.Limiter = nil
	_, err = broker.NewService(testPublicURL, broken)
	require.Error(t, err)

	broken = deps
	broken.OIDC = nil
	_, err = broker.NewService(testPublicURL, broken)
	require.Error(t, err)

	broken = deps
	broken.Email = nil
	_, err = broker.NewService(testPublicURL, broken)
	require.Error(t, err)
}
