// Package broker implements the per-request authentication orchestration:
// parameter validation, return-channel binding, rate limiting, session
// initiation, provider discovery raced against a timeout, bridge dispatch,
// and the fallback policy. The ordering of these stages is security
// relevant and must not be changed casually: validating before binding
// prevents redirects to unvalidated destinations, whitelisting before rate
// limiting keeps unknown origins from probing limiter state, and only
// provider-unavailability errors may degrade to the email loop.
package broker

import (
	"context"
	"slices"
	"time"

	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/mailauth/broker/sessions"
	"github.com/mailauth/broker/webfinger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultDiscoveryTimeout = 5 * time.Second

// Discoverer finds candidate provider endpoints for an email's domain.
type Discoverer interface {
	Query(ctx context.Context, email emailaddr.Address) ([]webfinger.Link, error)
}

// AddrLimiter throttles attempts per normalized email address.
type AddrLimiter interface {
	Check(ctx context.Context, addr string) (bool, error)
}

// OIDCBridge authenticates through a discovered OIDC-family provider. The
// bridge owns all further protocol exchange and the durable session write.
type OIDCBridge interface {
	Auth(ctx context.Context, reqCtx *RequestContext, email emailaddr.Address, link webfinger.Link) (*Response, error)
}

// EmailBridge authenticates by mailing the user a verification code.
type EmailBridge interface {
	Auth(ctx context.Context, reqCtx *RequestContext, email emailaddr.Address) (*Response, error)
}

// Deps holds the external collaborators of the Service.
type Deps struct {
	Discoverer Discoverer
	Limiter    AddrLimiter
	OIDC       OIDCBridge
	Email      EmailBridge
}

// Service orchestrates one authentication attempt per call. All fields are
// read-only after construction, so a single instance serves concurrent
// requests.
type Service struct {
	deps             Deps
	publicURL        string
	allowedOrigins   []string // nil means no whitelist
	discoveryTimeout time.Duration
	nowTime          func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithAllowedOrigins restricts client_id to the given origins. A nil slice
// leaves all origins allowed.
func WithAllowedOrigins(origins []string) ServiceOption {
	return func(s *Service) {
		s.allowedOrigins = origins
	}
}

// WithDiscoveryTimeout overrides the discovery deadline (primarily for testing).
func WithDiscoveryTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.discoveryTimeout = timeout
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(publicURL string, deps Deps, options ...ServiceOption) (*Service, error) {
	if publicURL == "" {
		return nil, errors.New("[NewService] publicURL is required")
	}
	if deps.Discoverer == nil {
		return nil, errors.New("[NewService] Discoverer is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("[NewService] Limiter is required")
	}
	if deps.OIDC == nil {
		return nil, errors.New("[NewService] OIDC bridge is required")
	}
	if deps.Email == nil {
		return nil, errors.New("[NewService] Email bridge is required")
	}

	service := &Service{
		deps:             deps,
		publicURL:        publicURL,
		discoveryTimeout: defaultDiscoveryTimeout,
		nowTime:          time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// Auth handles one authentication request from an RP. On success the
// returned Response is either the interactive email prompt (no login_hint)
// or whatever the winning bridge produced. On failure the error carries an
// ErrorKind; if reqCtx has a bound return channel the caller reports Input
// and RateLimited errors by redirecting to the RP.
func (s *Service) Auth(ctx context.Context, reqCtx *RequestContext) (*Response, error) {
	params := reqCtx.Params

	redirectURIRaw, inputErr := requireParam(params, "redirect_uri")
	if inputErr != nil {
		return nil, inputErr
	}
	clientID, inputErr := requireParam(params, "client_id")
	if inputErr != nil {
		return nil, inputErr
	}

	redirectURI, inputErr := parseRedirectURI(redirectURIRaw, "redirect_uri")
	if inputErr != nil {
		return nil, inputErr
	}

	origin, inputErr := asciiOrigin(redirectURI)
	if inputErr != nil {
		return nil, inputErr
	}
	if clientID != origin {
		return nil, InputErrorf("the client_id must be the origin of the redirect_uri")
	}

	responseMode, inputErr := parseResponseMode(paramOrDefault(params, "response_mode", string(FragmentResponseMode)))
	if inputErr != nil {
		return nil, inputErr
	}
	responseErrors, inputErr := parseResponseErrors(paramOrDefault(params, "response_errors", "true"))
	if inputErr != nil {
		return nil, inputErr
	}
	state := paramOrDefault(params, "state", "")

	// Client identity and return address are now validated, so every later
	// failure can be reported by redirecting to the RP. Bind before any
	// stage that can fail for unrelated reasons.
	reqCtx.BindReturnParams(ReturnParams{
		RedirectURI:    redirectURI,
		ResponseMode:   responseMode,
		ResponseErrors: responseErrors,
		State:          state,
	})

	// Whitelisting runs after binding (so the failure redirects) but before
	// rate limiting (so unknown origins cannot probe limiter state).
	if s.allowedOrigins != nil && !slices.Contains(s.allowedOrigins, clientID) {
		return nil, InputErrorf("the origin is not whitelisted")
	}

	nonce, inputErr := requireParam(params, "nonce")
	if inputErr != nil {
		return nil, inputErr
	}
	responseType, inputErr := requireParam(params, "response_type")
	if inputErr != nil {
		return nil, inputErr
	}
	if responseType != "id_token" {
		return nil, InputErrorf("unsupported response_type, only id_token is supported")
	}

	// Without a login_hint there is no attempt to start: prompt for an
	// email, re-submitting every original parameter verbatim.
	loginHint := paramOrDefault(params, "login_hint", "")
	if loginHint == "" {
		html, err := s.renderLoginPrompt(reqCtx, clientID)
		if err != nil {
			return nil, InternalError("could not render the login prompt", err)
		}
		return &Response{HTML: html}, nil
	}

	email, err := emailaddr.Parse(loginHint)
	if err != nil {
		return nil, InputErrorf("login_hint is not a valid email address")
	}

	allowed, err := s.deps.Limiter.Check(ctx, email.String())
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	// Common attempt state; the durable write is deferred to whichever
	// bridge proceeds.
	session := sessions.New(clientID, email.String(), nonce, s.nowTime())
	session.RedirectURI = redirectURI.String()
	session.ResponseMode = string(responseMode)
	session.ResponseErrors = responseErrors
	session.State = state
	reqCtx.Session = session

	res, err := s.dispatch(ctx, reqCtx, email)
	if err != nil {
		return s.fallback(ctx, reqCtx, email, err)
	}
	return res, nil
}

// dispatch discovers providers for the email's domain and hands the attempt
// to the matching bridge. Only the first discovered link is ever tried;
// remaining candidates are discarded even when the bridge fails.
func (s *Service) dispatch(ctx context.Context, reqCtx *RequestContext, email emailaddr.Address) (*Response, error) {
	links, err := s.discover(ctx, email)
	if err != nil {
		return nil, err
	}

	if len(links) > 0 {
		link := links[0]
		switch link.Rel {
		// Portier and Google providers share the generic OIDC implementation.
		case webfinger.RelOIDCIssuer, webfinger.RelPortierIDP, webfinger.RelGoogleIDP:
			return s.deps.OIDC.Auth(ctx, reqCtx, email, link)
		}
	}

	return nil, ErrProviderCancelled
}

// discover races the webfinger query against the discovery timeout. When
// the timeout wins, the query is not cancelled: it is detached and runs to
// completion in the background with its outcome only logged, so slow
// servers still warm caches without holding up the request.
func (s *Service) discover(_ context.Context, email emailaddr.Address) ([]webfinger.Link, error) {
	type discoveryResult struct {
		links []webfinger.Link
		err   error
	}

	// The query deliberately gets a background context: it must be able to
	// outlive both the timeout and the request itself.
	results := make(chan discoveryResult, 1)
	go func() {
		links, err := s.deps.Discoverer.Query(context.Background(), email)
		results <- discoveryResult{links: links, err: err}
	}()

	timer := time.NewTimer(s.discoveryTimeout)
	defer timer.Stop()

	select {
	case result := <-results:
		if result.err != nil {
			return nil, classifyDiscoveryError(result.err, email)
		}
		return result.links, nil
	case <-timer.C:
		go func() {
			result := <-results
			if result.err != nil {
				log.Warn().Err(result.err).Str("email", email.String()).
					Msg("detached discovery failed")
				return
			}
			log.Info().Int("links", len(result.links)).Str("email", email.String()).
				Msg("detached discovery completed")
		}()
		return nil, ProviderErrorf("discovery timed out for %s", email)
	}
}

// classifyDiscoveryError keeps already-classified errors as they are and
// treats everything else from the discovery client as a provider failure.
func classifyDiscoveryError(err error, email emailaddr.Address) error {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return err
	}
	return ProviderError("discovery failed for "+email.String(), err)
}

// fallback applies the degradation policy: only provider-unavailability
// errors retry through the email loop. Validation and throttling failures
// must never be silently downgraded to the weaker factor.
func (s *Service) fallback(ctx context.Context, reqCtx *RequestContext, email emailaddr.Address, err error) (*Response, error) {
	logError(err)

	switch KindOf(err) {
	case KindProvider, KindProviderCancelled:
		return s.deps.Email.Auth(ctx, reqCtx, email)
	default:
		return nil, err
	}
}
