package broker

import (
	"net/url"

	"github.com/mailauth/broker/sessions"
)

// ResponseModeType denotes how response parameters are returned to the RP.
type ResponseModeType string

const (
	// FragmentResponseMode returns parameters in the URL fragment (after #).
	FragmentResponseMode ResponseModeType = "fragment"
	// FormPostResponseMode returns parameters via an auto-submitting HTML
	// form that POSTs to the redirect_uri.
	FormPostResponseMode ResponseModeType = "form_post"
)

// ReturnParams is the validated error-return channel for one request. Once
// client identity and return address are known good, later failures are
// reported by redirecting to the RP instead of a generic page.
type ReturnParams struct {
	RedirectURI    *url.URL
	ResponseMode   ResponseModeType
	ResponseErrors bool
	// State is opaque to the broker and echoed back verbatim.
	State string
}

// RequestContext is the per-request state of one authentication attempt.
// It lives for exactly one request.
type RequestContext struct {
	// Method is the HTTP method, used to pick the form method when the
	// email prompt is re-rendered.
	Method string
	// Params are the request parameters (query for GET, form body for
	// POST), as supplied, including parameters the broker does not know.
	Params url.Values

	returnParams *ReturnParams
	// Session is set once the attempt passes validation and rate limiting.
	Session *sessions.Session
}

// BindReturnParams commits the validated return channel. Only the first
// call has any effect; the slot is immutable once set.
func (c *RequestContext) BindReturnParams(params ReturnParams) {
	if c.returnParams != nil {
		return
	}
	c.returnParams = &params
}

// ReturnParams returns the bound return channel, or nil if binding never
// happened (failures before binding must render a generic page).
func (c *RequestContext) ReturnParams() *ReturnParams {
	return c.returnParams
}

// Response is the terminal output of a successfully handled attempt: either
// a redirect or a rendered HTML page.
type Response struct {
	// RedirectURL, when set, redirects the user agent (303).
	RedirectURL string
	// HTML is the page body when no redirect is issued.
	HTML string
}
