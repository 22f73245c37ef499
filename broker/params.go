package broker

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// requireParam returns the named parameter or an Input error naming it.
func requireParam(params url.Values, name string) (string, *Error) {
	value := params.Get(name)
	if value == "" {
		return "", InputErrorf("missing request parameter %s", name)
	}
	return value, nil
}

// paramOrDefault returns the named parameter, or fallback when absent.
func paramOrDefault(params url.Values, name, fallback string) string {
	if !params.Has(name) {
		return fallback
	}
	return params.Get(name)
}

// parseRedirectURI parses value as an absolute URL with a host.
func parseRedirectURI(value, name string) (*url.URL, *Error) {
	parsed, err := url.Parse(value)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, InputErrorf("%s is not a valid absolute URL", name)
	}
	return parsed, nil
}

// parseResponseMode accepts exactly "fragment" or "form_post".
func parseResponseMode(value string) (ResponseModeType, *Error) {
	switch ResponseModeType(value) {
	case FragmentResponseMode:
		return FragmentResponseMode, nil
	case FormPostResponseMode:
		return FormPostResponseMode, nil
	default:
		return "", InputErrorf("unsupported response_mode, must be fragment or form_post")
	}
}

// parseResponseErrors accepts exactly the literals "true" and "false".
func parseResponseErrors(value string) (bool, *Error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, InputErrorf("response_errors must be true or false")
	}
}

// asciiOrigin serializes the origin (scheme + host + port) of a URL the way
// browsers do: lowercased, internationalized hosts punycoded, default ports
// elided. The client_id must match this exactly, which binds RP identity to
// a concrete ASCII origin.
func asciiOrigin(u *url.URL) (string, *Error) {
	scheme := strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		// IPv6 literal; Hostname strips the brackets.
		host = "[" + host + "]"
	} else {
		encoded, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", InputErrorf("the redirect_uri host is not a valid domain name")
		}
		host = encoded
	}

	port := u.Port()
	switch {
	case port == "",
		scheme == "http" && port == "80",
		scheme == "https" && port == "443":
		return scheme + "://" + host, nil
	}
	return scheme + "://" + host + ":" + port, nil
}
