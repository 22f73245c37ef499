// Package webfinger discovers identity-provider endpoints for an email
// domain using the WebFinger protocol (RFC 7033).
package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/pkg/errors"
)

// Relation identifies the kind of provider a discovered link points at.
type Relation string

const (
	// RelOIDCIssuer is the standard OpenID Connect issuer relation.
	RelOIDCIssuer Relation = "http://openid.net/specs/connect/1.0/issuer"
	// RelPortierIDP marks a provider implementing the Portier IdP protocol,
	// which is wire-compatible with the generic OIDC issuer case.
	RelPortierIDP Relation = "https://portier.io/specs/auth/1.0/idp"
	// RelGoogleIDP marks Google's provider. Also OIDC-compatible; kept
	// distinct only for branding.
	RelGoogleIDP Relation = "https://portier.io/specs/auth/1.0/idp/google"
)

// Link is one discovered provider endpoint.
type Link struct {
	Rel  Relation `json:"rel"`
	Href string   `json:"href"`
}

// jrdDocument is the JSON Resource Descriptor returned by WebFinger servers.
type jrdDocument struct {
	Links []Link `json:"links"`
}

const defaultQueryTimeout = 10 * time.Second

// Client queries WebFinger servers for provider links.
type Client struct {
	httpClient *http.Client
	overrides  map[string][]Link
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for queries.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithOverride serves fixed links for a domain instead of querying it.
func WithOverride(domain string, links []Link) ClientOption {
	return func(c *Client) {
		c.overrides[domain] = links
	}
}

// DefaultOverrides returns the built-in override table. Google's mail
// domains don't serve WebFinger, but their OIDC endpoints are well known.
func DefaultOverrides() map[string][]Link {
	googleLinks := []Link{{Rel: RelGoogleIDP, Href: "https://accounts.google.com"}}
	return map[string][]Link{
		"gmail.com":      googleLinks,
		"googlemail.com": googleLinks,
	}
}

// NewClient creates a WebFinger client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultQueryTimeout},
		overrides:  make(map[string][]Link),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Query discovers provider links for the email's domain. The returned slice
// preserves server order and contains only relations this broker understands.
func (c *Client) Query(ctx context.Context, email emailaddr.Address) ([]Link, error) {
	domain := email.Domain()

	if links, ok := c.overrides[domain]; ok {
		return links, nil
	}

	queryURL := url.URL{
		Scheme: "https",
		Host:   domain,
		Path:   "/.well-known/webfinger",
	}
	query := url.Values{}
	query.Set("resource", "acct:"+email.String())
	query.Add("rel", string(RelOIDCIssuer))
	query.Add("rel", string(RelPortierIDP))
	query.Add("rel", string(RelGoogleIDP))
	queryURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Query] building request")
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.Query] querying %s", domain)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[Client.Query] %s answered with status %d", domain, res.StatusCode)
	}

	var doc jrdDocument
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "[Client.Query] decoding JRD from %s", domain)
	}

	links := make([]Link, 0, len(doc.Links))
	for _, link := range doc.Links {
		switch link.Rel {
		case RelOIDCIssuer, RelPortierIDP, RelGoogleIDP:
			if link.Href != "" {
				links = append(links, link)
			}
		}
	}
	return links, nil
}
