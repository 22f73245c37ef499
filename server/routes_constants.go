package server

// Route path constants
// All broker routes are defined here to ensure consistency and prevent typos
const (
	// Authentication request entry point
	RouteAuth = "/auth"

	// Bridge completion routes
	RouteConfirm  = "/confirm"
	RouteCallback = "/callback"

	// OIDC documents
	RouteDiscovery = "/.well-known/openid-configuration"
	RouteKeys      = "/keys.json"
)
