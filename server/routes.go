package server

func (s *Server) initRoutes() {
	// Authentication requests arrive as either GET (query string) or
	// POST (form body), mirroring the two relying-party initiation styles.
	s.RegisterRouteFunc("GET "+RouteAuth, ChainMiddleware(s.AuthHandler(), s.standardMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuth, ChainMiddleware(s.AuthHandler(), s.standardMiddleware()...))

	// Email loop confirmation: GET from the mailed link, POST from the code form.
	s.RegisterRouteFunc("GET "+RouteConfirm, ChainMiddleware(s.ConfirmHandler(), s.standardMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteConfirm, ChainMiddleware(s.ConfirmHandler(), s.standardMiddleware()...))

	// Upstream OIDC providers redirect back here. POST covers providers
	// responding in form_post mode.
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.standardMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.standardMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteDiscovery, ChainMiddleware(s.DiscoveryHandler(), s.standardMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteKeys, ChainMiddleware(s.KeysHandler(), s.standardMiddleware()...))
}
