package server

func (s *Server) initRoutes() {
	// {$} keeps the index from swallowing every unmatched path
	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare(s.sessions.LoadAndSave)...))

	// LOGIN
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginPageUIHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare(s.sessions.LoadAndSave)...))

	s.RegisterRouteFunc("GET "+RouteAssets, ChainMiddleware(s.AssetHandler(), s.AssetMiddleware()...))
}
