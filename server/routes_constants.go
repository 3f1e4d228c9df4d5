package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"
	RouteLogin = "/login"

	// Static Asset Routes (patterns)
	RouteAssetsPrefix = "/_assets/"
	RouteAssets       = RouteAssetsPrefix + "{name}"
)

// Page templates
const (
	templateIndex = "index.html"
	templateLogin = "login.html"
)
