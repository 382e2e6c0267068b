// Package handlers holds the reusable pieces of the HTTP layer: health
// checking and middleware. The route handlers themselves live in the parent
// http package next to the server.
//
// # Health checks
//
// CompositeHealthChecker runs named dependency probes in parallel and
// aggregates them into the payload served on /health and /ready:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//
// Probes should stay fast; each runs under its own timeout so a hung
// dependency degrades the report instead of the endpoint.
//
// # Middleware
//
// Middleware composes via Chain, outermost first:
//
//	handler := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(64<<10),
//	    handlers.TimeoutMiddleware(10*time.Second),
//	)
package handlers
