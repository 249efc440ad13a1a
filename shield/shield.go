// CLAUDE:SUMMARY HTTP hardening for the docmerge API: security headers, HEAD handling, per-client rate limits, access log.
// Package shield provides the HTTP middleware placed in front of the docmerge
// API.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack() {
//	    r.Use(mw)
//	}
//	r.With(limiter.Middleware).Post("/v1/combine", h)
package shield

import "net/http"

// APIStack returns the middleware applied to every route, outermost first:
// HeadToGet → SecurityHeaders → AccessLog.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		AccessLog,
	}
}
