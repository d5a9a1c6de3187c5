package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridian-tech/adminpanel/core/logger"
)

func (b *Backend) handleCORS(router *mux.Router) {

	corsMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Set CORS headers for all requests
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, If-None-Match, Access-Control-Allow-Origin")
			w.Header().Set("Access-Control-Expose-Headers", "*")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method, " (handled by CORS middleware)")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.ServeHTTP(w, r)
		})
	}
	router.Use(corsMiddleware)

	// mux middleware only runs on matched routes, so preflight requests
	// need a catch-all to reach the middleware. A MatcherFunc keeps other
	// methods on unknown paths a plain non-match, they must stay 404.
	router.PathPrefix("/").MatcherFunc(
		func(r *http.Request, _ *mux.RouteMatch) bool {
			return r.Method == http.MethodOptions
		}).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}
