package router

import (
	"net/http"
)

const (
	allowOriginHeader  = "Access-Control-Allow-Origin"
	allowMethodsHeader = "Access-Control-Allow-Methods"
	allowedMethods      = "GET, POST, OPTIONS"
)

// CORS implements an origin allow-list: an empty set emits no CORS headers
// at all; "*" matches any origin; otherwise the Origin header must be an
// exact member of the set.
type CORS struct {
	allowed map[string]bool
}

// NewCORS builds a CORS policy from the --allow-origin flag values.
func NewCORS(origins []string) *CORS {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &CORS{allowed: allowed}
}

func (c *CORS) empty() bool { return len(c.allowed) == 0 }

func (c *CORS) matches(origin string) bool {
	return c.allowed["*"] || c.allowed[origin]
}

// Middleware sets Access-Control-Allow-Origin/-Methods when the request's
// Origin is allowed, and answers CORS preflight OPTIONS requests directly
// with 204.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.empty() {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin != "" && c.matches(origin) {
			w.Header().Set(allowOriginHeader, origin)
			w.Header().Set(allowMethodsHeader, allowedMethods)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
