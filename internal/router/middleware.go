package router

import "net/http"

// Middleware wraps an http.Handler, in the manner of net/http's own chaining
// idiom.
type Middleware func(next http.Handler) http.Handler

// chain applies mws around h, outermost first.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
