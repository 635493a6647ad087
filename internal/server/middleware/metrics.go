package middleware

import "net/http"

// HTTPObserver records request outcomes. metrics.Metrics satisfies it.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int)
}

// Metrics returns middleware that counts requests by method, matched route
// pattern and status. Unmatched requests are labelled "unmatched" to bound
// label cardinality.
func Metrics(obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrap(w)
			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveHTTP(r.Method, route, rw.statusCode)
		})
	}
}
