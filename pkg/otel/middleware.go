package otel

import (
	"net/http"

	"github.com/riandyrn/otelchi"
)

// Middleware instruments a chi router with otelchi spans. Paths listed in
// skip (probe and scrape endpoints) bypass tracing entirely; per-session
// attributes are attached by the dispatcher, not here, because the WS
// upgrade is the only request that carries an identity.
func Middleware(serviceName string, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	base := otelchi.Middleware(serviceName)

	return func(next http.Handler) http.Handler {
		instrumented := base(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			instrumented.ServeHTTP(w, r)
		})
	}
}
