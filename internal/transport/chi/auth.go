package chi

import (
	"net/http"
	"strings"

	"github.com/oriane-labs/wayfind/internal/config"
	"github.com/oriane-labs/wayfind/internal/domain"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// APIKeyAuth returns a middleware that validates Bearer tokens and resolves
// them to a requester identity and access tier in the request context.
// With no configured keys authentication is disabled and every request runs
// as an anonymous tier-0 requester.
func APIKeyAuth(keys []config.APIKeyConfig) func(http.Handler) http.Handler {
	requesters := make(map[string]domain.Requester, len(keys))
	for _, k := range keys {
		if k.Key != "" {
			requesters[k.Key] = domain.Requester{Owner: k.Owner, Tier: k.Tier}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(requesters) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized,
					"authorization header must use Bearer scheme")
				return
			}

			req, ok := requesters[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.ContextWithRequester(r.Context(), req)))
		})
	}
}
