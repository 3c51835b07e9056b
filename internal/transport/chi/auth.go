package chi

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// exemptPaths bypass authentication so probes and scrapers work
// without credentials.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware validates Bearer tokens against the configured
// API keys. With no keys configured the middleware is a pass-through.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	valid := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			valid[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			switch {
			case header == "":
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
			case !strings.HasPrefix(header, bearerPrefix):
				writeError(w, http.StatusUnauthorized, "unauthorized", "authorization header must use Bearer scheme")
			default:
				if _, ok := valid[strings.TrimPrefix(header, bearerPrefix)]; !ok {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
					return
				}
				next.ServeHTTP(w, r)
			}
		})
	}
}
