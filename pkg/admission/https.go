package admission

import (
	"net/http"
	"strings"

	"github.com/wisbric/pushgate/internal/httpserver"
)

// requireHTTPS rejects requests that did not arrive over TLS, unless
// trustProxy is enabled and the first hop of X-Forwarded-Proto is "https".
func requireHTTPS(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS != nil {
				next.ServeHTTP(w, r)
				return
			}
			if trustProxy {
				proto := r.Header.Get("X-Forwarded-Proto")
				first := strings.TrimSpace(strings.Split(proto, ",")[0])
				if strings.EqualFold(first, "https") {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpserver.RespondError(w, http.StatusForbidden, "HTTPS is required")
		})
	}
}
