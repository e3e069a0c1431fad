package admission

import (
	"net/http"
	"strings"

	"github.com/wisbric/pushgate/internal/httpserver"
)

// ipAllowlist rejects requests from a client IP not in allowed, normalizing
// IPv4-mapped IPv6 addresses ("::ffff:1.2.3.4") to plain IPv4 first.
func ipAllowlist(allowed []string, trustProxy bool) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ip := range allowed {
		allowedSet[ip] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := normalizeIP(clientIP(r, trustProxy))
			if _, ok := allowedSet[ip]; !ok {
				httpserver.RespondError(w, http.StatusForbidden, "client IP is not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeIP(ip string) string {
	const v4MappedPrefix = "::ffff:"
	if strings.HasPrefix(ip, v4MappedPrefix) {
		return ip[len(v4MappedPrefix):]
	}
	return ip
}

// clientIP extracts the request's client IP. When trustProxy is enabled, the
// first hop of X-Forwarded-For takes precedence over RemoteAddr.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 && !strings.Contains(addr[idx:], "]") {
		return addr[:idx]
	}
	return strings.Trim(addr, "[]")
}
