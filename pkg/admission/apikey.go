package admission

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wisbric/pushgate/internal/httpserver"
)

// APISecretSource resolves the stored API secret for an app. Implementations
// must return a non-nil error for a disabled or missing app so the edge
// cannot distinguish the two cases. Satisfied by *credential.Service.
type APISecretSource interface {
	GetAPISecret(ctx context.Context, appID string) (string, error)
}

func bearerOrAPIKey(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			key := strings.TrimSpace(auth[len(prefix):])
			return key, key != ""
		}
	}
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key, true
	}
	return "", false
}

// constantTimeEqual compares two secrets without leaking timing information
// about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// apiKeyAuth is admission stage 6: accept Authorization: Bearer <secret> or
// X-Api-Key: <secret>, resolve the app id from the body or X-App-Id, and
// compare against the stored secret in constant time.
func apiKeyAuth(secrets APISecretSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			appID := resolveAppIDFromRequest(r)
			if appID == "" {
				httpserver.RespondError(w, http.StatusBadRequest, "appId is required")
				return
			}

			key, ok := bearerOrAPIKey(r)
			if !ok {
				httpserver.RespondError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			secret, err := secrets.GetAPISecret(r.Context(), appID)
			if err != nil || !constantTimeEqual(key, secret) {
				httpserver.RespondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(withAPIKeyAppID(r.Context(), appID)))
		})
	}
}
