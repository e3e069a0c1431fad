package admission

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wisbric/pushgate/internal/httpserver"
	"github.com/wisbric/pushgate/internal/telemetry"
)

// NonceConsumer records (appID, nonce) pairs with at-most-once acceptance
// within a bounded validity window. Satisfied by *nonce.Store.
type NonceConsumer interface {
	ConsumeNonce(ctx context.Context, appID, nonce string, now, expiresAt time.Time) (bool, error)
}

// maxNonceLen is the longest X-Nonce value admission will accept.
const maxNonceLen = 128

// hmacVerify is admission stage 7: X-Timestamp/X-Nonce/X-Signature headers
// verified against the canonical string
// "METHOD\nPATH\nTIMESTAMP\nTRIMMED_NONCE\nRAW_BODY" keyed by the resolved
// app's stored API secret, then atomically consumed as a nonce so replays
// within the same validity window fail.
func hmacVerify(window time.Duration, secrets APISecretSource, nonces NonceConsumer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tsHeader := r.Header.Get("X-Timestamp")
			nonceHeader := strings.TrimSpace(r.Header.Get("X-Nonce"))
			sigHeader := strings.TrimSpace(r.Header.Get("X-Signature"))

			if tsHeader == "" || nonceHeader == "" || sigHeader == "" {
				httpserver.RespondError(w, http.StatusUnauthorized, "missing HMAC headers")
				return
			}
			if len(nonceHeader) > maxNonceLen {
				httpserver.RespondError(w, http.StatusUnauthorized, "nonce exceeds maximum length")
				return
			}

			tsMillis, err := strconv.ParseInt(tsHeader, 10, 64)
			if err != nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "X-Timestamp must be an integer")
				return
			}

			now := time.Now()
			ts := time.UnixMilli(tsMillis)
			if diff := now.Sub(ts); diff > window || diff < -window {
				httpserver.RespondError(w, http.StatusUnauthorized, "timestamp outside allowed window")
				return
			}

			appID := resolveAppIDFromRequest(r)
			if existing, ok := APIKeyAppIDFromContext(r.Context()); ok {
				appID = existing
			}
			if appID == "" {
				httpserver.RespondError(w, http.StatusUnauthorized, "appId is required")
				return
			}

			secret, err := secrets.GetAPISecret(r.Context(), appID)
			if err != nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unknown or disabled app")
				return
			}

			rawBody := RawBodyFromContext(r.Context())
			canonical := strings.Join([]string{
				r.Method,
				r.URL.Path,
				tsHeader,
				nonceHeader,
				string(rawBody),
			}, "\n")

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(canonical))
			expected := mac.Sum(nil)

			provided, err := hex.DecodeString(sigHeader)
			if err != nil || !hmac.Equal(expected, provided) {
				httpserver.RespondError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			expiresAt := ts.Add(window)
			consumed, err := nonces.ConsumeNonce(r.Context(), appID, nonceHeader, now, expiresAt)
			if err != nil {
				httpserver.RespondError(w, http.StatusInternalServerError, "failed to verify nonce")
				return
			}
			if !consumed {
				telemetry.NonceRejectionsTotal.Inc()
				httpserver.RespondError(w, http.StatusUnauthorized, "Nonce already used")
				return
			}

			next.ServeHTTP(w, r.WithContext(withAPIKeyAppID(r.Context(), appID)))
		})
	}
}
