package admission

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/wisbric/pushgate/internal/httpserver"
)

// bodyCapture is admission stage 5: read the body up to maxBytes, reject
// malformed JSON, and stash the exact raw bytes in the request context so
// the HMAC stage can verify against byte-identical content.
func bodyCapture(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited := http.MaxBytesReader(w, r.Body, maxBytes)
			raw, err := io.ReadAll(limited)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, "request body exceeds maximum size")
				return
			}
			if !json.Valid(raw) {
				httpserver.RespondError(w, http.StatusBadRequest, "Invalid JSON")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, r.WithContext(withRawBody(r.Context(), raw)))
		})
	}
}

// Config parameterizes which admission stages are active and their tuning
// knobs. Built from internal/config.Config.
type Config struct {
	RequireHTTPS       bool
	TrustProxy         bool
	IPAllowlistEnabled bool
	AllowedIPs         []string
	RequireAuth        bool
	RequireHMAC        bool
	HMACWindow         time.Duration
	BodyLimitBytes     int64
}

// Pipeline composes the fixed-order admission chain of spec §4.F in front
// of the data-plane endpoint.
type Pipeline struct {
	cfg     Config
	limiter *RateLimiter
	secrets APISecretSource
	nonces  NonceConsumer
}

// NewPipeline creates an admission Pipeline. limiter may be nil to disable
// rate limiting entirely (tests only — production always rate limits).
func NewPipeline(cfg Config, limiter *RateLimiter, secrets APISecretSource, nonces NonceConsumer) *Pipeline {
	return &Pipeline{cfg: cfg, limiter: limiter, secrets: secrets, nonces: nonces}
}

// Wrap composes every enabled stage around next in the fixed order: security
// headers, HTTPS enforcement, IP allowlist, rate limit, body parse, API key
// auth, HMAC+nonce verification.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	h := next

	if p.cfg.RequireHMAC {
		h = hmacVerify(p.cfg.HMACWindow, p.secrets, p.nonces)(h)
	}
	if p.cfg.RequireAuth {
		h = apiKeyAuth(p.secrets)(h)
	}
	h = bodyCapture(p.cfg.BodyLimitBytes)(h)
	if p.limiter != nil {
		h = p.limiter.rateLimit(p.cfg.TrustProxy)(h)
	}
	if p.cfg.IPAllowlistEnabled {
		h = ipAllowlist(p.cfg.AllowedIPs, p.cfg.TrustProxy)(h)
	}
	if p.cfg.RequireHTTPS {
		h = requireHTTPS(p.cfg.TrustProxy)(h)
	}
	h = httpserver.SecurityHeaders(h)

	return h
}
