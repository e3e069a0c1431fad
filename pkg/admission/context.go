// Package admission implements the fixed-order gate in front of the
// data-plane endpoint: security headers, HTTPS enforcement, IP allowlisting,
// rate limiting, raw-body capture, API key auth, and HMAC+nonce verification.
package admission

import "context"

type contextKey string

const (
	rawBodyKey     contextKey = "admission_raw_body"
	apiKeyAppIDKey contextKey = "admission_api_key_app_id"
)

// RawBodyFromContext returns the exact bytes of the request body as captured
// by the body-parse stage, verbatim, for HMAC canonicalization downstream.
func RawBodyFromContext(ctx context.Context) []byte {
	b, _ := ctx.Value(rawBodyKey).([]byte)
	return b
}

func withRawBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, rawBodyKey, body)
}

// APIKeyAppIDFromContext returns the app id resolved by the API-key stage,
// if that stage ran and matched.
func APIKeyAppIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyAppIDKey).(string)
	return v, ok
}

func withAPIKeyAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, apiKeyAppIDKey, appID)
}
