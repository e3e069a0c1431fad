package admission

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

type fakeSecrets struct {
	secrets map[string]string
}

func (f fakeSecrets) GetAPISecret(_ context.Context, appID string) (string, error) {
	secret, ok := f.secrets[appID]
	if !ok {
		return "", errAppNotFound
	}
	return secret, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errAppNotFound = errString("app not found")

type fakeNonces struct {
	seen map[string]struct{}
}

func newFakeNonces() *fakeNonces {
	return &fakeNonces{seen: map[string]struct{}{}}
}

func (f *fakeNonces) ConsumeNonce(_ context.Context, appID, nonce string, _, _ time.Time) (bool, error) {
	key := appID + ":" + nonce
	if _, ok := f.seen[key]; ok {
		return false, nil
	}
	f.seen[key] = struct{}{}
	return true, nil
}

func sign(secret, method, path string, ts time.Time, nonce, body string) string {
	canonical := strings.Join([]string{
		method,
		path,
		strconv.FormatInt(ts.UnixMilli(), 10),
		nonce,
		body,
	}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestPipeline(cfg Config, secrets fakeSecrets, nonces *fakeNonces) *Pipeline {
	return NewPipeline(cfg, nil, secrets, nonces)
}

func TestPipeline_SecurityHeadersAlwaysPresent(t *testing.T) {
	p := newTestPipeline(Config{BodyLimitBytes: 1024}, fakeSecrets{secrets: map[string]string{}}, newFakeNonces())
	h := p.Wrap(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
}

func TestPipeline_RequireHTTPSRejectsPlainRequests(t *testing.T) {
	p := newTestPipeline(Config{RequireHTTPS: true, BodyLimitBytes: 1024}, fakeSecrets{secrets: map[string]string{}}, newFakeNonces())
	h := p.Wrap(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPipeline_BodyCaptureRejectsInvalidJSON(t *testing.T) {
	p := newTestPipeline(Config{BodyLimitBytes: 1024}, fakeSecrets{secrets: map[string]string{}}, newFakeNonces())
	h := p.Wrap(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(`not-json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPipeline_APIKeyAuth_MissingKeyRejected(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	p := newTestPipeline(Config{RequireAuth: true, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPipeline_APIKeyAuth_ValidBearerAccepted(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	p := newTestPipeline(Config{RequireAuth: true, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestPipeline_HMAC_ValidSignatureAccepted(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	window := 5 * time.Minute
	p := newTestPipeline(Config{RequireHMAC: true, HMACWindow: window, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	now := time.Now()
	nonce := "nonce-1"
	sig := sign("topsecret", http.MethodPost, "/v1/notify", now, nonce, body)

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestPipeline_HMAC_ReplayedNonceRejected(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	window := 5 * time.Minute
	nonces := newFakeNonces()
	p := newTestPipeline(Config{RequireHMAC: true, HMACWindow: window, BodyLimitBytes: 1024}, secrets, nonces)
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	now := time.Now()
	nonce := "replay-me"
	sig := sign("topsecret", http.MethodPost, "/v1/notify", now, nonce, body)

	makeReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
		req.Header.Set("X-Timestamp", strconv.FormatInt(now.UnixMilli(), 10))
		req.Header.Set("X-Nonce", nonce)
		req.Header.Set("X-Signature", sig)
		return req
	}

	first := httptest.NewRecorder()
	h.ServeHTTP(first, makeReq())
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, makeReq())
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("expected replayed nonce to be rejected, got %d", second.Code)
	}
}

func TestPipeline_HMAC_StaleTimestampRejected(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	window := 5 * time.Minute
	p := newTestPipeline(Config{RequireHMAC: true, HMACWindow: window, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	stale := time.Now().Add(-window - time.Millisecond)
	nonce := "stale-nonce"
	sig := sign("topsecret", http.MethodPost, "/v1/notify", stale, nonce, body)

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(stale.UnixMilli(), 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale timestamp, got %d", rec.Code)
	}
}

func TestPipeline_HMAC_TimestampJustInsideWindowAccepted(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	window := 5 * time.Minute
	p := newTestPipeline(Config{RequireHMAC: true, HMACWindow: window, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	// A hair inside the window, leaving headroom for the few microseconds
	// that elapse between signing here and the handler's own time.Now().
	nearBoundary := time.Now().Add(-window + 50*time.Millisecond)
	nonce := "boundary-nonce"
	sig := sign("topsecret", http.MethodPost, "/v1/notify", nearBoundary, nonce, body)

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(nearBoundary.UnixMilli(), 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected timestamp just inside the window to be accepted, got %d", rec.Code)
	}
}

func TestPipeline_HMAC_BadSignatureRejected(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{"com.acme.app": "topsecret"}}
	window := 5 * time.Minute
	p := newTestPipeline(Config{RequireHMAC: true, HMACWindow: window, BodyLimitBytes: 1024}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	body := `{"appId":"com.acme.app"}`
	now := time.Now()
	nonce := "bad-sig-nonce"

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", hex.EncodeToString([]byte("not-the-right-mac-bytes")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged signature, got %d", rec.Code)
	}
}

func TestPipeline_IPAllowlistRejectsUnknownClient(t *testing.T) {
	secrets := fakeSecrets{secrets: map[string]string{}}
	p := newTestPipeline(Config{
		IPAllowlistEnabled: true,
		AllowedIPs:         []string{"10.0.0.1"},
		BodyLimitBytes:     1024,
	}, secrets, newFakeNonces())
	h := p.Wrap(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/notify", strings.NewReader(`{}`))
	req.RemoteAddr = "192.168.1.5:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed IP, got %d", rec.Code)
	}
}
