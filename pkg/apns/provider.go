package apns

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	productionHost = "api.push.apple.com"
	sandboxHost    = "api.sandbox.push.apple.com"
)

// tokenResult is one token's outcome from a single provider send.
type tokenResult struct {
	Token  string
	Status int
	Reason string
}

// provider is one tenant's long-lived HTTP/2 connection to APNs.
type provider struct {
	client       *http.Client
	tokens       *tokenSource
	host         string
	defaultTopic string
	maxListeners int
	inFlight     chan struct{}
}

func newProvider(teamID, keyID string, privateKeyPEM []byte, bundleID string, production bool, maxListeners int) (*provider, error) {
	ts, err := newTokenSource(keyID, teamID, privateKeyPEM)
	if err != nil {
		return nil, err
	}

	transport := &http2.Transport{
		TLSClientConfig: &tls.Config{},
	}

	host := sandboxHost
	if production {
		host = productionHost
	}

	return &provider{
		client:       &http.Client{Transport: transport, Timeout: 30 * time.Second},
		tokens:       ts,
		host:         host,
		defaultTopic: bundleID,
		maxListeners: maxListeners,
		inFlight:     make(chan struct{}, maxListeners),
	}, nil
}

// listenersInUse reports how many sends are currently occupying the
// connection's listener budget, for the periodic gauge sample.
func (p *provider) listenersInUse() int {
	return len(p.inFlight)
}

// close releases the underlying HTTP/2 transport's idle connections. APNs
// providers have no explicit session teardown beyond this.
func (p *provider) close() {
	if t, ok := p.client.Transport.(*http2.Transport); ok {
		t.CloseIdleConnections()
	}
}

// sendOne pushes a single built notification to a single device token,
// respecting the per-connection listener cap.
func (p *provider) sendOne(ctx context.Context, token string, n builtNotification) tokenResult {
	select {
	case p.inFlight <- struct{}{}:
		defer func() { <-p.inFlight }()
	case <-ctx.Done():
		return tokenResult{Token: token, Status: 0, Reason: "ContextCancelled"}
	}

	url := fmt.Sprintf("https://%s/3/device/%s", p.host, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(n.Body))
	if err != nil {
		return tokenResult{Token: token, Status: 0, Reason: "InternalError"}
	}

	authToken, err := p.tokens.Token()
	if err != nil {
		return tokenResult{Token: token, Status: 0, Reason: "InternalError"}
	}

	req.Header.Set("authorization", "bearer "+authToken)
	req.Header.Set("apns-topic", n.Topic)
	req.Header.Set("apns-push-type", n.PushType)
	req.Header.Set("apns-priority", fmt.Sprintf("%d", n.Priority))
	req.Header.Set("apns-expiration", fmt.Sprintf("%d", n.Expiration))
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return tokenResult{Token: token, Status: 0, Reason: "Unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return tokenResult{Token: token, Status: resp.StatusCode}
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return tokenResult{Token: token, Status: resp.StatusCode, Reason: body.Reason}
}
