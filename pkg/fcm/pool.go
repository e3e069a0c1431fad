package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wisbric/pushgate/internal/telemetry"
	"github.com/wisbric/pushgate/pkg/credential"
)

// CredentialSource resolves a tenant's Android credential bundle. Satisfied
// by *credential.Service.
type CredentialSource interface {
	GetAppConfig(ctx context.Context, appID string) (*credential.AppConfig, error)
}

// Pool lazily builds and caches one FCM client per tenant, keyed by app id,
// and evicts an entry when admin writes change that tenant's Android
// credential.
type Pool struct {
	creds  CredentialSource
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	group   singleflight.Group
}

// NewPool creates an FCM client pool.
func NewPool(creds CredentialSource, logger *slog.Logger) *Pool {
	return &Pool{creds: creds, logger: logger, clients: make(map[string]*client)}
}

// Invalidate evicts the cached client for an app, if any.
func (p *Pool) Invalidate(appID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, appID)
	telemetry.ProviderCacheSize.WithLabelValues("android").Set(float64(len(p.clients)))
}

func (p *Pool) getOrBuild(ctx context.Context, appID string) (*client, error) {
	p.mu.Lock()
	if c, ok := p.clients[appID]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(appID, func() (any, error) {
		p.mu.Lock()
		if c, ok := p.clients[appID]; ok {
			p.mu.Unlock()
			return c, nil
		}
		p.mu.Unlock()

		cfg, err := p.creds.GetAppConfig(ctx, appID)
		if err != nil {
			return nil, fmt.Errorf("loading app config: %w", err)
		}
		if cfg.Android == nil {
			return nil, fmt.Errorf("app %q has no Android credential configured", appID)
		}

		projectID, err := serviceAccountProjectID(cfg.Android.ServiceAccountJSON)
		if err != nil {
			return nil, err
		}

		c, err := newClient(ctx, cfg.Android.ServiceAccountJSON, projectID)
		if err != nil {
			return nil, fmt.Errorf("constructing FCM client: %w", err)
		}

		p.mu.Lock()
		p.clients[appID] = c
		p.mu.Unlock()
		telemetry.ProviderCacheSize.WithLabelValues("android").Set(float64(len(p.clients)))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*client), nil
}

func serviceAccountProjectID(raw string) (string, error) {
	var doc struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("parsing service account JSON: %w", err)
	}
	if doc.ProjectID == "" {
		return "", fmt.Errorf("service account JSON has no project_id")
	}
	return doc.ProjectID, nil
}

// defaultTTLSeconds is used when neither the request nor the FCM-specific
// block supplies a ttl.
const defaultTTLSeconds = 0

// Send dispatches req's tokens in chunks of at most 500, invoking the
// tenant's client once per token within each chunk and accumulating the
// result.
func (p *Pool) Send(ctx context.Context, req Request) (Result, error) {
	c, err := p.getOrBuild(ctx, req.AppID)
	if err != nil {
		return Result{}, err
	}

	tokens := dedupTokens(req.Tokens)
	result := Result{Requested: len(tokens), InvalidTokens: []string{}}

	ttl := int64(defaultTTLSeconds)
	if req.TTLSeconds != nil {
		ttl = *req.TTLSeconds
	}

	for _, batch := range chunk(tokens, 500) {
		for _, token := range batch {
			m := buildMessage(req, token, ttl)
			res := c.send(ctx, m)
			if res.Succeeded {
				result.Sent++
				telemetry.NotificationsSentTotal.WithLabelValues("android").Inc()
				continue
			}
			result.Failed++
			telemetry.NotificationsFailedTotal.WithLabelValues("android").Inc()
			if isInvalidToken(res.ErrorCode) {
				result.InvalidTokens = append(result.InvalidTokens, res.Token)
				telemetry.InvalidTokensTotal.WithLabelValues("android").Inc()
			} else {
				p.logger.Warn("fcm send failed", "app_id", req.AppID, "error_code", res.ErrorCode)
			}
		}
	}

	return result, nil
}

// Close releases all cached clients. FCM's HTTP v1 client has no explicit
// session teardown beyond letting idle connections expire.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = make(map[string]*client)
	telemetry.ProviderCacheSize.WithLabelValues("android").Set(0)
}
