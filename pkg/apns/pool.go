package apns

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wisbric/pushgate/internal/telemetry"
	"github.com/wisbric/pushgate/pkg/credential"
)

// CredentialSource resolves a tenant's iOS credential bundle. Satisfied by
// *credential.Service.
type CredentialSource interface {
	GetAppConfig(ctx context.Context, appID string) (*credential.AppConfig, error)
}

// Pool lazily builds and caches one APNs provider per tenant, keyed by app
// id, and evicts an entry when admin writes change that tenant's iOS
// credential.
type Pool struct {
	creds        CredentialSource
	logger       *slog.Logger
	maxListeners int

	mu        sync.Mutex
	providers map[string]*provider
	group     singleflight.Group
}

// NewPool creates an APNs provider pool.
func NewPool(creds CredentialSource, logger *slog.Logger, maxListeners int) *Pool {
	return &Pool{
		creds:        creds,
		logger:       logger,
		maxListeners: maxListeners,
		providers:    make(map[string]*provider),
	}
}

// Invalidate evicts and gracefully shuts down the cached provider for an
// app, if any. Safe to call even if nothing is cached.
func (p *Pool) Invalidate(appID string) {
	p.mu.Lock()
	pr, ok := p.providers[appID]
	if ok {
		delete(p.providers, appID)
	}
	p.mu.Unlock()

	if ok {
		pr.close()
		telemetry.APNsListenersInUse.DeleteLabelValues(appID)
		p.mu.Lock()
		telemetry.ProviderCacheSize.WithLabelValues("ios").Set(float64(len(p.providers)))
		p.mu.Unlock()
	}
}

// getOrBuild returns the cached provider for appID, constructing one from
// the tenant's inline iOS credential on first use. Concurrent misses for the
// same appID collapse into a single construction via singleflight.
func (p *Pool) getOrBuild(ctx context.Context, appID string) (*provider, error) {
	p.mu.Lock()
	if pr, ok := p.providers[appID]; ok {
		p.mu.Unlock()
		return pr, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(appID, func() (any, error) {
		p.mu.Lock()
		if pr, ok := p.providers[appID]; ok {
			p.mu.Unlock()
			return pr, nil
		}
		p.mu.Unlock()

		cfg, err := p.creds.GetAppConfig(ctx, appID)
		if err != nil {
			return nil, fmt.Errorf("loading app config: %w", err)
		}
		if cfg.IOS == nil {
			return nil, fmt.Errorf("app %q has no iOS credential configured", appID)
		}

		pr, err := newProvider(cfg.IOS.TeamID, cfg.IOS.KeyID, []byte(cfg.IOS.PrivateKey), cfg.App.ID, cfg.IOS.Production, p.maxListeners)
		if err != nil {
			return nil, fmt.Errorf("constructing APNs provider: %w", err)
		}

		p.mu.Lock()
		p.providers[appID] = pr
		cacheSize := len(p.providers)
		p.mu.Unlock()
		telemetry.ProviderCacheSize.WithLabelValues("ios").Set(float64(cacheSize))
		return pr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider), nil
}

// Send dispatches req's tokens in chunks of at most 1000, building the
// notification once per chunk and sending it to each token in the chunk over
// the tenant's provider, accumulating the result.
func (p *Pool) Send(ctx context.Context, req Request) (Result, error) {
	pr, err := p.getOrBuild(ctx, req.AppID)
	if err != nil {
		return Result{}, err
	}

	tokens := dedupTokens(req.Tokens)
	result := Result{Requested: len(tokens), InvalidTokens: []string{}}

	for _, batch := range chunk(tokens, 1000) {
		built, err := buildNotification(req, pr.defaultTopic, time.Now())
		if err != nil {
			return Result{}, fmt.Errorf("building notification: %w", err)
		}

		for _, token := range batch {
			res := pr.sendOne(ctx, token, built)
			if res.Status == 200 {
				result.Sent++
				telemetry.NotificationsSentTotal.WithLabelValues("ios").Inc()
				continue
			}
			result.Failed++
			telemetry.NotificationsFailedTotal.WithLabelValues("ios").Inc()
			if isInvalidToken(res.Status, res.Reason) {
				result.InvalidTokens = append(result.InvalidTokens, res.Token)
				telemetry.InvalidTokensTotal.WithLabelValues("ios").Inc()
			} else {
				p.logger.Warn("apns send failed", "app_id", req.AppID, "status", res.Status, "reason", res.Reason)
			}
		}
	}

	return result, nil
}

// SampleListenerGauges publishes the current per-tenant listener occupancy
// to Prometheus. Intended to be called periodically from a background loop.
func (p *Pool) SampleListenerGauges() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for appID, pr := range p.providers {
		telemetry.APNsListenersInUse.WithLabelValues(appID).Set(float64(pr.listenersInUse()))
	}
}

// RunGaugeSampler periodically samples listener gauges until ctx is done.
func (p *Pool) RunGaugeSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SampleListenerGauges()
		}
	}
}

// Close gracefully shuts down every cached provider.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for appID, pr := range p.providers {
		pr.close()
		telemetry.APNsListenersInUse.DeleteLabelValues(appID)
	}
	p.providers = make(map[string]*provider)
	telemetry.ProviderCacheSize.WithLabelValues("ios").Set(0)
}
