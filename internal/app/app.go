// Package app wires the gateway's dependencies together and runs the server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/pushgate/internal/config"
	"github.com/wisbric/pushgate/internal/httpserver"
	"github.com/wisbric/pushgate/internal/platform"
	"github.com/wisbric/pushgate/internal/telemetry"
	"github.com/wisbric/pushgate/pkg/admission"
	"github.com/wisbric/pushgate/pkg/apns"
	"github.com/wisbric/pushgate/pkg/credential"
	"github.com/wisbric/pushgate/pkg/fcm"
	"github.com/wisbric/pushgate/pkg/nonce"
	"github.com/wisbric/pushgate/pkg/notify"
)

const (
	adminSessionMaxAge  = 12 * time.Hour
	noncePurgeInterval  = time.Minute
	listenerGaugeTick   = 5 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

// Run builds every dependency, starts the HTTP server, and blocks until ctx
// is cancelled, then drains in-flight requests and releases every resource.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	credStore := credential.NewStore(db)

	settings, err := credStore.EnsureAdminSettings(ctx, cfg.AdminBasePath, cfg.AdminSessionSecret)
	if err != nil {
		return fmt.Errorf("provisioning admin settings: %w", err)
	}
	if settings.GeneratedPath {
		logger.Warn("generated admin base path; record this, it will not be logged again", "admin_base_path", settings.BasePath)
	}
	if settings.WeakPath {
		logger.Warn("admin base path is guessable; set ADMIN_BASE_PATH to a random value", "admin_base_path", settings.BasePath)
	}
	if settings.GeneratedSecret {
		logger.Warn("generated admin session secret; record this, it will not be logged again", "admin_session_secret", settings.SessionSecret)
	}

	bootstrap, err := credStore.EnsureAdminUser(ctx, cfg.AdminBootstrapUser, cfg.AdminBootstrapPassword)
	if err != nil {
		return fmt.Errorf("provisioning admin user: %w", err)
	}
	if bootstrap.Created {
		fields := []any{"username", bootstrap.Username}
		if bootstrap.GeneratedPassword != "" {
			fields = append(fields, "generated_password", bootstrap.GeneratedPassword)
		}
		logger.Warn("created bootstrap admin user; record these credentials, they will not be logged again", fields...)
	}

	nonceStore := nonce.NewStore(db, logger)
	purgeCtx, cancelPurge := context.WithCancel(ctx)
	defer cancelPurge()
	go nonceStore.RunPurgeLoop(purgeCtx, noncePurgeInterval)

	iosPool := apns.NewPool(credentialAppConfigAdapter{credStore}, logger, cfg.APNsMaxListeners)
	defer iosPool.Close()
	go iosPool.RunGaugeSampler(purgeCtx, listenerGaugeTick)

	androidPool := fcm.NewPool(credentialAppConfigAdapter{credStore}, logger)
	defer androidPool.Close()

	credService := credential.NewService(credStore, logger, iosPool, androidPool)

	sessionMgr, err := credential.NewSessionManager(settings.SessionSecret, adminSessionMaxAge)
	if err != nil {
		return fmt.Errorf("building admin session manager: %w", err)
	}
	credHandler := credential.NewHandler(credService, sessionMgr, logger)

	notifyHandler := notify.NewHandler(credService, iosPool, androidPool, logger)

	limiter := admission.NewRateLimiter(rdb, cfg.RateLimitMax, time.Duration(cfg.RateLimitWindowMS)*time.Millisecond)
	pipeline := admission.NewPipeline(admission.Config{
		RequireHTTPS:       cfg.RequireHTTPS,
		TrustProxy:         cfg.TrustProxy,
		IPAllowlistEnabled: cfg.IPAllowlistEnabled,
		AllowedIPs:         cfg.AllowedIPs,
		RequireAuth:        cfg.AuthRequired(),
		RequireHMAC:        cfg.RequireHMAC,
		HMACWindow:         time.Duration(cfg.HMACWindowMS) * time.Millisecond,
		BodyLimitBytes:     cfg.BodyLimitBytes,
	}, limiter, credService, nonceStore)

	server := httpserver.NewServer(logger, httpserver.Dependencies{
		DB:            db,
		Redis:         rdb,
		Metrics:       metricsReg,
		NotifyHandler: pipeline.Wrap(notifyHandler),
		AdminHandler:  credHandler.Routes(),
		AdminBasePath: settings.BasePath,
	})

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pushgate listening", "addr", cfg.ListenAddr(), "admin_base_path", settings.BasePath)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}

	return nil
}

// credentialAppConfigAdapter narrows *credential.Store to the single-method
// CredentialSource interface shared by pkg/apns and pkg/fcm.
type credentialAppConfigAdapter struct {
	store *credential.Store
}

func (a credentialAppConfigAdapter) GetAppConfig(ctx context.Context, appID string) (*credential.AppConfig, error) {
	return a.store.GetAppConfig(ctx, appID)
}
