package credential

import (
	"context"
	"fmt"
	"log/slog"
)

// Invalidator evicts a cached per-tenant provider so the next send observes
// a freshly written credential. pkg/apns.Pool and pkg/fcm.Pool both satisfy
// this; Service depends only on the interface to avoid an import cycle.
type Invalidator interface {
	Invalidate(appID string)
}

// Service wraps Store with the credential-write invalidation contract: admin
// writes that change iOS or Android credentials must publish the
// invalidation before returning success.
type Service struct {
	store   *Store
	logger  *slog.Logger
	ios     Invalidator
	android Invalidator
}

// NewService creates a Service. Either invalidator may be nil (e.g. in tests).
func NewService(store *Store, logger *slog.Logger, iosInvalidator, androidInvalidator Invalidator) *Service {
	return &Service{store: store, logger: logger, ios: iosInvalidator, android: androidInvalidator}
}

// EnsureAdminSettings provisions the admin base path and session secret on first run.
func (s *Service) EnsureAdminSettings(ctx context.Context, desiredBasePath, desiredSecret string) (*BootstrapSettingsResult, error) {
	return s.store.EnsureAdminSettings(ctx, desiredBasePath, desiredSecret)
}

// EnsureAdminUser provisions the bootstrap admin account on first run.
func (s *Service) EnsureAdminUser(ctx context.Context, username, password string) (*BootstrapUserResult, error) {
	return s.store.EnsureAdminUser(ctx, username, password)
}

// Authenticate verifies a username/password pair against the stored admin account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*AdminUser, error) {
	u, err := s.store.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return nil, ErrNotFound
	}
	return u, nil
}

// ChangePassword replaces the admin's password hash. Callers must verify the
// current password (via Authenticate) before calling this.
func (s *Service) ChangePassword(ctx context.Context, adminID int64, newPassword string) error {
	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing new password: %w", err)
	}
	return s.store.UpdateAdminPassword(ctx, adminID, newHash)
}

// ListApps returns every registered app.
func (s *Service) ListApps(ctx context.Context) ([]App, error) {
	return s.store.ListApps(ctx)
}

// GetApp returns one app regardless of enabled state.
func (s *Service) GetApp(ctx context.Context, id string) (*App, error) {
	return s.store.GetApp(ctx, id)
}

// GetAppConfig returns the data-plane credential bundle, opaque for disabled/missing apps.
func (s *Service) GetAppConfig(ctx context.Context, id string) (*AppConfig, error) {
	return s.store.GetAppConfig(ctx, id)
}

// GetAPISecret returns the stored secret, opaque for disabled/missing apps.
func (s *Service) GetAPISecret(ctx context.Context, id string) (string, error) {
	return s.store.GetAPISecret(ctx, id)
}

// CreateApp registers a new app with a freshly generated API secret.
func (s *Service) CreateApp(ctx context.Context, id, displayName string) (*App, error) {
	return s.store.CreateApp(ctx, id, displayName)
}

// UpdateApp changes the display name and enabled flag of an app.
func (s *Service) UpdateApp(ctx context.Context, id, displayName string, enabled bool) (*App, error) {
	return s.store.UpdateApp(ctx, id, displayName, enabled)
}

// RotateSecret replaces an app's API secret atomically.
func (s *Service) RotateSecret(ctx context.Context, id string) (string, error) {
	return s.store.RotateSecret(ctx, id)
}

// UpsertIosConfig writes the iOS credential and invalidates the cached APNs
// provider for this app before returning, so the next send uses it.
func (s *Service) UpsertIosConfig(ctx context.Context, cred IOSCredential) error {
	if err := s.store.UpsertIosConfig(ctx, cred); err != nil {
		return err
	}
	if s.ios != nil {
		s.ios.Invalidate(cred.AppID)
	}
	return nil
}

// DeleteIosConfig removes the iOS credential and invalidates the cached provider.
func (s *Service) DeleteIosConfig(ctx context.Context, appID string) error {
	if err := s.store.DeleteIosConfig(ctx, appID); err != nil {
		return err
	}
	if s.ios != nil {
		s.ios.Invalidate(appID)
	}
	return nil
}

// UpsertAndroidConfig writes the Android credential and invalidates the
// cached FCM client for this app before returning.
func (s *Service) UpsertAndroidConfig(ctx context.Context, cred AndroidCredential) error {
	if err := s.store.UpsertAndroidConfig(ctx, cred); err != nil {
		return err
	}
	if s.android != nil {
		s.android.Invalidate(cred.AppID)
	}
	return nil
}

// DeleteAndroidConfig removes the Android credential and invalidates the cached client.
func (s *Service) DeleteAndroidConfig(ctx context.Context, appID string) error {
	if err := s.store.DeleteAndroidConfig(ctx, appID); err != nil {
		return err
	}
	if s.android != nil {
		s.android.Invalidate(appID)
	}
	return nil
}
