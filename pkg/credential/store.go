package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAppExists is returned by CreateApp when the app id is already taken.
var ErrAppExists = errors.New("app already exists")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// weakPathTokens are substrings that make an admin base path guessable and
// therefore weak.
var weakPathTokens = []string{"admin", "panel", "manage", "sys"}

// Store provides durable operations for apps, credentials, and admin bootstrap state.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a credential Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func randomAPISecret() (string, error) {
	return randomHex(32) // 64 hex chars
}

func isWeakPath(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	if len(trimmed) < 12 {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, tok := range weakPathTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func normalizeBasePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("admin base path must not be empty")
	}
	if strings.ContainsAny(path, " \t\n\r") {
		return "", fmt.Errorf("admin base path must not contain whitespace")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "", fmt.Errorf("admin base path must not be empty")
	}
	return path, nil
}

// EnsureAdminSettings is idempotent. On first call it normalizes
// desiredBasePath (or generates a random one) and provisions a session
// secret (caller-supplied desiredSecret, or random). Subsequent calls return
// the previously stored values untouched.
func (s *Store) EnsureAdminSettings(ctx context.Context, desiredBasePath, desiredSecret string) (*BootstrapSettingsResult, error) {
	existingPath, pathErr := s.getSetting(ctx, SettingAdminBasePath)
	existingSecret, secretErr := s.getSetting(ctx, SettingAdminSessionSecret)

	result := &BootstrapSettingsResult{}

	if pathErr == nil {
		result.BasePath = existingPath
	} else if !errors.Is(pathErr, ErrNotFound) {
		return nil, pathErr
	} else {
		basePath := desiredBasePath
		if basePath == "" {
			generated, err := randomHex(10) // 20 hex chars
			if err != nil {
				return nil, err
			}
			basePath = "/" + generated
			result.GeneratedPath = true
		} else {
			normalized, err := normalizeBasePath(basePath)
			if err != nil {
				return nil, err
			}
			basePath = normalized
		}
		if err := s.setSetting(ctx, SettingAdminBasePath, basePath); err != nil {
			return nil, err
		}
		result.BasePath = basePath
	}
	result.WeakPath = isWeakPath(result.BasePath)

	if secretErr == nil {
		result.SessionSecret = existingSecret
	} else if !errors.Is(secretErr, ErrNotFound) {
		return nil, secretErr
	} else {
		secret := desiredSecret
		if secret == "" {
			generated, err := randomHex(32) // 64 hex chars
			if err != nil {
				return nil, err
			}
			secret = generated
			result.GeneratedSecret = true
		}
		if err := s.setSetting(ctx, SettingAdminSessionSecret, secret); err != nil {
			return nil, err
		}
		result.SessionSecret = secret
	}

	return result, nil
}

func (s *Store) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM admin_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading admin setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing admin setting %s: %w", key, err)
	}
	return nil
}

// EnsureAdminUser is idempotent: it inserts exactly one row iff no admin user
// exists. If password is empty, a random 24-hex password is generated and
// reported back exactly once via BootstrapUserResult.GeneratedPassword.
func (s *Store) EnsureAdminUser(ctx context.Context, username, password string) (*BootstrapUserResult, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM admin_users`).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting admin users: %w", err)
	}
	if count > 0 {
		return &BootstrapUserResult{Created: false}, nil
	}

	generatedPassword := ""
	if password == "" {
		generated, err := randomHex(12) // 24 hex chars
		if err != nil {
			return nil, err
		}
		password = generated
		generatedPassword = generated
	}
	if username == "" {
		username = "admin"
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing bootstrap password: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO admin_users (username, password_hash) VALUES ($1, $2)
	`, username, hash); err != nil {
		return nil, fmt.Errorf("inserting admin user: %w", err)
	}

	return &BootstrapUserResult{
		Created:           true,
		Username:          username,
		GeneratedPassword: generatedPassword,
	}, nil
}

// GetAdminByUsername looks up the admin account by username.
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*AdminUser, error) {
	var u AdminUser
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM admin_users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up admin user: %w", err)
	}
	return &u, nil
}

// UpdateAdminPassword replaces the stored password hash for the given admin id.
func (s *Store) UpdateAdminPassword(ctx context.Context, id int64, newHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admin_users SET password_hash = $1, updated_at = now() WHERE id = $2
	`, newHash, id)
	if err != nil {
		return fmt.Errorf("updating admin password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListApps returns every registered app.
func (s *Store) ListApps(ctx context.Context) ([]App, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, api_secret, enabled, created_at, updated_at
		FROM apps ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	defer rows.Close()

	var apps []App
	for rows.Next() {
		var a App
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.APISecret, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning app row: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating app rows: %w", err)
	}
	return apps, nil
}

// GetApp returns the app record regardless of enabled state (admin-only view).
func (s *Store) GetApp(ctx context.Context, id string) (*App, error) {
	var a App
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, api_secret, enabled, created_at, updated_at
		FROM apps WHERE id = $1
	`, id).Scan(&a.ID, &a.DisplayName, &a.APISecret, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting app: %w", err)
	}
	return &a, nil
}

// GetAPISecret returns the stored API secret for an app, but returns
// ErrNotFound for a disabled or missing app so the edge cannot distinguish
// the two cases.
func (s *Store) GetAPISecret(ctx context.Context, id string) (string, error) {
	var secret string
	err := s.pool.QueryRow(ctx, `
		SELECT api_secret FROM apps WHERE id = $1 AND enabled
	`, id).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting api secret: %w", err)
	}
	return secret, nil
}

// GetAppConfig returns the tenant's credential bundle only when the app is
// enabled; iOS/Android credentials with non-inline key material are never
// persisted in this schema, so every row returned here is safe to dereference.
func (s *Store) GetAppConfig(ctx context.Context, id string) (*AppConfig, error) {
	app, err := s.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.Enabled {
		return nil, ErrNotFound
	}

	cfg := &AppConfig{App: *app}

	var ios IOSCredential
	err = s.pool.QueryRow(ctx, `
		SELECT app_id, team_id, key_id, private_key, production, created_at, updated_at
		FROM ios_credentials WHERE app_id = $1
	`, id).Scan(&ios.AppID, &ios.TeamID, &ios.KeyID, &ios.PrivateKey, &ios.Production, &ios.CreatedAt, &ios.UpdatedAt)
	switch {
	case err == nil:
		cfg.IOS = &ios
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("getting ios credential: %w", err)
	}

	var android AndroidCredential
	err = s.pool.QueryRow(ctx, `
		SELECT app_id, service_account_json, created_at, updated_at
		FROM android_credentials WHERE app_id = $1
	`, id).Scan(&android.AppID, &android.ServiceAccountJSON, &android.CreatedAt, &android.UpdatedAt)
	switch {
	case err == nil:
		cfg.Android = &android
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("getting android credential: %w", err)
	}

	return cfg, nil
}

// CreateApp inserts a new app with a freshly generated API secret. It fails
// with ErrAppExists if the id is already taken.
func (s *Store) CreateApp(ctx context.Context, id, displayName string) (*App, error) {
	secret, err := randomAPISecret()
	if err != nil {
		return nil, err
	}

	var a App
	err = s.pool.QueryRow(ctx, `
		INSERT INTO apps (id, display_name, api_secret)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, display_name, api_secret, enabled, created_at, updated_at
	`, id, displayName, secret).Scan(&a.ID, &a.DisplayName, &a.APISecret, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	return &a, nil
}

// UpdateApp changes the display name and enabled flag of an existing app.
func (s *Store) UpdateApp(ctx context.Context, id, displayName string, enabled bool) (*App, error) {
	var a App
	err := s.pool.QueryRow(ctx, `
		UPDATE apps SET display_name = $2, enabled = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, api_secret, enabled, created_at, updated_at
	`, id, displayName, enabled).Scan(&a.ID, &a.DisplayName, &a.APISecret, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating app: %w", err)
	}
	return &a, nil
}

// RotateSecret replaces the app's API secret atomically and returns the new value.
func (s *Store) RotateSecret(ctx context.Context, id string) (string, error) {
	secret, err := randomAPISecret()
	if err != nil {
		return "", err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE apps SET api_secret = $2, updated_at = now() WHERE id = $1
	`, id, secret)
	if err != nil {
		return "", fmt.Errorf("rotating secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotFound
	}
	return secret, nil
}

// UpsertIosConfig writes the iOS credential for an app: update on match, else insert.
func (s *Store) UpsertIosConfig(ctx context.Context, cred IOSCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ios_credentials (app_id, team_id, key_id, private_key, production)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			key_id = EXCLUDED.key_id,
			private_key = EXCLUDED.private_key,
			production = EXCLUDED.production,
			updated_at = now()
	`, cred.AppID, cred.TeamID, cred.KeyID, cred.PrivateKey, cred.Production)
	if err != nil {
		return fmt.Errorf("upserting ios credential: %w", err)
	}
	return nil
}

// DeleteIosConfig removes the iOS credential for an app.
func (s *Store) DeleteIosConfig(ctx context.Context, appID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ios_credentials WHERE app_id = $1`, appID)
	if err != nil {
		return fmt.Errorf("deleting ios credential: %w", err)
	}
	return nil
}

// UpsertAndroidConfig writes the Android credential for an app: update on match, else insert.
func (s *Store) UpsertAndroidConfig(ctx context.Context, cred AndroidCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO android_credentials (app_id, service_account_json)
		VALUES ($1, $2)
		ON CONFLICT (app_id) DO UPDATE SET
			service_account_json = EXCLUDED.service_account_json,
			updated_at = now()
	`, cred.AppID, cred.ServiceAccountJSON)
	if err != nil {
		return fmt.Errorf("upserting android credential: %w", err)
	}
	return nil
}

// DeleteAndroidConfig removes the Android credential for an app.
func (s *Store) DeleteAndroidConfig(ctx context.Context, appID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM android_credentials WHERE app_id = $1`, appID)
	if err != nil {
		return fmt.Errorf("deleting android credential: %w", err)
	}
	return nil
}
