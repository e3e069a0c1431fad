// Package credential is the durable tenant and credential store: apps, API
// secrets, APNs keys, and FCM service-account material, plus the admin
// bootstrap and HTTP surface used to manage them.
package credential

import (
	"regexp"
	"strings"
	"time"
)

// appIDPattern matches the bundle-id shape: alphanumerics, dots, underscores,
// and hyphens, with at least one dot.
var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidAppID reports whether id has the bundle-id shape §3 requires.
func ValidAppID(id string) bool {
	return appIDPattern.MatchString(id) && strings.Contains(id, ".")
}

// App is a registered tenant identity, keyed by a developer-supplied
// bundle-id-shaped string.
type App struct {
	ID          string
	DisplayName string
	APISecret   string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IOSCredential holds the APNs key material for one app.
type IOSCredential struct {
	AppID      string
	TeamID     string
	KeyID      string
	PrivateKey string
	Production bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AndroidCredential holds the FCM service-account JSON for one app.
type AndroidCredential struct {
	AppID              string
	ServiceAccountJSON string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppConfig is the tenant's credential bundle as returned to the data plane:
// only populated when the app is enabled, and only with inline key material.
type AppConfig struct {
	App     App
	IOS     *IOSCredential
	Android *AndroidCredential
}

// AdminUser is the single bootstrap administrator account.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Well-known admin_settings keys.
const (
	SettingAdminBasePath     = "admin_base_path"
	SettingAdminSessionSecret = "admin_session_secret"
)

// BootstrapSettingsResult reports what ensureAdminSettings did.
type BootstrapSettingsResult struct {
	BasePath         string
	SessionSecret    string
	GeneratedPath    bool
	GeneratedSecret  bool
	WeakPath         bool
}

// BootstrapUserResult reports what ensureAdminUser did.
type BootstrapUserResult struct {
	Created           bool
	Username          string
	GeneratedPassword string // only set when Created && password was generated
}
