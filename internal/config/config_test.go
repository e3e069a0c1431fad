package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 3000",
			check:  func(c *Config) bool { return c.Port == 3000 },
			expect: "3000",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "require HMAC defaults true",
			check:  func(c *Config) bool { return c.RequireHMAC },
			expect: "true",
		},
		{
			name:   "require HTTPS defaults false",
			check:  func(c *Config) bool { return !c.RequireHTTPS },
			expect: "false",
		},
		{
			name:   "rate limit window default",
			check:  func(c *Config) bool { return c.RateLimitWindowMS == 60000 },
			expect: "60000",
		},
		{
			name:   "rate limit max default",
			check:  func(c *Config) bool { return c.RateLimitMax == 120 },
			expect: "120",
		},
		{
			name:   "body limit default",
			check:  func(c *Config) bool { return c.BodyLimitBytes == 204800 },
			expect: "204800",
		},
		{
			name:   "apns max listeners default",
			check:  func(c *Config) bool { return c.APNsMaxListeners == 75 },
			expect: "75",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:3000" },
			expect: "0.0.0.0:3000",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestAuthRequiredDefaultsToInverseOfHMAC(t *testing.T) {
	cfg := &Config{RequireHMAC: true}
	if cfg.AuthRequired() {
		t.Errorf("expected auth disabled when HMAC required and REQUIRE_AUTH unset")
	}

	cfg = &Config{RequireHMAC: false}
	if !cfg.AuthRequired() {
		t.Errorf("expected auth enabled when HMAC disabled and REQUIRE_AUTH unset")
	}

	enabled := true
	cfg = &Config{RequireHMAC: true, RequireAuth: &enabled}
	if !cfg.AuthRequired() {
		t.Errorf("expected explicit REQUIRE_AUTH=true to win")
	}
}
