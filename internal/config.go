package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cloud providers.
const (
	CloudProviderMemory  = "memory"
	CloudProviderDropbox = "dropbox"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Browser BrowserConfig     `yaml:"browser"`
	Cloud   CloudConfig       `yaml:"cloud"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	return c.Cloud.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	SSE      SSEConfig  `yaml:"sse"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SSEConfig tunes the server-sent-events broker.
type SSEConfig struct {
	ShelvesThrottleSeconds int `yaml:"shelves_throttle_seconds"`
}

// ShelvesThrottle returns the minimum delay between shelves.changed
// events.
func (c *SSEConfig) ShelvesThrottle() time.Duration {
	return time.Duration(c.ShelvesThrottleSeconds) * time.Second
}

// SQLiteConfig holds the node database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BrowserConfig controls the browser bookmarks mirror.
type BrowserConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BookmarksFile string `yaml:"bookmarks_file"`
}

// Validate validates the browser configuration.
func (c *BrowserConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BookmarksFile, validation.Required),
	)
}

// CloudConfig controls the cloud shelf synchronization.
type CloudConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Provider    string        `yaml:"provider"`
	SyncMinutes int           `yaml:"sync_minutes"`
	Dropbox     DropboxConfig `yaml:"dropbox"`
}

// SyncInterval returns the background reconciliation period.
func (c *CloudConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncMinutes) * time.Minute
}

// Validate validates the cloud configuration.
func (c *CloudConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Provider == "" {
		c.Provider = CloudProviderDropbox
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(CloudProviderMemory, CloudProviderDropbox)),
	); err != nil {
		return err
	}
	if c.Provider == CloudProviderDropbox {
		return c.Dropbox.Validate()
	}
	return nil
}

// DropboxConfig holds the Dropbox application credentials.
type DropboxConfig struct {
	AppKey       string `yaml:"app_key"`
	AppSecret    string `yaml:"app_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// Validate validates the Dropbox configuration.
func (c *DropboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AppKey, validation.Required),
		validation.Field(&c.AppSecret, validation.Required),
		validation.Field(&c.RefreshToken, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			SSE: SSEConfig{
				ShelvesThrottleSeconds: 2,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./othala.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Cloud: CloudConfig{
			Provider:    CloudProviderDropbox,
			SyncMinutes: 15,
		},
	}
}
