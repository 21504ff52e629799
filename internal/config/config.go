package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/tokenstore"
)

// Defaults.
const (
	DefaultAddr         = "127.0.0.1:8765"
	DefaultCallbackPath = "/oauth/callback"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Environment variables read by Load.
const (
	EnvGoogleClientID    = "GOOGLE_CLIENT_ID"
	EnvMicrosoftClientID = "MICROSOFT_CLIENT_ID"
	EnvMicrosoftTenant   = "MICROSOFT_TENANT"
	EnvAddr              = "HOMEDASH_ADDR"
	EnvStorage           = "HOMEDASH_STORAGE"
	EnvStorageDir        = "HOMEDASH_STORAGE_DIR"
	EnvRedisURL          = "HOMEDASH_REDIS_URL"
	EnvEncryptionKey     = "HOMEDASH_ENCRYPTION_KEY"
	EnvLogLevel          = "HOMEDASH_LOG_LEVEL"
	EnvLogFormat         = "HOMEDASH_LOG_FORMAT"
	EnvPopupTimeout      = "HOMEDASH_POPUP_TIMEOUT"
)

// Config is the homedash configuration.
type Config struct {
	Server struct {
		Addr         string `yaml:"addr"`
		CallbackPath string `yaml:"callback_path"`
	} `yaml:"server"`

	Google struct {
		ClientID string `yaml:"client_id"`
	} `yaml:"google"`

	Microsoft struct {
		ClientID string `yaml:"client_id"`
		Tenant   string `yaml:"tenant"`
	} `yaml:"microsoft"`

	Popup struct {
		Timeout          time.Duration `yaml:"timeout"`
		PollInterval     time.Duration `yaml:"poll_interval"`
		RejectConcurrent bool          `yaml:"reject_concurrent"`
	} `yaml:"popup"`

	Storage struct {
		Kind          string `yaml:"kind"`
		Dir           string `yaml:"dir"`
		EncryptionKey string `yaml:"encryption_key"`
		Redis         struct {
			URL    string `yaml:"url"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		// DisableToolInvocations turns off the per-call MCP tool log.
		DisableToolInvocations bool `yaml:"disable_tool_invocations"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// DefaultPath returns $XDG_CONFIG_HOME/homedash/config.yaml, falling back to
// ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "homedash", "config.yaml")
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path and applies defaults and environment
// overrides. An empty path means DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	c.applyDefaults()
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.CallbackPath == "" {
		c.Server.CallbackPath = DefaultCallbackPath
	}
	if c.Microsoft.Tenant == "" {
		c.Microsoft.Tenant = provider.DefaultMicrosoftTenant
	}
	if c.Popup.Timeout == 0 {
		c.Popup.Timeout = popup.DefaultTimeout
	}
	if c.Popup.PollInterval == 0 {
		c.Popup.PollInterval = popup.DefaultPollInterval
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = tokenstore.BackendFile
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func (c *Config) applyEnvOverrides() error {
	if v, ok := getEnvStr(EnvGoogleClientID); ok {
		c.Google.ClientID = v
	}
	if v, ok := getEnvStr(EnvMicrosoftClientID); ok {
		c.Microsoft.ClientID = v
	}
	if v, ok := getEnvStr(EnvMicrosoftTenant); ok {
		c.Microsoft.Tenant = v
	}
	if v, ok := getEnvStr(EnvAddr); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr(EnvStorage); ok {
		c.Storage.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr(EnvStorageDir); ok {
		c.Storage.Dir = v
	}
	if v, ok := getEnvStr(EnvRedisURL); ok {
		c.Storage.Redis.URL = v
	}
	if v, ok := getEnvStr(EnvEncryptionKey); ok {
		c.Storage.EncryptionKey = v
	}
	if v, ok := getEnvStr(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr(EnvLogFormat); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := getEnvStr(EnvPopupTimeout); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPopupTimeout, err)
		}
		c.Popup.Timeout = d
	}
	return nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr: %w", err))
	}
	if !strings.HasPrefix(c.Server.CallbackPath, "/") {
		errs = append(errs, fmt.Errorf("server.callback_path must start with /"))
	}
	if len(c.ClientIDs()) == 0 {
		errs = append(errs, fmt.Errorf("no provider configured: set %s or %s", EnvGoogleClientID, EnvMicrosoftClientID))
	}
	if c.Popup.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("popup.timeout must be positive"))
	}
	if c.Popup.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("popup.poll_interval must be positive"))
	}

	switch c.Storage.Kind {
	case tokenstore.BackendFile, tokenstore.BackendMemory:
	case tokenstore.BackendRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("storage.redis.url is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.kind %q is not one of file, redis, memory", c.Storage.Kind))
	}
	if _, err := c.EncryptionKey(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ClientIDs returns the configured client ID per provider.
func (c *Config) ClientIDs() map[provider.ID]string {
	ids := make(map[provider.ID]string)
	if c.Google.ClientID != "" {
		ids[provider.Google] = c.Google.ClientID
	}
	if c.Microsoft.ClientID != "" {
		ids[provider.Microsoft] = c.Microsoft.ClientID
	}
	return ids
}

// AppOrigin is the origin of the landing page, the only origin whose
// messages the popup channel trusts.
func (c *Config) AppOrigin() string {
	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return "http://" + c.Server.Addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// RedirectURI is the landing page URL registered with the providers.
func (c *Config) RedirectURI() string {
	return c.AppOrigin() + c.Server.CallbackPath
}

// PopupConfig returns the popup channel configuration.
func (c *Config) PopupConfig() popup.Config {
	return popup.Config{
		ClientIDs:        c.ClientIDs(),
		RedirectURI:      c.RedirectURI(),
		AppOrigin:        c.AppOrigin(),
		Timeout:          c.Popup.Timeout,
		PollInterval:     c.Popup.PollInterval,
		RejectConcurrent: c.Popup.RejectConcurrent,
	}
}

// BackendConfig returns the token store backend configuration.
func (c *Config) BackendConfig() tokenstore.BackendConfig {
	return tokenstore.BackendConfig{
		Kind:        c.Storage.Kind,
		Dir:         c.Storage.Dir,
		RedisURL:    c.Storage.Redis.URL,
		RedisPrefix: c.Storage.Redis.Prefix,
	}
}

// EncryptionKey decodes the base64 storage key. It returns nil when none is
// set.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Storage.EncryptionKey == "" {
		return nil, nil
	}
	key, err := oauth.EncryptionKeyFromBase64(c.Storage.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: %w", err)
	}
	return key, nil
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parseDuration accepts Go durations and plain seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
