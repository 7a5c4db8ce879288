package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store/seal"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig
	Secrets   SecretsConfig
	Flow      FlowConfig
	Storage   StorageConfig
	Providers ProvidersConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	Host    string `env:"HOST" envDefault:"0.0.0.0"`
	BaseURL string `env:"BASE_URL"`
}

// SecretsConfig holds cryptographic key material.
type SecretsConfig struct {
	MondaySigningSecret     string `env:"MONDAY_SIGNING_SECRET"`
	StateSigningKey         string `env:"STATE_SIGNING_KEY"`
	ConnectionEncryptionKey string `env:"CONNECTION_ENCRYPTION_KEY"`
}

// FlowConfig controls the OAuth handoff.
type FlowConfig struct {
	RequiredProviders  []string      `env:"REQUIRED_PROVIDERS" envSeparator:"," envDefault:"monday,github"`
	AllowedBackToHosts []string      `env:"ALLOWED_BACK_TO_HOSTS" envSeparator:","`
	StateTTL           time.Duration `env:"STATE_TTL" envDefault:"10m"`
	StateSingleUse     bool          `env:"STATE_SINGLE_USE" envDefault:"true"`
}

// StorageConfig selects and configures the connection store.
type StorageConfig struct {
	Driver      string      `env:"STORAGE_DRIVER" envDefault:"memory"`
	Redis       RedisConfig `envPrefix:"REDIS_"`
	SQLitePath  string      `env:"SQLITE_PATH" envDefault:"credlink.db"`
	PostgresDSN string      `env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type ProvidersConfig struct {
	GitHub ProviderConfig `envPrefix:"GITHUB_"`
	Monday ProviderConfig `envPrefix:"MONDAY_"`
}

// ProviderConfig holds OAuth client credentials. A provider is enabled by
// the presence of its client id.
type ProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

// Lookup returns the settings of a provider by name.
func (p ProvidersConfig) Lookup(name string) (ProviderConfig, bool) {
	switch name {
	case domain.ProviderGitHub:
		return p.GitHub, true
	case domain.ProviderMonday:
		return p.Monday, true
	default:
		return ProviderConfig{}, false
	}
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// CallbackURL is where provider name redirects after consent.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/oauth/callback/" + provider
}

// LoadFromEnv reads configuration purely from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	cfg.Flow.RequiredProviders = trimAll(cfg.Flow.RequiredProviders)
	cfg.Flow.AllowedBackToHosts = trimAll(cfg.Flow.AllowedBackToHosts)
	cfg.Providers.GitHub.Scopes = trimAll(cfg.Providers.GitHub.Scopes)
	cfg.Providers.Monday.Scopes = trimAll(cfg.Providers.Monday.Scopes)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("%w: BASE_URL is required", domain.ErrMissingConfig)
	}
	if cfg.Secrets.MondaySigningSecret == "" {
		return fmt.Errorf("%w: MONDAY_SIGNING_SECRET is required", domain.ErrMissingConfig)
	}
	if cfg.Secrets.StateSigningKey == "" {
		return fmt.Errorf("%w: STATE_SIGNING_KEY is required", domain.ErrMissingConfig)
	}
	if cfg.Secrets.ConnectionEncryptionKey == "" {
		return fmt.Errorf("%w: CONNECTION_ENCRYPTION_KEY is required", domain.ErrMissingConfig)
	}
	if n := len(cfg.Secrets.ConnectionEncryptionKey); n != seal.KeySize {
		return fmt.Errorf("%w: CONNECTION_ENCRYPTION_KEY must be exactly %d bytes, got %d",
			domain.ErrInvalidConfig, seal.KeySize, n)
	}
	if cfg.Flow.StateTTL <= 0 {
		return fmt.Errorf("%w: STATE_TTL must be positive", domain.ErrInvalidConfig)
	}

	if len(cfg.Flow.RequiredProviders) == 0 {
		return fmt.Errorf("%w: REQUIRED_PROVIDERS is empty", domain.ErrMissingConfig)
	}
	for _, name := range cfg.Flow.RequiredProviders {
		p, ok := cfg.Providers.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: unknown provider %q in REQUIRED_PROVIDERS", domain.ErrInvalidConfig, name)
		}
		if !p.Enabled() || p.ClientSecret == "" {
			upper := strings.ToUpper(name)
			return fmt.Errorf("%w: %s_CLIENT_ID and %s_CLIENT_SECRET are required", domain.ErrMissingConfig, upper, upper)
		}
	}

	switch cfg.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH is required", domain.ErrMissingConfig)
		}
	case DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required", domain.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", domain.ErrInvalidConfig, cfg.Storage.Driver)
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %v", domain.ErrInvalidConfig, err)
	}
	if !slices.Contains([]string{"json", "console"}, cfg.Log.Format) {
		return fmt.Errorf("%w: LOG_FORMAT must be json or console", domain.ErrInvalidConfig)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
