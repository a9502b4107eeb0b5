package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "CIVREG"

// Config holds runtime configuration for the API server. Every field is read
// from CIVREG_-prefixed environment variables.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	Addr     string `envconfig:"ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// PGDSN selects PostgreSQL storage; empty means in-memory.
	PGDSN string `envconfig:"PG_DSN"`
	// RedisAddr enables token revocation on logout; empty means stateless logout.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"CivicRegistryAPI"`
	JWTAudience   string `envconfig:"JWT_AUDIENCE" default:"CivicRegistryClient"`
	JWTTTLMinutes int    `envconfig:"JWT_TTL_MINUTES" default:"1440"`

	// JWTRefreshWindowMinutes is how long after expiry a token may be refreshed.
	JWTRefreshWindowMinutes int `envconfig:"JWT_REFRESH_WINDOW_MINUTES" default:"10080"`

	RateBurst       int     `envconfig:"RATE_BURST" default:"100"`
	RatePerSec      float64 `envconfig:"RATE_PER_SEC" default:"50"`
	LoginRatePerMin int     `envconfig:"LOGIN_RATE_PER_MIN" default:"10"`

	BootstrapAdminUsername string `envconfig:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	Version string `envconfig:"VERSION" default:"dev"`
	Commit  string `envconfig:"COMMIT" default:"none"`

	// SecretGenerated is set when JWTSecret was generated for this process.
	SecretGenerated bool `ignored:"true"`
}

// Load reads configuration from environment variables. Outside development a
// missing JWT secret is an error; in development a random per-process secret
// is generated and SecretGenerated is set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("CIVREG_JWT_SECRET must be provided outside development")
		}
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
		cfg.SecretGenerated = true
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTTTLMinutes <= 0 {
		return fmt.Errorf("CIVREG_JWT_TTL_MINUTES must be positive, got %d", c.JWTTTLMinutes)
	}
	if c.JWTRefreshWindowMinutes < 0 {
		return fmt.Errorf("CIVREG_JWT_REFRESH_WINDOW_MINUTES must not be negative, got %d", c.JWTRefreshWindowMinutes)
	}
	if c.RatePerSec <= 0 || c.RateBurst <= 0 {
		return errors.New("CIVREG_RATE_PER_SEC and CIVREG_RATE_BURST must be positive")
	}
	if c.LoginRatePerMin <= 0 {
		return errors.New("CIVREG_LOGIN_RATE_PER_MIN must be positive")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.Env == "development"
}

// TokenTTL is JWTTTLMinutes as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// RefreshWindow is JWTRefreshWindowMinutes as a duration.
func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.JWTRefreshWindowMinutes) * time.Minute
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
