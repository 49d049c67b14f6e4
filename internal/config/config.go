// Package config loads and validates service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the service needs at startup. Env vars override
// .env values.
type Config struct {
	// HTTPAddr is the listen address for the HTTP API (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment: "development" or "production".
	// Production turns on Secure cookies.
	Env string `mapstructure:"APP_ENV"`

	// DatabaseURL is the Postgres DSN for sessions and users.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for challenges, temp sessions, and
	// rate-limit counters.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is optional.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTAccessSecret and JWTRefreshSecret sign the two token kinds and
	// must differ.
	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// AccessTTL is the access token lifetime (e.g. "15m").
	AccessTTL time.Duration `mapstructure:"ACCESS_TTL"`
	// RefreshTTL bounds both the refresh token and the session row.
	RefreshTTL time.Duration `mapstructure:"REFRESH_TTL"`

	// MFAChallengeTTL bounds the one-time code (e.g. "60s").
	MFAChallengeTTL time.Duration `mapstructure:"MFA_CHALLENGE_TTL"`
	// TempSessionTTL bounds the password-to-MFA bridge state.
	TempSessionTTL time.Duration `mapstructure:"TEMP_SESSION_TTL"`

	// SMTP settings; when SMTPAddr is empty, codes go to the log instead.
	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// AuditBufferSize is the audit dispatcher queue depth; 0 disables
	// auditing.
	AuditBufferSize int `mapstructure:"AUDIT_BUFFER_SIZE"`
}

// Production reports whether the service runs with production hardening.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment. A missing .env is not
// an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_ISSUER", "authd")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h")
	v.SetDefault("MFA_CHALLENGE_TTL", "60s")
	v.SetDefault("TEMP_SESSION_TTL", "10m")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("AUDIT_BUFFER_SIZE", 1024)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("config: token TTLs must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("config: ACCESS_TTL must be shorter than REFRESH_TTL")
	}
	return &cfg, nil
}
