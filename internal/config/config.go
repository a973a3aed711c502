// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authgate configuration from defaults, a YAML file,
// command-line flags and environment secrets, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/logging"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process-wide configuration. It is built once at startup and
// not modified afterwards.
type Config struct {
	Env        string           `koanf:"env"`
	HTTP       HTTPConfig       `koanf:"http"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Store      StoreConfig      `koanf:"store"`
	Auth       AuthConfig       `koanf:"auth"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Revocation RevocationConfig `koanf:"revocation"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Driver         string `koanf:"driver"`
	DatabaseURL    string `koanf:"database_url"`
	AutoMigrate    bool   `koanf:"auto_migrate"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// AuthConfig holds the authentication policy.
type AuthConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenExpiry       time.Duration `koanf:"token_expiry"`
	LockoutThreshold  int           `koanf:"lockout_threshold"`
	LockoutDuration   time.Duration `koanf:"lockout_duration"`
	MinPasswordLength int           `koanf:"min_password_length"`
	StoreTimeout      time.Duration `koanf:"store_timeout"`
	CookieName        string        `koanf:"cookie_name"`
}

// RateLimitConfig limits register/login requests per client IP.
// LoginRPS of 0 disables the limiter.
type RateLimitConfig struct {
	LoginRPS   float64 `koanf:"login_rps"`
	LoginBurst int     `koanf:"login_burst"`
}

// RevocationConfig enables the Redis token deny-list.
type RevocationConfig struct {
	Enabled   bool   `koanf:"enabled"`
	RedisAddr string `koanf:"redis_addr"`
	Prefix    string `koanf:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env: EnvDevelopment,
		HTTP: HTTPConfig{
			Addr: ":5500",
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{
			Driver:         DriverPostgres,
			ConnectRetries: 5,
		},
		Auth: AuthConfig{
			TokenExpiry:       auth.DefaultTokenExpiry,
			LockoutThreshold:  auth.DefaultLockoutThreshold,
			LockoutDuration:   auth.DefaultLockoutDuration,
			MinPasswordLength: auth.DefaultMinPasswordLength,
			StoreTimeout:      auth.DefaultStoreTimeout,
			CookieName:        "token",
		},
		RateLimit: RateLimitConfig{LoginRPS: 1, LoginBurst: 10},
		Revocation: RevocationConfig{
			Prefix: "authgate:revoked:",
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"env":                 "env",
	"http-addr":           "http.addr",
	"allowed-origins":     "http.allowed_origins",
	"metrics-addr":        "metrics.addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"store":               "store.driver",
	"auto-migrate":        "store.auto_migrate",
	"token-expiry":        "auth.token_expiry",
	"lockout-threshold":   "auth.lockout_threshold",
	"lockout-duration":    "auth.lockout_duration",
	"min-password-length": "auth.min_password_length",
	"revocation":          "revocation.enabled",
	"redis-addr":          "revocation.redis_addr",
}

// RegisterFlags adds the overridable settings to fs with built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("env", d.Env, "environment: development, production or test")
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("allowed-origins", nil, "CORS origins allowed to send credentials")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store", d.Store.Driver, "credential store driver (postgres or memory)")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup")
	fs.Duration("token-expiry", d.Auth.TokenExpiry, "session token lifetime")
	fs.Int("lockout-threshold", d.Auth.LockoutThreshold, "failed logins that lock an account")
	fs.Duration("lockout-duration", d.Auth.LockoutDuration, "how long a locked account stays locked")
	fs.Int("min-password-length", d.Auth.MinPasswordLength, "minimum password length at registration")
	fs.Bool("revocation", d.Revocation.Enabled, "revoke tokens on logout using Redis")
	fs.String("redis-addr", d.Revocation.RedisAddr, "Redis address for the revocation deny-list")
}

// Load builds the configuration. path may be empty; fs may be nil; getenv
// supplies secrets and may be nil.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}

	if getenv != nil {
		applyEnv(&cfg, getenv)
	}
	return &cfg, nil
}

// applyEnv overrides settings from environment variables that are set.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("AUTHGATE_ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Revocation.RedisAddr = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v := getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return invalid("env", c.Env, "env must be development, production or test")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "http address is required")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", c.Log.Format, "log format must be 'json' or 'text'")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return invalid("log.level", c.Log.Level, "log level must be debug, info, warn or error")
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "", "DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
		if c.Env == EnvProduction {
			return invalid("store.driver", c.Store.Driver, "memory store is not allowed in production")
		}
	default:
		return invalid("store.driver", c.Store.Driver, "store driver must be postgres or memory")
	}

	if c.Auth.JWTSecret == "" {
		return invalid("auth.jwt_secret", "", "JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return invalid("auth.jwt_secret", len(c.Auth.JWTSecret),
			fmt.Sprintf("JWT_SECRET must be at least %d bytes", auth.MinSecretLength))
	}
	if c.Auth.TokenExpiry <= 0 {
		return invalid("auth.token_expiry", c.Auth.TokenExpiry, "token expiry must be positive")
	}
	if err := c.Lockout().Validate(); err != nil {
		return err
	}
	if c.Auth.MinPasswordLength < 1 {
		return invalid("auth.min_password_length", c.Auth.MinPasswordLength, "minimum password length must be at least 1")
	}
	if c.Auth.StoreTimeout <= 0 {
		return invalid("auth.store_timeout", c.Auth.StoreTimeout, "store timeout must be positive")
	}
	if c.Auth.CookieName == "" {
		return invalid("auth.cookie_name", "", "cookie name is required")
	}

	if c.RateLimit.LoginRPS < 0 {
		return invalid("ratelimit.login_rps", c.RateLimit.LoginRPS, "login rate must not be negative")
	}
	if c.RateLimit.LoginRPS > 0 && c.RateLimit.LoginBurst < 1 {
		return invalid("ratelimit.login_burst", c.RateLimit.LoginBurst, "login burst must be at least 1")
	}

	if c.Revocation.Enabled && c.Revocation.RedisAddr == "" {
		return invalid("revocation.redis_addr", "", "redis address is required when revocation is enabled")
	}
	return nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Lockout returns the configured lockout policy.
func (c *Config) Lockout() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Auth.LockoutThreshold, Duration: c.Auth.LockoutDuration}
}

// ServiceConfig returns the settings the auth service reads.
func (c *Config) ServiceConfig() auth.ServiceConfig {
	return auth.ServiceConfig{
		Lockout:           c.Lockout(),
		MinPasswordLength: c.Auth.MinPasswordLength,
		StoreTimeout:      c.Auth.StoreTimeout,
	}
}

func invalid(key string, value any, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s", msg)
}
