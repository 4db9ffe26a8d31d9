// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the holoauth configuration.
//
// Values come from flag defaults, an optional YAML file, changed flags and
// a small set of environment variables, in increasing order of precedence.
// The result is a plain struct that is validated once and then passed down
// by construction.
package config

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/token"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Mail providers.
const (
	MailLog      = "log"
	MailPostmark = "postmark"
)

const redactedValue = "[REDACTED]"

// Config is the complete service configuration.
type Config struct {
	Env       string          `koanf:"env" yaml:"env"`
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Token     TokenConfig     `koanf:"token" yaml:"token"`
	Cookie    CookieConfig    `koanf:"cookie" yaml:"cookie"`
	Challenge ChallengeConfig `koanf:"challenge" yaml:"challenge"`
	Stores    StoresConfig    `koanf:"stores" yaml:"stores"`
	Postgres  PostgresConfig  `koanf:"postgres" yaml:"postgres"`
	Redis     RedisConfig     `koanf:"redis" yaml:"redis"`
	Mail      MailConfig      `koanf:"mail" yaml:"mail"`
	Metrics   MetricsConfig   `koanf:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// TokenConfig configures session tokens.
type TokenConfig struct {
	Secret string        `koanf:"secret" yaml:"secret"`
	TTL    time.Duration `koanf:"ttl" yaml:"ttl"`
	Issuer string        `koanf:"issuer" yaml:"issuer"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string `koanf:"name" yaml:"name"`
	SameSite string `koanf:"same_site" yaml:"same_site"`
	Secure   bool   `koanf:"secure" yaml:"secure"`
}

// ChallengeConfig configures second-factor challenges.
type ChallengeConfig struct {
	TTL time.Duration `koanf:"ttl" yaml:"ttl"`
}

// StoresConfig selects a backend per store.
type StoresConfig struct {
	Users         string `koanf:"users" yaml:"users"`
	RevokedTokens string `koanf:"revoked_tokens" yaml:"revoked_tokens"`
	Challenges    string `koanf:"challenges" yaml:"challenges"`
}

// PostgresConfig configures the relational user store.
type PostgresConfig struct {
	URL         string `koanf:"url" yaml:"url"`
	MaxConns    int32  `koanf:"max_conns" yaml:"max_conns"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// RedisConfig configures the key-value stores.
type RedisConfig struct {
	Host            string `koanf:"host" yaml:"host"`
	Port            int    `koanf:"port" yaml:"port"`
	Password        string `koanf:"password" yaml:"password"`
	DB              int    `koanf:"db" yaml:"db"`
	RevokedPrefix   string `koanf:"revoked_prefix" yaml:"revoked_prefix"`
	ChallengePrefix string `koanf:"challenge_prefix" yaml:"challenge_prefix"`
}

// MailConfig configures the mailer.
type MailConfig struct {
	Provider string         `koanf:"provider" yaml:"provider"`
	Sender   string         `koanf:"sender" yaml:"sender"`
	Postmark PostmarkConfig `koanf:"postmark" yaml:"postmark"`
}

// PostmarkConfig configures the Postmark client.
type PostmarkConfig struct {
	BaseURL    string        `koanf:"base_url" yaml:"base_url"`
	Token      string        `koanf:"token" yaml:"token"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout"`
	MaxRetries uint64        `koanf:"max_retries" yaml:"max_retries"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return invalid("env", "must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}
	if c.Server.Addr == "" {
		return invalid("server.addr", "is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Token.Secret == "" {
		return invalid("token.secret", "is required (set JWT_SECRET)")
	}
	if len(c.Token.Secret) < token.MinSecretLength {
		return invalid("token.secret", "must be at least %d bytes", token.MinSecretLength)
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive")
	}
	if c.Challenge.TTL <= 0 {
		return invalid("challenge.ttl", "must be positive")
	}

	if c.Cookie.Name == "" {
		return invalid("cookie.name", "is required")
	}
	if _, err := ParseSameSite(c.Cookie.SameSite); err != nil {
		return err
	}
	if c.Env == EnvProduction && !c.Cookie.Secure {
		return invalid("cookie.secure", "must be true in production")
	}

	if err := c.validateStores(); err != nil {
		return err
	}
	return c.validateMail()
}

func (c *Config) validateStores() error {
	switch c.Stores.Users {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			return invalid("postgres.url", "is required for the postgres user store (set DATABASE_URL)")
		}
	default:
		return invalid("stores.users", "unknown backend %q", c.Stores.Users)
	}

	for key, kind := range map[string]string{
		"stores.revoked_tokens": c.Stores.RevokedTokens,
		"stores.challenges":     c.Stores.Challenges,
	} {
		if kind != StoreMemory && kind != StoreRedis {
			return invalid(key, "unknown backend %q", kind)
		}
	}
	if c.UsesRedis() && c.Redis.Host == "" {
		return invalid("redis.host", "is required for redis stores (set REDIS_HOST_NAME)")
	}
	return nil
}

func (c *Config) validateMail() error {
	switch c.Mail.Provider {
	case MailLog:
		return nil
	case MailPostmark:
		if c.Mail.Postmark.Token == "" {
			return invalid("mail.postmark.token", "is required (set POSTMARK_AUTH_TOKEN)")
		}
		if !strings.Contains(c.Mail.Sender, "@") {
			return invalid("mail.sender", "must be an email address, got %q", c.Mail.Sender)
		}
		if _, err := url.ParseRequestURI(c.Mail.Postmark.BaseURL); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "mail.postmark.base_url").Wrap(err)
		}
		return nil
	default:
		return invalid("mail.provider", "unknown provider %q", c.Mail.Provider)
	}
}

// UsesRedis reports whether any store is backed by Redis.
func (c *Config) UsesRedis() bool {
	return c.Stores.RevokedTokens == StoreRedis || c.Stores.Challenges == StoreRedis
}

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	out := c
	out.Token.Secret = redact(c.Token.Secret)
	out.Redis.Password = redact(c.Redis.Password)
	out.Mail.Postmark.Token = redact(c.Mail.Postmark.Token)
	if c.Postgres.URL != "" {
		if u, err := url.Parse(c.Postgres.URL); err == nil {
			out.Postgres.URL = u.Redacted()
		} else {
			out.Postgres.URL = redactedValue
		}
	}
	return out
}

// ParseSameSite maps a cookie.same_site value to its http.SameSite mode.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	default:
		return 0, invalid("cookie.same_site", "must be 'lax' or 'strict', got %q", s)
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+" "+format, args...)
}
