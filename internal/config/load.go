// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultAddr             = "0.0.0.0:3000"
	DefaultMetricsAddr      = "127.0.0.1:9100"
	DefaultTokenTTL         = 10 * time.Minute
	DefaultChallengeTTL     = 10 * time.Minute
	DefaultCookieName       = "jwt"
	DefaultPostmarkURL      = "https://api.postmarkapp.com/email"
	DefaultPostmarkTimeout  = 10 * time.Second
	DefaultRedisHost        = "127.0.0.1"
	DefaultRedisPort        = 6379
	DefaultShutdownTimeout  = 5 * time.Second
	defaultPostmarkRetries  = 3
	defaultPostgresMaxConns = 10
)

// flagKeys maps flag names to configuration keys. Flags that are not
// listed here (such as --config) are not configuration values.
var flagKeys = map[string]string{
	"env":                    "env",
	"addr":                   "server.addr",
	"shutdown-timeout":       "server.shutdown_timeout",
	"log-format":             "log.format",
	"log-level":              "log.level",
	"token-ttl":              "token.ttl",
	"token-issuer":           "token.issuer",
	"cookie-name":            "cookie.name",
	"cookie-same-site":       "cookie.same_site",
	"cookie-secure":          "cookie.secure",
	"challenge-ttl":          "challenge.ttl",
	"user-store":             "stores.users",
	"revoked-store":          "stores.revoked_tokens",
	"challenge-store":        "stores.challenges",
	"postgres-max-conns":     "postgres.max_conns",
	"postgres-auto-migrate":  "postgres.auto_migrate",
	"redis-host":             "redis.host",
	"redis-port":             "redis.port",
	"redis-db":               "redis.db",
	"redis-revoked-prefix":   "redis.revoked_prefix",
	"redis-challenge-prefix": "redis.challenge_prefix",
	"mail-provider":          "mail.provider",
	"mail-sender":            "mail.sender",
	"postmark-url":           "mail.postmark.base_url",
	"postmark-timeout":       "mail.postmark.timeout",
	"postmark-max-retries":   "mail.postmark.max_retries",
	"metrics-addr":           "metrics.addr",
}

// envKeys maps environment variables to configuration keys.
var envKeys = map[string]string{
	"JWT_SECRET":          "token.secret",
	"DATABASE_URL":        "postgres.url",
	"REDIS_HOST_NAME":     "redis.host",
	"REDIS_PASSWORD":      "redis.password",
	"POSTMARK_AUTH_TOKEN": "mail.postmark.token",
}

// RegisterFlags defines every configuration flag on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", EnvDevelopment, "deployment environment (development or production)")
	fs.String("addr", DefaultAddr, "HTTP listen address")
	fs.Duration("shutdown-timeout", DefaultShutdownTimeout, "graceful shutdown deadline")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Duration("token-ttl", DefaultTokenTTL, "session token validity window")
	fs.String("token-issuer", "holoauth", "session token issuer claim")
	fs.String("cookie-name", DefaultCookieName, "session cookie name")
	fs.String("cookie-same-site", "lax", "session cookie SameSite mode (lax or strict)")
	fs.Bool("cookie-secure", false, "mark the session cookie Secure (forced in production)")
	fs.Duration("challenge-ttl", DefaultChallengeTTL, "2FA challenge lifetime in redis")
	fs.String("user-store", StoreMemory, "user store backend (memory or postgres)")
	fs.String("revoked-store", StoreMemory, "revoked token store backend (memory or redis)")
	fs.String("challenge-store", StoreMemory, "2FA challenge store backend (memory or redis)")
	fs.Int32("postgres-max-conns", defaultPostgresMaxConns, "maximum postgres pool connections")
	fs.Bool("postgres-auto-migrate", false, "apply pending migrations on serve")
	fs.String("redis-host", DefaultRedisHost, "redis host")
	fs.Int("redis-port", DefaultRedisPort, "redis port")
	fs.Int("redis-db", 0, "redis database number")
	fs.String("redis-revoked-prefix", "revoked_token:", "redis key prefix for revoked tokens")
	fs.String("redis-challenge-prefix", "two_fa_code:", "redis key prefix for 2FA challenges")
	fs.String("mail-provider", MailLog, "mailer (log or postmark)")
	fs.String("mail-sender", "", "From address for outgoing mail")
	fs.String("postmark-url", DefaultPostmarkURL, "Postmark email endpoint")
	fs.Duration("postmark-timeout", DefaultPostmarkTimeout, "Postmark request timeout")
	fs.Uint64("postmark-max-retries", defaultPostmarkRetries, "Postmark retries for transient failures")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// Load builds a Config from fs, the YAML file at path (skipped when empty)
// and the environment. fs must have been prepared with RegisterFlags.
// A nil lookupEnv reads the process environment.
func Load(path string, fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (*Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	// Unchanged flags only fill keys the file did not set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	for env, key := range envKeys {
		if v, ok := lookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// flagKey renames flags to configuration keys and drops the rest.
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
