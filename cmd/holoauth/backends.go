// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/redisstore"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/mail"
	"github.com/holomush/holoauth/internal/store"
)

// backends holds the store and mailer implementations selected by the
// configuration, plus the resources they own.
type backends struct {
	users      auth.UserStore
	revoked    auth.RevokedTokenStore
	challenges auth.ChallengeStore
	mailer     auth.Mailer

	checks  map[string]func(ctx context.Context) error
	closers []func()
}

// ready pings every network backend.
func (b *backends) ready(ctx context.Context) error {
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			return oops.Code("BACKEND_NOT_READY").With("backend", name).Wrap(err)
		}
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func buildBackends(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (_ *backends, err error) {
	b := &backends{checks: make(map[string]func(ctx context.Context) error)}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	switch cfg.Stores.Users {
	case config.StorePostgres:
		pool, err := deps.PoolFactory(ctx, store.PoolConfig{URL: cfg.Postgres.URL, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, oops.Code("BACKEND_INIT_FAILED").With("backend", "postgres").Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.checks["postgres"] = pool.Ping
		b.users = postgres.NewUserStore(pool)
		logger.Info("user store ready", "backend", "postgres")
	default:
		b.users = memory.NewUserStore()
		logger.Info("user store ready", "backend", "memory")
	}

	var rdb redis.UniversalClient
	if cfg.UsesRedis() {
		rdb = deps.RedisFactory(cfg.Redis)
		b.closers = append(b.closers, func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, oops.Code("BACKEND_INIT_FAILED").With("backend", "redis").Wrap(err)
		}
		b.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	if cfg.Stores.RevokedTokens == config.StoreRedis {
		b.revoked = redisstore.NewRevokedTokenStore(rdb, cfg.Redis.RevokedPrefix)
	} else {
		b.revoked = memory.NewRevokedTokenStore()
	}
	if cfg.Stores.Challenges == config.StoreRedis {
		b.challenges = redisstore.NewChallengeStore(rdb, cfg.Redis.ChallengePrefix, cfg.Challenge.TTL)
	} else {
		b.challenges = memory.NewChallengeStore()
	}
	logger.Info("token stores ready",
		"revoked_tokens", cfg.Stores.RevokedTokens,
		"challenges", cfg.Stores.Challenges,
	)

	b.mailer, err = buildMailer(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func buildMailer(cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Mail.Provider != config.MailPostmark {
		logger.Warn("mail provider is log: 2FA codes are written to the debug log, not emailed")
		return mail.NewLogMailer(logger), nil
	}

	sender, err := auth.ParseEmail(cfg.Mail.Sender)
	if err != nil {
		return nil, oops.Code("BACKEND_INIT_FAILED").With("backend", "postmark").Wrap(err)
	}
	opts := []mail.PostmarkOption{mail.WithLogger(logger)}
	if deps.MailHTTPClient != nil {
		opts = append(opts, mail.WithHTTPClient(deps.MailHTTPClient))
	}
	mailer, err := mail.NewPostmarkMailer(mail.PostmarkConfig{
		BaseURL:    cfg.Mail.Postmark.BaseURL,
		Token:      cfg.Mail.Postmark.Token,
		Sender:     sender,
		Timeout:    cfg.Mail.Postmark.Timeout,
		MaxRetries: cfg.Mail.Postmark.MaxRetries,
	}, opts...)
	if err != nil {
		return nil, oops.Code("BACKEND_INIT_FAILED").With("backend", "postmark").Wrap(err)
	}
	return mailer, nil
}

func newRedisClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
