// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"crypto/rand"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	"github.com/holomush/authgate/internal/auth/postgres"
	"github.com/holomush/authgate/internal/auth/revocation"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/store"
)

func noop() {}

// openStore connects the configured credential store, applying pending
// migrations first when auto-migrate is on.
func openStore(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		slog.Warn("using in-memory credential store; accounts are lost on restart")
		return memory.NewUserRepository(), noop, nil
	}

	if cfg.Store.AutoMigrate {
		if err := migrateUp(cfg.Store.DatabaseURL); err != nil {
			return nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.ConnectOptions{
		Retries: cfg.Store.ConnectRetries,
		Logger:  slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to database")
	return postgres.NewUserRepository(pool), pool.Close, nil
}

func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	slog.Info("database schema up to date", "version", version)
	return nil
}

// openDenylist connects Redis for token revocation. It returns a nil
// Denylist when revocation is disabled.
func openDenylist(ctx context.Context, cfg *config.Config) (auth.Denylist, func(), error) {
	if !cfg.Revocation.Enabled {
		return nil, noop, nil
	}
	client, err := revocation.Dial(ctx, cfg.Revocation.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("token revocation enabled", "redis_addr", cfg.Revocation.RedisAddr)
	return revocation.NewRedisDenylist(client, revocation.WithPrefix(cfg.Revocation.Prefix)), closeFn, nil
}

// newService builds the auth service over users. Administration commands
// pass an empty secret: they never issue tokens.
func newService(cfg *config.Config, users auth.UserRepository, opts ...auth.ServiceOption) (*auth.Service, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = rand.Text()
	}
	issuer, err := auth.NewTokenIssuer([]byte(secret), cfg.Auth.TokenExpiry)
	if err != nil {
		return nil, err
	}
	return auth.NewService(users, auth.NewArgon2idHasher(), issuer, cfg.ServiceConfig(), opts...)
}
