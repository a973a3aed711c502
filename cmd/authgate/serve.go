// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/internal/web"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand. deps may be nil.
func NewServeCmd(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API serving register, login and logout, plus the
observability server exposing metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, deps)
		},
	}
}

// runServe runs the API until a signal arrives, ctx is canceled or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogging(cfg)
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting authgate",
		"env", cfg.Env,
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, closeStore, err := deps.StoreOpener(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer closeStore()

	denylist, closeDenylist, err := deps.DenylistOpener(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open deny-list").Wrap(err)
	}
	defer closeDenylist()

	var svc *auth.Service
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func(ctx context.Context) error {
			return svc.Ready(ctx)
		})
		metrics = obsServer.Metrics()
	}

	opts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithLockoutHook(func(username string) {
			metrics.RecordLockout()
			logger.Warn("account locked", "username", username)
		}),
	}
	if denylist != nil {
		opts = append(opts, auth.WithDenylist(denylist))
	}
	svc, err = newService(cfg, users, opts...)
	if err != nil {
		return err
	}

	var limiter *web.RateLimiter
	if cfg.RateLimit.LoginRPS > 0 {
		limiter = web.NewRateLimiter(web.RateLimiterConfig{
			Rate:  cfg.RateLimit.LoginRPS,
			Burst: cfg.RateLimit.LoginBurst,
		})
		defer limiter.Close()
	}

	router, err := web.NewRouter(web.Options{
		Service:        svc,
		Cookie:         web.SessionCookie{Name: cfg.Auth.CookieName, Secure: cfg.IsProduction()},
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Production:     cfg.IsProduction(),
		Limiter:        limiter,
	})
	if err != nil {
		return err
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopObservability(obsServer)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authgate listening on " + listener.Addr().String())
	logger.Info("authgate ready", "addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownServer(httpServer)
	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s ObservabilityServer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error, so one
// failing listener shuts the whole process down. It exits when the channel
// closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
