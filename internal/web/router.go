// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the authentication service over HTTP with gin.
package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/observability"
)

// Options configures NewRouter.
type Options struct {
	Service AuthService
	Cookie  SessionCookie
	Metrics *observability.Metrics
	Logger  *slog.Logger

	// AllowedOrigins may send credentialed cross-origin requests.
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For. Nil trusts none.
	TrustedProxies []string
	// Production enables Strict-Transport-Security.
	Production bool
	// Limiter throttles register and login per client IP. Nil disables it.
	Limiter *RateLimiter
}

// NewRouter builds the API engine with recovery, tracing, request logging,
// security headers and CORS applied to every route.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	if opts.Cookie.Name == "" {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("session cookie name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").With("trusted_proxies", opts.TrustedProxies).Wrap(err)
	}

	engine.Use(recovery(logger))
	engine.Use(tracing())
	engine.Use(requestLog(logger, opts.Metrics))
	engine.Use(securityHeaders(opts.Production))
	engine.Use(allowList(opts.AllowedOrigins))

	h := NewHandlers(opts.Service, opts.Cookie, opts.Metrics, logger)
	throttle := rateLimit(opts.Limiter)

	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello World")
	})

	api := engine.Group("/api/auth")
	api.GET("/register", h.Show)
	api.POST("/register", throttle, h.Register)
	api.GET("/login", h.Show)
	api.POST("/login", throttle, h.Login)
	api.POST("/logout", h.Logout)

	secured := api.Group("")
	secured.Use(h.RequireSession())
	secured.GET("/me", h.Me)

	return engine, nil
}
