// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/pkg/errutil"
)

const claimsKey = "authgate.claims"

// AuthService is the authentication surface the handlers drive.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.Identity, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, raw string) error
	Authenticate(ctx context.Context, raw string) (*auth.Claims, error)
}

type registerRequest struct {
	Username    string `json:"username" form:"username"`
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// SessionCookie describes the cookie that carries the session token.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (s SessionCookie) set(w http.ResponseWriter, token string, expires time.Time, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clear expires the cookie with the same attributes it was set with, so
// browsers match and drop it.
func (s SessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Handlers serves the /api/auth routes.
type Handlers struct {
	auth    AuthService
	cookie  SessionCookie
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandlers creates Handlers. metrics may be nil.
func NewHandlers(svc AuthService, cookie SessionCookie, metrics *observability.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{auth: svc, cookie: cookie, metrics: metrics, logger: logger}
}

// bind decodes a JSON or form body. An empty body decodes to the zero value
// so the service reports the missing fields.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, MsgInvalidBody)
		return false
	}
	return true
}

// Register handles POST /api/auth/register.
func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	identity, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	h.metrics.RecordRegistration(outcome(err))
	if err != nil {
		h.fail(c, "registration failed", err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "user registered",
		"user_id", identity.ID.String(), "username", identity.Username)
	respond(c, http.StatusCreated, MsgRegistered, registeredView(identity))
}

// Login handles POST /api/auth/login and sets the session cookie.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	h.metrics.RecordLogin(outcome(err))
	if err != nil {
		if code := errutil.Code(err); code == auth.CodeInvalidCredentials || code == auth.CodeAccountLocked {
			h.logger.WarnContext(c.Request.Context(), "login rejected",
				"username", auth.NormalizeUsername(req.Username), "code", code, "client_ip", c.ClientIP())
		}
		h.fail(c, "login failed", err)
		return
	}

	token := result.Token
	h.cookie.set(c.Writer, token.Token, token.ExpiresAt, token.ExpiresAt.Sub(token.IssuedAt))
	respond(c, http.StatusOK, MsgLoggedIn, loginView(result.Identity))
}

// Logout handles POST /api/auth/logout. The cookie is cleared before
// revocation runs, so a failing deny-list still ends the browser session and
// only turns the response into a 500.
func (h *Handlers) Logout(c *gin.Context) {
	raw, _ := c.Cookie(h.cookie.Name) //nolint:errcheck // missing cookie logs out nothing
	h.cookie.clear(c.Writer)
	if err := h.auth.Logout(c.Request.Context(), raw); err != nil {
		h.fail(c, "logout failed", err)
		return
	}
	respond(c, http.StatusOK, MsgLoggedOut, nil)
}

// Me handles GET /api/auth/me behind RequireSession.
func (h *Handlers) Me(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, auth.MsgSessionMissing)
		return
	}
	respond(c, http.StatusOK, MsgAuthenticated, claimsView(claims))
}

// Show handles GET on the register and login routes.
func (h *Handlers) Show(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"error": nil})
}

// RequireSession rejects requests without a valid session cookie and stores
// the resolved claims on the context.
func (h *Handlers) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(h.cookie.Name) //nolint:errcheck // empty token is rejected below
		claims, err := h.auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			h.metrics.RecordSessionRejection(rejectionReason(err))
			h.fail(c, "session rejected", err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims RequireSession attached to c.
func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), h.logger, msg, err)
		respondError(c, status, MsgInternalError)
		return
	}
	respondError(c, status, errutil.PublicMessage(err, MsgInternalError))
}
