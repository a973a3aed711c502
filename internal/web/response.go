// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
)

// Response is the body of every API reply.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	User    *UserView `json:"user,omitempty"`
}

// UserView is the public projection of an account. LastLogin is always
// present on login and null on the first one.
type UserView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Role      auth.Role  `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	LastLogin *time.Time `json:"lastLogin"`
}

// Messages returned by the HTTP layer itself.
const (
	MsgRegistered      = "Registration successful. Kindly login"
	MsgLoggedIn        = "Login successful"
	MsgLoggedOut       = "Logged out successfully. Kindly log in again"
	MsgAuthenticated   = "Authenticated"
	MsgInternalError   = "Internal server error"
	MsgTooManyRequests = "Too many requests. Try again later"
	MsgInvalidBody     = "Invalid request body"
)

func respond(c *gin.Context, status int, message string, user *UserView) {
	c.JSON(status, Response{
		Success: status < http.StatusBadRequest,
		Message: message,
		User:    user,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

func registeredView(id auth.Identity) *UserView {
	created := id.CreatedAt
	return &UserView{
		ID:        id.ID.String(),
		Username:  id.Username,
		Email:     id.Email,
		Role:      id.Role,
		CreatedAt: &created,
	}
}

func loginView(id auth.Identity) *UserView {
	return &UserView{
		ID:        id.ID.String(),
		Username:  id.Username,
		Email:     id.Email,
		Role:      id.Role,
		LastLogin: id.LastLogin,
	}
}

func claimsView(claims *auth.Claims) *UserView {
	return &UserView{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}
}
