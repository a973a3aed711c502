// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/web"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Register(ctx context.Context, in auth.RegisterInput) (auth.Identity, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *mockService) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	args := m.Called(ctx, username, password)
	result, _ := args.Get(0).(*auth.LoginResult)
	return result, args.Error(1)
}

func (m *mockService) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}

func TestHandlers_ForwardsToService(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("login passes raw credentials and sets cookie lifetime from token", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Login", mock.Anything, "Alice", "password123").Return(&auth.LoginResult{
			Identity: auth.Identity{ID: ulid.Make(), Username: "alice", Role: auth.RoleUser},
			Token: auth.IssuedToken{
				Token:     "signed.jwt.value",
				IssuedAt:  issued,
				ExpiresAt: issued.Add(30 * time.Minute),
			},
		}, nil).Once()

		engine, err := web.NewRouter(web.Options{Service: svc, Cookie: web.SessionCookie{Name: "token"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewReader([]byte(`{"username":"Alice","password":"password123"}`)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "signed.jwt.value", cookies[0].Value)
		assert.Equal(t, 1800, cookies[0].MaxAge)
		svc.AssertExpectations(t)
	})

	t.Run("logout passes the cookie token", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Logout", mock.Anything, "abc.def.ghi").Return(nil).Once()

		engine, err := web.NewRouter(web.Options{Service: svc, Cookie: web.SessionCookie{Name: "token"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "abc.def.ghi"})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("me reads claims resolved by the guard", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Authenticate", mock.Anything, "abc.def.ghi").Return(&auth.Claims{
			UserID: "01J0000000000000000000000", Username: "alice", Role: auth.RoleUser,
		}, nil).Once()

		engine, err := web.NewRouter(web.Options{Service: svc, Cookie: web.SessionCookie{Name: "token"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "abc.def.ghi"})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"username":"alice"`)
		svc.AssertExpectations(t)
	})

	t.Run("malformed body never reaches the service", func(t *testing.T) {
		svc := &mockService{}

		engine, err := web.NewRouter(web.Options{Service: svc, Cookie: web.SessionCookie{Name: "token"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader([]byte(`{"username":`)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})
}
