// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/pkg/errutil"
)

func serveConfig() *config.Config {
	cfg := config.Default()
	cfg.Env = config.EnvTest
	cfg.Store.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "serve-test-secret-0123456789"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	return &cfg
}

func TestRunServe_InvalidConfig(t *testing.T) {
	cfg := serveConfig()
	cfg.Auth.JWTSecret = ""

	err := runServe(context.Background(), &cobra.Command{}, cfg, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestRunServe_StoreFailure(t *testing.T) {
	deps := &ServeDeps{
		StoreOpener: func(context.Context, *config.Config) (auth.UserRepository, func(), error) {
			return nil, nil, errors.New("connection refused")
		},
	}

	err := runServe(context.Background(), &cobra.Command{}, serveConfig(), deps)
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "open credential store")
}

func TestRunServe_ListenFailure(t *testing.T) {
	deps := &ServeDeps{
		ListenerFactory: func(string, string) (net.Listener, error) {
			return nil, errors.New("address in use")
		},
	}

	err := runServe(context.Background(), &cobra.Command{}, serveConfig(), deps)
	errutil.AssertErrorCode(t, err, "LISTEN_FAILED")
}

func TestRunServe_ServesUntilCanceled(t *testing.T) {
	addrCh := make(chan string, 1)
	obsCh := make(chan ObservabilityServer, 1)
	deps := &ServeDeps{
		ListenerFactory: func(network, address string) (net.Listener, error) {
			l, err := net.Listen(network, address)
			if err == nil {
				addrCh <- l.Addr().String()
			}
			return l, err
		},
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			s := observability.NewServer(addr, ready)
			obsCh <- s
			return s
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cmd, serveConfig(), deps) }()

	var apiAddr string
	select {
	case apiAddr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("api listener not created")
	}
	obs := <-obsCh

	client := &http.Client{Timeout: 2 * time.Second}
	get := func(url string) (int, string) {
		var lastErr error
		for i := 0; i < 50; i++ {
			resp, err := client.Get(url)
			if err == nil {
				body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best effort in test
				_ = resp.Body.Close()
				return resp.StatusCode, string(body)
			}
			lastErr = err
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("GET %s: %v", url, lastErr)
		return 0, ""
	}

	status, body := get(fmt.Sprintf("http://%s/api/auth/login", apiAddr))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"error": null}`, body)

	require.Eventually(t, func() bool { return obs.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	status, body = get(fmt.Sprintf("http://%s/healthz/readiness", obs.Addr()))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels the context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		errCh <- errors.New("test server error")

		done := make(chan struct{})
		go func() {
			monitorServerErrors(ctx, cancel, errCh, "test-server")
			close(done)
		}()

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context was not cancelled after server error")
		}
		<-done
	})

	t.Run("nil error and closed channel leave the context alone", func(t *testing.T) {
		for _, send := range []bool{true, false} {
			ctx, cancel := context.WithCancel(context.Background())

			errCh := make(chan error, 1)
			if send {
				errCh <- nil
			} else {
				close(errCh)
			}

			done := make(chan struct{})
			go func() {
				monitorServerErrors(ctx, cancel, errCh, "test-server")
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("monitorServerErrors did not return")
			}
			assert.NoError(t, ctx.Err())
			cancel()
		}
	})

	t.Run("returns when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			monitorServerErrors(ctx, cancel, make(chan error), "test-server")
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("monitorServerErrors did not return after cancel")
		}
	})
}
