// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--addr=127.0.0.1:0", "--metrics-addr=", "--log-level=error"}, args...)))
	cfg, err := config.Load("", fs, func(key string) (string, bool) {
		if key == "JWT_SECRET" {
			return testSecret, true
		}
		return "", false
	})
	require.NoError(t, err)
	return cfg
}

// startServe runs the service until the returned stop function is called.
func startServe(t *testing.T, cfg *config.Config, deps *ServeDeps) (string, func() error) {
	t.Helper()
	if deps == nil {
		deps = &ServeDeps{}
	}
	ready := make(chan string, 1)
	deps.OnReady = func(addr string) { ready <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- runServeWithDeps(ctx, cfg, nil, deps)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errChan:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("serve did not become ready")
	}

	return addr, func() error {
		cancel()
		select {
		case err := <-errChan:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("serve did not stop")
		}
	}
}

func post(t *testing.T, url, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "config"})

	for _, flag := range []string{"config", "addr", "user-store", "mail-provider", "metrics-addr"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestRunServeWithDeps_MemoryBackends(t *testing.T) {
	addr, stop := startServe(t, testConfig(t), nil)
	base := "http://" + addr

	resp := post(t, base+"/signup", `{"email":"a@x.com","password":"password123","requires2FA":false}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post(t, base+"/login", `{"email":"a@x.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.Equal(t, 600, session.MaxAge)

	resp = post(t, base+"/logout", "", session)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, stop())
}

func TestRunServeWithDeps_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "--revoked-store=redis", "--challenge-store=redis")

	deps := &ServeDeps{
		RedisFactory: func(config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: mr.Addr()})
		},
	}
	addr, stop := startServe(t, cfg, deps)
	base := "http://" + addr

	require.Equal(t, http.StatusCreated, post(t, base+"/signup", `{"email":"b@x.com","password":"password123","requires2FA":true}`).StatusCode)
	require.Equal(t, http.StatusPartialContent, post(t, base+"/login", `{"email":"b@x.com","password":"password123"}`).StatusCode)
	assert.True(t, mr.Exists("two_fa_code:b@x.com"), "challenge stored in redis")

	require.NoError(t, stop())
}

func TestRunServeWithDeps_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, "--revoked-store=redis")
	err := runServeWithDeps(context.Background(), cfg, nil, &ServeDeps{
		RedisFactory: func(config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: time.Second})
		},
	})
	errutil.AssertErrorCode(t, err, "BACKEND_INIT_FAILED")
	errutil.AssertErrorContext(t, err, "backend", "redis")
}

func TestRunServeWithDeps_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Token.Secret = ""

	err := runServeWithDeps(context.Background(), cfg, nil, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

type mockObservabilityServer struct {
	startErr error
	stopped  bool
	metrics  *observability.Metrics
	ready    observability.ReadinessChecker
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return make(chan error), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:0" }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return m.metrics }

func TestRunServeWithDeps_ObservabilityStartError(t *testing.T) {
	cfg := testConfig(t, "--metrics-addr=127.0.0.1:0")
	obs := &mockObservabilityServer{startErr: errors.New("address in use")}

	err := runServeWithDeps(context.Background(), cfg, nil, &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
	})
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

func TestRunServeWithDeps_ReadinessUsesBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "--metrics-addr=127.0.0.1:0", "--revoked-store=redis")
	obs := &mockObservabilityServer{}

	deps := &ServeDeps{
		RedisFactory: func(config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		},
		ObservabilityServerFactory: func(_ string, ready observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			obs.ready = ready
			return obs
		},
	}
	_, stop := startServe(t, cfg, deps)

	require.NotNil(t, obs.ready)
	require.NoError(t, obs.ready(context.Background()))
	mr.Close()
	assert.Error(t, obs.ready(context.Background()), "readiness fails once redis is gone")

	require.NoError(t, stop())
	assert.True(t, obs.stopped)
}

type fakeMigrator struct {
	upErr    error
	closeErr error
	upCalled bool
	closed   bool
	pending  []uint
	forced   int
}

func (m *fakeMigrator) Up() error {
	m.upCalled = true
	return m.upErr
}
func (m *fakeMigrator) Down() error                        { return nil }
func (m *fakeMigrator) Version() (uint, bool, error)       { return 1, false, nil }
func (m *fakeMigrator) Force(v int) error                  { m.forced = v; return nil }
func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }
func (m *fakeMigrator) Close() error {
	m.closed = true
	return m.closeErr
}

func TestRunAutoMigration(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &fakeMigrator{}
		err := runAutoMigration("postgres://test@localhost/test", func(string) (AutoMigrator, error) { return m, nil })
		require.NoError(t, err)
		assert.True(t, m.upCalled)
		assert.True(t, m.closed)
	})

	t.Run("factory error", func(t *testing.T) {
		err := runAutoMigration("postgres://test@localhost/test", func(string) (AutoMigrator, error) {
			return nil, fmt.Errorf("connection failed")
		})
		errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	})

	t.Run("up error still closes", func(t *testing.T) {
		m := &fakeMigrator{upErr: fmt.Errorf("schema error")}
		err := runAutoMigration("postgres://test@localhost/test", func(string) (AutoMigrator, error) { return m, nil })
		errutil.AssertErrorCode(t, err, "AUTO_MIGRATION_FAILED")
		assert.True(t, m.closed)
	})

	t.Run("close error is logged", func(t *testing.T) {
		var buf bytes.Buffer
		old := slog.Default()
		slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
		defer slog.SetDefault(old)

		m := &fakeMigrator{closeErr: fmt.Errorf("connection reset")}
		err := runAutoMigration("postgres://test@localhost/test", func(string) (AutoMigrator, error) { return m, nil })
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "error closing migrator")
		assert.Contains(t, buf.String(), "connection reset")
	})
}

func TestRunServeWithDeps_AutoMigrateOnlyForPostgres(t *testing.T) {
	m := &fakeMigrator{}
	cfg := testConfig(t, "--postgres-auto-migrate")

	_, stop := startServe(t, cfg, &ServeDeps{
		MigratorFactory: func(string) (AutoMigrator, error) { return m, nil },
	})
	require.NoError(t, stop())
	assert.False(t, m.upCalled, "memory user store needs no migrations")
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "3", want: 3},
		{input: "0", want: 0},
		{input: "  42", want: 42},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
		{input: "1.5", wantErr: true},
		{input: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseForceVersion(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrateCmd(t *testing.T) {
	fake := &fakeMigrator{pending: []uint{1}}
	old := migratorFactory
	migratorFactory = func(string) (migrator, error) { return fake, nil }
	t.Cleanup(func() { migratorFactory = old })
	t.Setenv("DATABASE_URL", "postgres://holo@localhost/holoauth")

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"migrate", "up"}, want: "Migrations completed successfully"},
		{args: []string{"migrate", "version"}, want: "version: 1 (clean), pending: 1"},
		{args: []string{"migrate", "force", "1"}, want: "Forced version 1"},
		{args: []string{"migrate", "down"}, want: "All migrations rolled back"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd := NewRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, out.String(), tt.want)
			assert.True(t, fake.closed)
		})
	}
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "up"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestConfigCmd_PrintsRedactedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holoauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:4444\n"), 0o600))
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("REDIS_PASSWORD", "redis-secret")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path, "--log-format=text"})

	require.NoError(t, cmd.Execute())
	text := out.String()
	assert.Contains(t, text, "addr: 127.0.0.1:4444")
	assert.Contains(t, text, "format: text")
	assert.NotContains(t, text, testSecret)
	assert.NotContains(t, text, "redis-secret")
}
