// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holoauth/internal/auth"
	authpg "github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/redisstore"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/token"
	"github.com/holomush/holoauth/internal/web"
)

// inbox records the 2FA mail that would have been sent.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Send(_ context.Context, recipient auth.Email, _, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[recipient.String()] = strings.TrimPrefix(body, "Your 2FA code is ")
	return nil
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

// testEnv holds a running auth stack backed by PostgreSQL and Redis.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	redis     *miniredis.Miniredis
	rdb       *redis.Client
	mail      *inbox
	metrics   *observability.Metrics
	server    *httptest.Server
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel, mail: &inbox{codes: make(map[string]string)}}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("holoauth_test"),
		postgres.WithUsername("holoauth"),
		postgres.WithPassword("holoauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}
	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.Connect(ctx, store.PoolConfig{URL: connStr})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.redis, err = miniredis.Run()
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.rdb = redis.NewClient(&redis.Options{Addr: env.redis.Addr()})

	authority, err := token.NewAuthority(token.Config{
		Secret: []byte("integration-secret-0123456789abcdef"),
		TTL:    10 * time.Minute,
		Issuer: "holoauth",
	}, redisstore.NewRevokedTokenStore(env.rdb, ""))
	if err != nil {
		env.cleanup()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
	svc, err := auth.NewService(
		authpg.NewUserStore(env.pool),
		redisstore.NewChallengeStore(env.rdb, "", 10*time.Minute),
		authority,
		env.mail,
		logger,
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.metrics = observability.NewMetrics(prometheus.NewRegistry())
	handler, err := web.NewHandler(svc,
		web.NewCookieCarrier(web.CookieConfig{Name: "jwt", SameSite: http.SameSiteLaxMode, MaxAge: authority.TTL()}),
		web.WithLogger(logger),
		web.WithMetrics(env.metrics),
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.server = httptest.NewServer(handler.Routes())
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

// client returns an HTTP client with its own cookie jar.
func (e *testEnv) client() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (e *testEnv) post(c *http.Client, path string, body any) (int, map[string]any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
	}
	resp, err := c.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	out := map[string]any{}
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out)).To(Succeed())
	}
	return resp.StatusCode, out
}

func (e *testEnv) sessionCookie(c *http.Client) string {
	for _, ck := range c.Jar.Cookies(mustParseURL(e.server.URL)) {
		if ck.Name == "jwt" {
			return ck.Value
		}
	}
	return ""
}

var _ = Describe("Authentication flows", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	Describe("password-only account", func() {
		It("signs up, logs in, verifies, logs out and rejects the revoked token", func() {
			c := env.client()

			status, body := env.post(c, "/signup", map[string]any{
				"email": "a@x.com", "password": "password123", "requires2FA": false,
			})
			Expect(status).To(Equal(http.StatusCreated))
			Expect(body).To(HaveKeyWithValue("message", "User created successfully!"))

			status, body = env.post(c, "/signup", map[string]any{
				"email": "a@x.com", "password": "password123", "requires2FA": false,
			})
			Expect(status).To(Equal(http.StatusConflict))
			Expect(body).To(HaveKeyWithValue("error", "User already exists"))

			status, _ = env.post(c, "/login", map[string]any{"email": "a@x.com", "password": "password123"})
			Expect(status).To(Equal(http.StatusOK))
			tok := env.sessionCookie(c)
			Expect(tok).NotTo(BeEmpty())

			status, _ = env.post(c, "/verify-token", map[string]any{"token": tok})
			Expect(status).To(Equal(http.StatusOK))

			status, _ = env.post(c, "/logout", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(env.redis.Keys()).To(ContainElement(HavePrefix("revoked_token:")))

			status, body = env.post(c, "/verify-token", map[string]any{"token": tok})
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("error", "Invalid auth token"))
		})

		It("gives identical answers for a wrong password and an unknown email", func() {
			c := env.client()
			s1, b1 := env.post(c, "/login", map[string]any{"email": "a@x.com", "password": "wrongpass1"})
			s2, b2 := env.post(c, "/login", map[string]any{"email": "nobody@x.com", "password": "password123"})
			Expect(s1).To(Equal(http.StatusUnauthorized))
			Expect(s2).To(Equal(s1))
			Expect(b2).To(Equal(b1))
			Expect(testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues("incorrect_credentials"))).To(BeNumerically(">=", 2))
		})
	})

	Describe("2FA account", func() {
		It("issues a challenge and exchanges the mailed code once", func() {
			c := env.client()

			status, _ := env.post(c, "/signup", map[string]any{
				"email": "b@x.com", "password": "password123", "requires2FA": true,
			})
			Expect(status).To(Equal(http.StatusCreated))

			status, body := env.post(c, "/login", map[string]any{"email": "b@x.com", "password": "password123"})
			Expect(status).To(Equal(http.StatusPartialContent))
			Expect(body).To(HaveKeyWithValue("message", "2FA required"))
			attemptID, ok := body["loginAttemptId"].(string)
			Expect(ok).To(BeTrue())
			Expect(env.sessionCookie(c)).To(BeEmpty())
			Expect(env.redis.Exists("two_fa_code:b@x.com")).To(BeTrue())

			code := env.mail.code("b@x.com")
			Expect(code).To(MatchRegexp(`^\d{6}$`))

			verify := map[string]any{"email": "b@x.com", "loginAttemptId": attemptID, "2FACode": code}
			status, _ = env.post(c, "/verify-2fa", verify)
			Expect(status).To(Equal(http.StatusOK))
			Expect(env.sessionCookie(c)).NotTo(BeEmpty())
			Expect(env.redis.Exists("two_fa_code:b@x.com")).To(BeFalse())

			status, body = env.post(c, "/verify-2fa", verify)
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("error", "Incorrect credentials"))
		})

		It("rejects a code for a stale attempt after a second login", func() {
			c := env.client()

			_, first := env.post(c, "/login", map[string]any{"email": "b@x.com", "password": "password123"})
			firstCode := env.mail.code("b@x.com")
			_, second := env.post(c, "/login", map[string]any{"email": "b@x.com", "password": "password123"})
			Expect(second["loginAttemptId"]).NotTo(Equal(first["loginAttemptId"]))

			status, _ := env.post(c, "/verify-2fa", map[string]any{
				"email": "b@x.com", "loginAttemptId": first["loginAttemptId"], "2FACode": firstCode,
			})
			Expect(status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("request validation", func() {
		It("rejects malformed and mis-shaped bodies", func() {
			c := env.client()

			resp, err := c.Post(env.server.URL+"/signup", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			status, _ := env.post(c, "/signup", map[string]any{"email": "c@x.com"})
			Expect(status).To(Equal(http.StatusUnprocessableEntity))

			status, body := env.post(c, "/signup", map[string]any{
				"email": "c@x.com", "password": "short", "requires2FA": false,
			})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("error"))
		})
	})
})
