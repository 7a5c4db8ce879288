package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BlackMission/credlink/internal/apikey"
	"github.com/BlackMission/credlink/internal/auth"
	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/oauthflow"
	"github.com/BlackMission/credlink/internal/redirect"
	"github.com/BlackMission/credlink/internal/session"
	"github.com/BlackMission/credlink/internal/state"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/memory"
	"github.com/BlackMission/credlink/internal/store/redisstore"
	"github.com/BlackMission/credlink/internal/store/seal"
)

const (
	backTo        = "https://acme.monday.com/boards/42"
	sessionSecret = "monday-signing-secret"
)

// fakeProvider sends the browser straight to callbackBase, as a provider
// that approved the consent screen would.
type fakeProvider struct {
	name         string
	callbackBase string
	exchanges    int
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) AuthURL(stateToken string) (string, error) {
	return f.callbackBase + "/oauth/callback/" + f.name + "?code=code-" + f.name + "&state=" + url.QueryEscape(stateToken), nil
}
func (f *fakeProvider) Exchange(ctx context.Context, code string) (string, error) {
	f.exchanges++
	return "token-for-" + code, nil
}

type testEnv struct {
	ts     *httptest.Server
	store  store.Store
	monday *fakeProvider
	github *fakeProvider
	client *http.Client
}

func setupTestServer(t *testing.T, st store.Store, guard state.Guard, logger *zap.Logger) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  st,
		monday: &fakeProvider{name: domain.ProviderMonday},
		github: &fakeProvider{name: domain.ProviderGitHub},
		client: &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}

	providers := auth.NewRegistry()
	require.NoError(t, providers.Register(env.monday))
	require.NoError(t, providers.Register(env.github))
	allow, err := redirect.NewAllowlist([]string{"*.monday.com"})
	require.NoError(t, err)

	conns := connection.NewService(st, logger)
	orch, err := oauthflow.New([]string{domain.ProviderMonday, domain.ProviderGitHub}, oauthflow.Deps{
		Providers:   providers,
		Connections: conns,
		State:       state.NewService([]byte("test-state-key-1234567890abcdef"), 0),
		Guard:       guard,
		Allowlist:   allow,
		Logger:      logger,
	})
	require.NoError(t, err)

	pinger, _ := st.(store.Pinger)
	srv := New(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Orchestrator: orch,
		Connections:  conns,
		APIKeys:      apikey.NewService(conns),
		Sessions:     session.NewVerifier([]byte(sessionSecret)),
		Pinger:       pinger,
		Logger:       logger,
	})
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)

	env.monday.callbackBase = env.ts.URL
	env.github.callbackBase = env.ts.URL
	return env
}

func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":    userID,
		"accountId": 7,
		"backToUrl": backTo,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(sessionSecret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func message(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decode(t, resp, &body)
	return body.Message
}

func TestIntegration_HealthEndpoint(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))

	resp := env.do(t, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIntegration_HealthReportsStoreOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	codec, err := seal.NewCodec([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	env := setupTestServer(t, redisstore.New(rdb, codec), nil, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", "", "").StatusCode)

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/health", "", "", "").StatusCode)
}

func TestIntegration_ProvidersEndpoint(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))

	resp := env.do(t, http.MethodGet, "/providers", "", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Providers []string `json:"providers"`
	}
	decode(t, resp, &body)
	assert.Equal(t, []string{"monday", "github"}, body.Providers)
}

func TestIntegration_SessionRequired(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/authorize"},
		{http.MethodGet, "/monday/authorize"},
		{http.MethodGet, "/get-api-key"},
		{http.MethodPost, "/save-api-key"},
		{http.MethodPost, "/delete-api-key"},
		{http.MethodPost, "/unlink"},
		{http.MethodGet, "/connection/status"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			resp := env.do(t, route.method, route.path, "Bearer forged", "", "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestIntegration_APIKeyLifecycle(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))
	tok := sessionToken(t, "test-user-123")

	resp := env.do(t, http.MethodGet, "/get-api-key", tok, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "API Key not found.", message(t, resp))

	resp = env.do(t, http.MethodPost, "/save-api-key", tok, "application/json", `{"apiKey":"sk-test-abcdef123456"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/get-api-key", tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status apikey.Status
	decode(t, resp, &status)
	assert.True(t, status.Connected)
	assert.Equal(t, "sk-t••••••••3456", status.MaskedKey)

	resp = env.do(t, http.MethodPost, "/delete-api-key", tok, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "API Key deleted successfully", message(t, resp))

	resp = env.do(t, http.MethodGet, "/get-api-key", tok, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_KeyFormPostsBack(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))
	tok := sessionToken(t, "u-form")

	resp := env.do(t, http.MethodGet, "/monday/authorize?token="+tok, "", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	form := url.Values{"apiKey": {"form-entered-key"}}.Encode()
	resp = env.do(t, http.MethodPost, "/save-api-key?token="+tok, "", "application/x-www-form-urlencoded", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := env.store.Get(context.Background(), "u-form")
	require.NoError(t, err)
	assert.Equal(t, "form-entered-key", conn.APIKey)
}

func TestIntegration_ChainedOAuthFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	codec, err := seal.NewCodec([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	env := setupTestServer(t, redisstore.New(rdb, codec), state.NewRedisGuard(rdb), zaptest.NewLogger(t))
	tok := sessionToken(t, "u1")

	// Step 1: /authorize sends the user to the first provider.
	resp := env.do(t, http.MethodGet, "/authorize", tok, "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	mondayURL := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(mondayURL, env.ts.URL+"/oauth/callback/monday?"), mondayURL)

	// Step 2: monday calls back; the flow moves on to github.
	resp = env.do(t, http.MethodGet, strings.TrimPrefix(mondayURL, env.ts.URL), "", "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	githubURL := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(githubURL, env.ts.URL+"/oauth/callback/github?"), githubURL)

	// Replaying the monday callback is refused.
	resp = env.do(t, http.MethodGet, strings.TrimPrefix(mondayURL, env.ts.URL), "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid state", message(t, resp))

	// Step 3: github calls back; the user lands on backToUrl.
	resp = env.do(t, http.MethodGet, strings.TrimPrefix(githubURL, env.ts.URL), "", "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, backTo, resp.Header.Get("Location"))

	conn, err := env.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "token-for-code-monday", conn.MondayToken)
	assert.Equal(t, "token-for-code-github", conn.GitHubToken)
	assert.Equal(t, 1, env.monday.exchanges)
	assert.Equal(t, 1, env.github.exchanges)

	// Step 4: once linked, /authorize returns straight to backToUrl.
	resp = env.do(t, http.MethodGet, "/authorize", tok, "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, backTo, resp.Header.Get("Location"))

	resp = env.do(t, http.MethodGet, "/connection/status", tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Complete bool `json:"complete"`
	}
	decode(t, resp, &status)
	assert.True(t, status.Complete)

	// Unlink drops everything.
	resp = env.do(t, http.MethodPost, "/unlink", tok, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = env.store.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_CallbackWithPathUser(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))
	tok := sessionToken(t, "u1")

	resp := env.do(t, http.MethodGet, "/authorize", tok, "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	wrong := "/oauth/callback/monday/someone-else?" + loc.RawQuery
	resp = env.do(t, http.MethodGet, wrong, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.monday.exchanges)

	right := "/oauth/callback/monday/u1?" + loc.RawQuery
	resp = env.do(t, http.MethodGet, right, "", "", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 1, env.monday.exchanges)
}

func TestIntegration_TamperedStateNeverExchanges(t *testing.T) {
	env := setupTestServer(t, memory.New(), nil, zaptest.NewLogger(t))

	resp := env.do(t, http.MethodGet, "/oauth/callback/github?code=c&state=eyJ1aWQiOiJ1MSJ9.deadbeef", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid state", message(t, resp))
	assert.Equal(t, 0, env.github.exchanges)
}

func TestIntegration_RequestIDLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	env := setupTestServer(t, memory.New(), nil, zap.New(core))

	resp := env.do(t, http.MethodGet, "/health", "", "", "")
	id := resp.Header.Get(requestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, id, fields["request_id"])
	assert.Equal(t, "/health", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	given := uuid.NewString()
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, given)
	resp2, err := env.client.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, given, resp2.Header.Get(requestIDHeader))
}

func TestIntegration_GracefulShutdown(t *testing.T) {
	logger := zap.NewNop()
	conns := connection.NewService(memory.New(), logger)
	providers := auth.NewRegistry()
	require.NoError(t, providers.Register(&fakeProvider{name: domain.ProviderGitHub}))
	orch, err := oauthflow.New([]string{domain.ProviderGitHub}, oauthflow.Deps{
		Providers:   providers,
		Connections: conns,
		State:       state.NewService([]byte("key-1234567890abcdef12345678"), 0),
		Logger:      logger,
	})
	require.NoError(t, err)

	srv := New(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Orchestrator: orch,
		Connections:  conns,
		APIKeys:      apikey.NewService(conns),
		Sessions:     session.NewVerifier([]byte(sessionSecret)),
		Logger:       logger,
	})

	go srv.Start()

	assert.NoError(t, srv.Shutdown(context.Background()))
}
