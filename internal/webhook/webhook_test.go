package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authconnector/internal/auth"
	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/handlers"
	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/metrics"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/repositories/repomanager"
	"github.com/dmitrijs2005/authconnector/internal/repositories/users"
	"github.com/dmitrijs2005/authconnector/internal/syncer"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
)

var creds = tenant.Credentials{Public: "pub", Secret: "sec"}

type env struct {
	srv   *httptest.Server
	repo  users.Repository
	reg   *prometheus.Registry
	token string
}

func setup(t *testing.T, mutate ...func(*RouterDeps)) *env {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))

	db, m, err := repomanager.Open(ctx, repomanager.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, m.RunMigrations(ctx, db))

	hreg := handlers.NewRegistry(dbx.NewSQLTxRunner(db))
	require.NoError(t, handlers.RegisterStoreHandlers(hreg, m))
	repo := m.Users(db)
	s := syncer.New(nil, syncer.NewResolver(repo, hreg), syncer.Options{})

	d := NewDispatcher()
	d.Register(KeyUserSync, UserSync(s))
	d.Register(KeyAssessUsers, AssessUsers(repo))

	preg := prometheus.NewRegistry()
	deps := RouterDeps{
		Dispatcher:  d,
		Credentials: creds,
		Gatherer:    preg,
		Metrics:     metrics.NewCollector(preg),
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)

	tok, err := auth.GenerateToken(creds, "", time.Hour)
	require.NoError(t, err)
	return &env{srv: srv, repo: repo, reg: preg, token: tok}
}

func (e *env) post(t *testing.T, key, token string, body any) (int, map[string]any) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/connector/webhook/"+key, bytes.NewReader(raw))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func bcryptHash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func userPayload(action, email, password string) map[string]any {
	return map[string]any{"user": map[string]any{
		"id":         33,
		"name":       "Jane",
		"email":      email,
		"country":    "LV",
		"password":   password,
		"created_at": "2024-01-01 00:00:00",
		"updated_at": "2024-02-01 00:00:00",
		"action":     action,
	}}
}

func TestUserSync_CreatesAndDeletesLocalUser(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	hash := bcryptHash(t)

	status, body := e.post(t, KeyUserSync, e.token, userPayload("create", "jane@example.com", hash))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "success", body["status"])

	local, err := e.repo.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, local.RemoteID)
	assert.Equal(t, int64(33), *local.RemoteID)
	require.NotNil(t, local.Password)
	assert.Equal(t, hash, *local.Password, "passwords mode is always on for webhooks")

	status, _ = e.post(t, KeyUserSync, e.token, userPayload("delete", "jane@example.com", hash))
	require.Equal(t, http.StatusOK, status)

	local, err = e.repo.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.True(t, local.Trashed())
}

func TestUserSync_ValidationFailure(t *testing.T) {
	e := setup(t)

	status, body := e.post(t, KeyUserSync, e.token, map[string]any{"user": map[string]any{"id": 1}})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	errs, ok := body["errors"].(map[string]any)
	require.True(t, ok, body)
	assert.Contains(t, errs, "user.email")
	assert.Contains(t, errs, "user.created_at")
	assert.Contains(t, errs, "user.action")

	status, body = e.post(t, KeyUserSync, e.token, map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["errors"], "user")
}

func TestUserSync_HandlerFailure(t *testing.T) {
	e := setup(t)

	status, body := e.post(t, KeyUserSync, e.token, userPayload("create", "bad@example.com", "not-a-bcrypt-hash"))
	require.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["message"], "user.sync")
}

func TestAssessUsers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.repo.Create(ctx, &models.LocalUser{Email: "linked@example.com", RemoteID: ptr(int64(10)), CreatedAt: created})
	require.NoError(t, err)
	_, err = e.repo.Create(ctx, &models.LocalUser{Email: "orphan@example.com", CreatedAt: created})
	require.NoError(t, err)

	status, body := e.post(t, KeyAssessUsers, e.token, map[string]any{"keys": []int64{10, 11}})
	require.Equal(t, http.StatusOK, status, body)

	data := body["data"].(map[string]any)
	assert.Equal(t, []any{float64(11)}, data["uniqueServiceUserKeys"])
	tenantUsers := data["uniqueTenantUsers"].([]any)
	require.Len(t, tenantUsers, 1)
	assert.Equal(t, "orphan@example.com", tenantUsers[0].(map[string]any)["email"])

	status, _ = e.post(t, KeyAssessUsers, e.token, `{"keys":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = e.post(t, KeyAssessUsers, e.token, "")
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Empty(t, data["uniqueServiceUserKeys"])
}

func TestWebhook_UnknownKeyAndBadBody(t *testing.T) {
	e := setup(t)

	status, body := e.post(t, "user.merge", e.token, map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, `Webhook with key "user.merge" cannot be found.`, body["message"])

	status, _ = e.post(t, KeyUserSync, e.token, "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhook_Authentication(t *testing.T) {
	e := setup(t)

	status, body := e.post(t, KeyUserSync, "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing token", body["message"])

	status, _ = e.post(t, KeyUserSync, "garbage", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := auth.GenerateToken(creds, "", -time.Minute)
	require.NoError(t, err)
	status, body = e.post(t, KeyUserSync, expired, map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token expired", body["message"])

	scoped, err := auth.GenerateToken(creds, KeyAssessUsers, time.Hour)
	require.NoError(t, err)
	status, _ = e.post(t, KeyUserSync, scoped, map[string]any{})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = e.post(t, KeyAssessUsers, scoped, map[string]any{})
	assert.Equal(t, http.StatusOK, status)
}

func TestWebhook_RateLimit(t *testing.T) {
	e := setup(t, func(d *RouterDeps) {
		d.RequestsPerSecond = 0.01
		d.Burst = 1
	})

	status, _ := e.post(t, KeyAssessUsers, e.token, map[string]any{})
	require.Equal(t, http.StatusOK, status)

	status, body := e.post(t, KeyAssessUsers, e.token, map[string]any{})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many requests", body["message"])
}

func TestWebhook_HealthAndMetrics(t *testing.T) {
	e := setup(t)

	resp, err := e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := e.post(t, KeyAssessUsers, e.token, map[string]any{})
	require.Equal(t, http.StatusOK, status)

	resp, err = e.srv.Client().Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `connector_webhook_requests_total{key="assess.users",status_code="200"} 1`)
}

func TestRecovery(t *testing.T) {
	h := Recovery(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	d.Register("a", HandlerFunc(func(context.Context, json.RawMessage) (any, error) { return nil, boom }))
	d.Register("b", HandlerFunc(func(_ context.Context, p json.RawMessage) (any, error) { return string(p), nil }))

	assert.Equal(t, []string{"a", "b"}, d.Keys())

	_, err := d.Dispatch(context.Background(), "a", nil)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "a", he.Key)
	assert.ErrorIs(t, err, boom)

	out, err := d.Dispatch(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	_, err = d.Dispatch(context.Background(), "c", nil)
	assert.ErrorIs(t, err, ErrUnknownWebhook)
}

func TestServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", NewRouter(RouterDeps{Dispatcher: NewDispatcher(), Credentials: creds}), nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func ptr[T any](v T) *T { return &v }

func nopLogger() logging.Logger { return logging.Nop() }
