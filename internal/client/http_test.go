package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = tenant.Credentials{Public: "pub-key", Secret: "sec-key"}

func newTestClient(t *testing.T, h http.HandlerFunc, mutate ...func(*Options)) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := Options{BaseURL: srv.URL, Credentials: testCreds}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Options{BaseURL: "http://x", Credentials: tenant.Credentials{Public: "p"}})
	require.ErrorIs(t, err, tenant.ErrMissingCredentials)

	_, err = New(Options{Credentials: testCreds})
	require.Error(t, err)
}

func TestSync_SendsSignedRequestAndDecodesDifference(t *testing.T) {
	var got SyncRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sync", r.URL.Path)
		assert.Equal(t, "pub-key", r.Header.Get(HeaderTenantKey))
		assert.Equal(t, testCreds.Signature(), r.Header.Get(HeaderTenantSign))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"difference": []map[string]any{{
				"id": 9, "name": "Jane", "email": "jane@example.com", "country": "DE",
				"password": "hash", "created_at": "2024-01-01 00:00:00",
				"updated_at": "2024-02-01 00:00:00", "deleted_at": nil, "action": "update",
			}},
			"stats": map[string]int{"created": 1, "updated": 2, "deleted": 3},
		})
	}, func(o *Options) {
		o.TokenSource = func(context.Context) string { return "tok" }
	})

	users := []models.LocalPayload{{ID: 1, Email: "a@example.com"}}
	resp, err := c.Sync(context.Background(), users, models.Modes{models.ModePasswords})
	require.NoError(t, err)

	require.Len(t, got.Users, 1)
	assert.Equal(t, "a@example.com", got.Users[0].Email)
	assert.Equal(t, models.Modes{models.ModePasswords}, got.Modes)

	assert.Equal(t, models.Stats{Created: 1, Updated: 2, Deleted: 3}, resp.Stats)
	remote, err := resp.Users()
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, models.ActionUpdate, remote[0].Action)
	assert.Equal(t, int64(9), remote[0].RemoteID)
}

func TestSync_EmptyModesEncodedAsArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"users":[],"modes":[]}`, string(raw))
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "difference": []any{}, "stats": map[string]int{}})
	})

	resp, err := c.Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Difference)
}

func TestSync_UnknownActionInDifference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"difference": []map[string]any{{
				"id": 1, "email": "a@b.c", "created_at": "2024-01-01 00:00:00", "action": "merge",
			}},
		})
	})

	resp, err := c.Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	_, err = resp.Users()
	require.ErrorIs(t, err, models.ErrUnknownAction)
}

func TestSync_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation with encoded map",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"{\"username\":[\"The username field is required.\"],\"userId\":[\"bad\"]}"}`,
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, map[string][]string{"email": {"The email field is required."}}, ve.Fields)
			},
		},
		{
			name:   "validation with object",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":{"users.0.email":["invalid"]}}`,
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, []string{"invalid"}, ve.Fields["users.0.email"])
			},
		},
		{
			name:   "validation with plain message",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"broken"}`,
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "broken", ve.Message)
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"message":"bad signature"}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrUnauthorized)
				assert.Contains(t, err.Error(), "bad signature")
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `{"message":"upstream"}`,
			check: func(t *testing.T, err error) {
				var he *HTTPError
				require.ErrorAs(t, err, &he)
				assert.Equal(t, http.StatusBadGateway, he.Status)
				assert.Equal(t, "upstream", he.Message)
			},
		},
		{
			name:   "malformed success body",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrMalformedResponse)
			},
		},
		{
			name:   "non success status field",
			status: http.StatusOK,
			body:   `{"status":"error"}`,
			check: func(t *testing.T, err error) {
				var he *HTTPError
				require.ErrorAs(t, err, &he)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Sync(context.Background(), nil, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSync_TimeoutApplies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(o *Options) { o.SyncTimeout = 50 * time.Millisecond })

	_, err := c.Sync(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRequests_PathsAndRedactedLogging(t *testing.T) {
	var hits atomic.Int32
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "token": "jwt", "user": map[string]any{"id": 1}})
	})

	var buf bytes.Buffer
	c.logger = logging.NewText(&buf, slog.LevelDebug)

	ctx := context.Background()
	resp, err := c.Login(ctx, "a@b.c", "hunter2", true)
	require.NoError(t, err)
	assert.Equal(t, "jwt", resp.Token())
	assert.Equal(t, "success", resp.Status())
	assert.NotNil(t, resp.User())

	_, err = c.UnsafeLogin(ctx, "a@b.c", false)
	require.NoError(t, err)
	_, err = c.Register(ctx, RegisterRequest{UserID: 1, Name: "A", Email: "a@b.c", Password: "p"})
	require.NoError(t, err)
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	_, err = c.Me(ctx)
	require.NoError(t, err)
	_, err = c.Update(ctx, 5, map[string]any{"name": "B"})
	require.NoError(t, err)
	_, err = c.Forgot(ctx, "a@b.c")
	require.NoError(t, err)
	_, err = c.ValidateReset(ctx, "tok", "a@b.c")
	require.NoError(t, err)
	_, err = c.Reset(ctx, ResetRequest{Token: "tok", Email: "a@b.c", Password: "x", Confirmation: "x"})
	require.NoError(t, err)
	_, err = c.Delete(ctx, 5)
	require.NoError(t, err)
	_, err = c.Restore(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(11), hits.Load())
	assert.Equal(t, []string{
		"POST /login",
		"POST /unsafe-login",
		"POST /register",
		"POST /refresh",
		"GET /me",
		"POST /update",
		"POST /forgot",
		"POST /reset/tok/a@b.c/validate",
		"POST /reset/tok/a@b.c",
		"POST /delete/5",
		"POST /restore/5",
	}, paths)

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "sending a login request")
}

func TestRateLimiter_RespectsContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	}, func(o *Options) { o.RequestsPerSecond = 0.001 })

	_, err := c.Me(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Me(ctx)
	require.Error(t, err)
}
