package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
	"golang.org/x/time/rate"
)

const (
	HeaderTenantKey  = "X-Tenant-Key"
	HeaderTenantSign = "X-Tenant-Sign"

	DefaultRequestTimeout = 30 * time.Second
	DefaultSyncTimeout    = 10 * time.Minute
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL     string
	Credentials tenant.Credentials

	// RequestTimeout bounds single-record requests.
	RequestTimeout time.Duration
	// SyncTimeout bounds one bulk sync request.
	SyncTimeout time.Duration
	// RequestsPerSecond throttles outgoing requests; 0 disables throttling.
	RequestsPerSecond float64

	HTTPClient  *http.Client
	TokenSource TokenSource
	Logger      logging.Logger
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL   string
	key       string
	sign      string
	http      *http.Client
	limiter   *rate.Limiter
	token     TokenSource
	logger    logging.Logger
	timeout   time.Duration
	syncLimit time.Duration
}

var _ Client = (*HTTPClient)(nil)

// New validates the options and builds a client.
func New(opts Options) (*HTTPClient, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("remote service url is required")
	}

	c := &HTTPClient{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/") + "/",
		key:       opts.Credentials.Public,
		sign:      opts.Credentials.Signature(),
		http:      opts.HTTPClient,
		token:     opts.TokenSource,
		logger:    opts.Logger,
		timeout:   opts.RequestTimeout,
		syncLimit: opts.SyncTimeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRequestTimeout
	}
	if c.syncLimit <= 0 {
		c.syncLimit = DefaultSyncTimeout
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Sync posts one batch of local users and returns the remote difference.
func (c *HTTPClient) Sync(ctx context.Context, users []models.LocalPayload, modes models.Modes) (*SyncResponse, error) {
	if users == nil {
		users = []models.LocalPayload{}
	}
	c.logger.Debug(ctx, "sending a sync request", "users", len(users), "modes", modes.String())

	var out SyncResponse
	if err := c.do(ctx, "sync", http.MethodPost, "sync", SyncRequest{Users: users, Modes: modes}, c.syncLimit, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, &HTTPError{Status: http.StatusOK, Message: fmt.Sprintf("unexpected sync status %q", out.Status)}
	}

	c.logger.Debug(ctx, "sync response received", "difference", len(out.Difference),
		"created", out.Stats.Created, "updated", out.Stats.Updated, "deleted", out.Stats.Deleted)
	return &out, nil
}

// call is the shared path for single-record requests.
func (c *HTTPClient) call(ctx context.Context, name, method, path string, body map[string]any) (Response, error) {
	if body != nil {
		c.logger.Debug(ctx, "sending a "+name+" request", "params", logging.Redact(body))
	} else {
		c.logger.Debug(ctx, "sending a "+name+" request")
	}

	var payload any
	if body != nil {
		payload = body
	}

	out := Response{}
	if err := c.do(ctx, name, method, path, payload, c.timeout, &out); err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "got a "+name+" response", "body", logging.Redact(out))
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, name, method, path string, body any, timeout time.Duration, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), reader)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderTenantKey, c.key)
	req.Header.Set(HeaderTenantSign, c.sign)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s response: %w", name, err)
	}

	c.logger.Debug(ctx, "got a response", "request", name, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return mapError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, name, err)
	}
	return nil
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
}

func mapError(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	switch status {
	case http.StatusUnprocessableEntity:
		if len(body.Message) == 0 {
			return &ValidationError{Message: strings.TrimSpace(string(raw))}
		}
		return newValidationError(body.Message)
	case http.StatusUnauthorized:
		if msg := plainMessage(body.Message); msg != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return ErrUnauthorized
	default:
		return &HTTPError{Status: status, Message: plainMessage(body.Message)}
	}
}

func plainMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
