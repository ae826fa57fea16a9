// Package webhook exposes the HTTP endpoint the remote service calls to push
// single-user changes and to ask for a user set comparison.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

const (
	KeyUserSync    = "user.sync"
	KeyAssessUsers = "assess.users"
)

var ErrUnknownWebhook = errors.New("webhook cannot be found")

// ValidationError reports a payload that failed validation.
type ValidationError struct {
	Fields models.FieldErrors
}

func (e *ValidationError) Error() string {
	return "payload is invalid: " + e.Fields.Error()
}

// HandlerError wraps a failure raised while handling a valid payload.
type HandlerError struct {
	Key string
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("webhook %s: %v", e.Key, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Handler handles one webhook payload. A nil result means there is nothing
// to report back besides success.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) (any, error)
}

type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	return f(ctx, payload)
}

// Dispatcher routes payloads to handlers by webhook key.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(key string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = h
}

func (d *Dispatcher) Has(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[key]
	return ok
}

// Keys lists the registered webhook keys in order.
func (d *Dispatcher) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dispatch runs the handler registered for key. Validation errors are passed
// through as is; every other failure is wrapped in a HandlerError.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, payload json.RawMessage) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[key]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWebhook, key)
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	out, err := h.Handle(ctx, payload)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, &HandlerError{Key: key, Err: err}
	}
	return out, nil
}
