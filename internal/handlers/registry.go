package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

type Key string

const (
	KeyCreate Key = "sync.create"
	KeyUpdate Key = "sync.update"
	KeyDelete Key = "sync.delete"
)

// Keys lists every handler key the engine may dispatch.
var Keys = []Key{KeyCreate, KeyUpdate, KeyDelete}

var (
	ErrUnknownKey        = errors.New("unknown handler key")
	ErrDuplicateHandler  = errors.New("handler already registered")
	ErrNilHandler        = errors.New("handler is nil")
	ErrHandlerNotDefined = errors.New("handler not defined")
)

func (k Key) Valid() bool {
	switch k {
	case KeyCreate, KeyUpdate, KeyDelete:
		return true
	default:
		return false
	}
}

// KeyFor maps a sync action to its handler key.
func KeyFor(a models.Action) (Key, error) {
	switch a {
	case models.ActionCreate:
		return KeyCreate, nil
	case models.ActionUpdate:
		return KeyUpdate, nil
	case models.ActionDelete:
		return KeyDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownAction, a)
	}
}

// Payload is what a handler receives. Local is nil for creates.
type Payload struct {
	Remote models.RemoteUser
	Local  *models.LocalUser
}

type Func func(ctx context.Context, tx dbx.DBTX, p Payload) error

// Dispatcher is the part of the registry the engine depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, key Key, p Payload) error
}

// Registry maps keys to handler functions.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[Key]Func
	tx      dbx.TxRunner
	retries uint64
	backoff time.Duration
}

type Option func(*Registry)

// WithRetries replays a handler transaction up to n more times when the
// database reports a transient conflict.
func WithRetries(n uint64, backoff time.Duration) Option {
	return func(r *Registry) {
		r.retries = n
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

func NewRegistry(tx dbx.TxRunner, opts ...Option) *Registry {
	r := &Registry{
		funcs:   make(map[Key]Func, len(Keys)),
		tx:      tx,
		backoff: 50 * time.Millisecond,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Register(key Key, fn Func) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	r.funcs[key] = fn
	return nil
}

// Validate checks that every given key has a handler. With no arguments it
// checks all of Keys.
func (r *Registry) Validate(keys ...Key) error {
	if len(keys) == 0 {
		keys = Keys
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, k := range keys {
		if _, ok := r.funcs[k]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrHandlerNotDefined, k))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Dispatch(ctx context.Context, key Key, p Payload) error {
	r.mu.RLock()
	fn, ok := r.funcs[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotDefined, key)
	}

	b := retry.WithMaxRetries(r.retries, retry.NewExponential(r.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.tx.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			return fn(ctx, tx, p)
		})
		if dbx.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
