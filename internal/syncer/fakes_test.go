package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/authconnector/internal/client"
	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/handlers"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

func ptr[T any](v T) *T { return &v }

type fakeLookup struct {
	mu    sync.Mutex
	users map[string]*models.LocalUser
	err   error
}

func newLookup(users ...models.LocalUser) *fakeLookup {
	l := &fakeLookup{users: map[string]*models.LocalUser{}}
	for i := range users {
		u := users[i]
		l.users[models.NormalizeEmail(u.Email)] = &u
	}
	return l
}

func (l *fakeLookup) FindByEmail(_ context.Context, email string) (*models.LocalUser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	u, ok := l.users[models.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

type call struct {
	Key     handlers.Key
	Payload handlers.Payload
}

// fakeDispatcher records calls and fails for emails listed in fail.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, key handlers.Key, p handlers.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{Key: key, Payload: p})
	if err, ok := d.fail[p.Remote.Email]; ok {
		return err
	}
	return nil
}

// add stores u so later lookups find it.
func (l *fakeLookup) add(u models.LocalUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[models.NormalizeEmail(u.Email)] = &u
}

// creatingDispatcher makes every create visible to the lookup.
type creatingDispatcher struct {
	fakeDispatcher
	lookup *fakeLookup
}

func (d *creatingDispatcher) Dispatch(ctx context.Context, key handlers.Key, p handlers.Payload) error {
	if err := d.fakeDispatcher.Dispatch(ctx, key, p); err != nil {
		return err
	}
	if key == handlers.KeyCreate {
		d.lookup.add(models.LocalUser{Email: p.Remote.Email, CreatedAt: p.Remote.CreatedAt})
	}
	return nil
}

func (d *fakeDispatcher) Calls() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]call(nil), d.calls...)
}

// scriptedClient answers each Sync call with the next step.
type scriptedClient struct {
	mu    sync.Mutex
	steps []func(ctx context.Context, users []models.LocalPayload) (*client.SyncResponse, error)
	sent  [][]models.LocalPayload
	modes []models.Modes
}

func (c *scriptedClient) Sync(ctx context.Context, users []models.LocalPayload, modes models.Modes) (*client.SyncResponse, error) {
	c.mu.Lock()
	i := len(c.sent)
	c.sent = append(c.sent, users)
	c.modes = append(c.modes, modes)
	var step func(context.Context, []models.LocalPayload) (*client.SyncResponse, error)
	if i < len(c.steps) {
		step = c.steps[i]
	}
	c.mu.Unlock()

	if step == nil {
		return nil, errors.New("unexpected sync call")
	}
	return step(ctx, users)
}

func (c *scriptedClient) Sent() [][]models.LocalPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]models.LocalPayload(nil), c.sent...)
}

func respond(stats models.Stats, diff ...models.RemoteRecord) func(context.Context, []models.LocalPayload) (*client.SyncResponse, error) {
	return func(context.Context, []models.LocalPayload) (*client.SyncResponse, error) {
		return &client.SyncResponse{Status: "success", Difference: diff, Stats: stats}, nil
	}
}

func fail(err error) func(context.Context, []models.LocalPayload) (*client.SyncResponse, error) {
	return func(context.Context, []models.LocalPayload) (*client.SyncResponse, error) {
		return nil, err
	}
}
