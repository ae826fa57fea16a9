package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/handlers"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

// Lookup finds a local user by email. It matches case-insensitively and
// returns common.ErrorNotFound when no user exists.
type Lookup interface {
	FindByEmail(ctx context.Context, email string) (*models.LocalUser, error)
}

// Outcome is what happened to a single difference entry.
type Outcome int

const (
	Skipped Outcome = iota
	Created
	Updated
	Deleted
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "skipped"
	}
}

// RecordError reports a failure confined to one record. The run goes on.
type RecordError struct {
	Email  string
	Action models.Action
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("cannot %s the user %s: %v", e.Action, e.Email, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Resolver decides and applies the local effect of one remote difference.
type Resolver struct {
	lookup     Lookup
	dispatcher handlers.Dispatcher
	locks      *keyedMutex
}

func NewResolver(lookup Lookup, dispatcher handlers.Dispatcher) *Resolver {
	return &Resolver{
		lookup:     lookup,
		dispatcher: dispatcher,
		locks:      newKeyedMutex(),
	}
}

// Resolve applies remote according to its action. An unknown action is
// returned as models.ErrUnknownAction; malformed records, lookup and handler
// failures come back as *RecordError.
func (r *Resolver) Resolve(ctx context.Context, remote models.RemoteUser, modes models.Modes) (Outcome, error) {
	if !remote.Action.Valid() {
		return Skipped, fmt.Errorf("%w: %q for %s", models.ErrUnknownAction, remote.Action, remote.Email)
	}
	if len(remote.Problems) > 0 {
		return Skipped, &RecordError{
			Email:  remote.Email,
			Action: remote.Action,
			Err:    fmt.Errorf("%w: %s", models.ErrInvalidRecord, remote.Problems.Error()),
		}
	}

	unlock := r.locks.Lock(models.NormalizeEmail(remote.Email))
	defer unlock()

	local, err := r.find(ctx, remote.Email)
	if err != nil {
		return Skipped, &RecordError{Email: remote.Email, Action: remote.Action, Err: err}
	}

	switch remote.Action {
	case models.ActionCreate:
		if local != nil {
			return Skipped, nil
		}
		return r.dispatch(ctx, handlers.KeyCreate, Created, handlers.Payload{Remote: remote})

	case models.ActionUpdate:
		if local == nil || localNewerThanRemote(local, remote) {
			return Skipped, nil
		}
		if !modes.Has(models.ModePasswords) {
			remote = remote.WithoutPassword()
		}
		return r.dispatch(ctx, handlers.KeyUpdate, Updated, handlers.Payload{Remote: remote, Local: local})

	default: // models.ActionDelete
		if local == nil {
			return Skipped, nil
		}
		return r.dispatch(ctx, handlers.KeyDelete, Deleted, handlers.Payload{Remote: remote, Local: local})
	}
}

func (r *Resolver) find(ctx context.Context, email string) (*models.LocalUser, error) {
	local, err := r.lookup.FindByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return local, err
}

func (r *Resolver) dispatch(ctx context.Context, key handlers.Key, ok Outcome, p handlers.Payload) (Outcome, error) {
	if err := r.dispatcher.Dispatch(ctx, key, p); err != nil {
		return Skipped, &RecordError{Email: p.Remote.Email, Action: p.Remote.Action, Err: err}
	}
	return ok, nil
}

// localNewerThanRemote holds only for users already linked to the remote
// side whose local copy changed after the remote one.
func localNewerThanRemote(local *models.LocalUser, remote models.RemoteUser) bool {
	if local.RemoteID == nil || remote.UpdatedAt == nil || local.UpdatedAt == nil {
		return false
	}
	return remote.UpdatedAt.Before(*local.UpdatedAt)
}
