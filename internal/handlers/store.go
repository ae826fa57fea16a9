package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/repositories/users"
)

var (
	ErrInvalidPasswordHash = errors.New("password is not a bcrypt hash")
	ErrMissingLocal        = errors.New("local user is required")
)

// UsersFactory binds a users repository to a transactional handle.
// repomanager.RepositoryManager satisfies it.
type UsersFactory interface {
	Users(db dbx.DBTX) users.Repository
}

// Clock returns the current time; tests replace it.
var Clock = func() time.Time { return time.Now().UTC() }

// RegisterStoreHandlers registers create, update and delete handlers that
// persist remote changes through the users repository.
func RegisterStoreHandlers(reg *Registry, repos UsersFactory) error {
	return errors.Join(
		reg.Register(KeyCreate, storeCreate(repos)),
		reg.Register(KeyUpdate, storeUpdate(repos)),
		reg.Register(KeyDelete, storeDelete(repos)),
	)
}

func storeCreate(repos UsersFactory) Func {
	return func(ctx context.Context, tx dbx.DBTX, p Payload) error {
		if err := checkHash(p.Remote.Password); err != nil {
			return err
		}

		remoteID := p.Remote.RemoteID
		u := &models.LocalUser{
			RemoteID:  &remoteID,
			Name:      p.Remote.Name,
			Email:     p.Remote.Email,
			Country:   p.Remote.Country,
			Password:  p.Remote.Password,
			CreatedAt: p.Remote.CreatedAt,
			UpdatedAt: p.Remote.UpdatedAt,
			DeletedAt: p.Remote.DeletedAt,
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = Clock()
		}

		_, err := repos.Users(tx).Create(ctx, u)
		return err
	}
}

func storeUpdate(repos UsersFactory) Func {
	return func(ctx context.Context, tx dbx.DBTX, p Payload) error {
		if p.Local == nil {
			return fmt.Errorf("%w: %s", ErrMissingLocal, KeyUpdate)
		}
		if err := checkHash(p.Remote.Password); err != nil {
			return err
		}

		remoteID := p.Remote.RemoteID
		return repos.Users(tx).Update(ctx, p.Local.ID, users.Changes{
			RemoteID:  &remoteID,
			Name:      p.Remote.Name,
			Email:     p.Remote.Email,
			Country:   p.Remote.Country,
			Password:  p.Remote.Password,
			UpdatedAt: p.Remote.UpdatedAt,
		})
	}
}

func storeDelete(repos UsersFactory) Func {
	return func(ctx context.Context, tx dbx.DBTX, p Payload) error {
		if p.Local == nil {
			return fmt.Errorf("%w: %s", ErrMissingLocal, KeyDelete)
		}

		at := Clock()
		if p.Remote.DeletedAt != nil {
			at = *p.Remote.DeletedAt
		}
		return repos.Users(tx).SoftDelete(ctx, p.Local.ID, at)
	}
}

func checkHash(password *string) error {
	if password == nil {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(*password)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	return nil
}
