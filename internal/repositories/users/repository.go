// Package users stores the host application's users for the connector.
// SQLite and PostgreSQL implementations share the Repository contract and
// run on any dbx.DBTX, so callers decide whether a call joins a transaction.
package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

type Repository interface {
	// FindByEmail matches case-insensitively and includes soft-deleted rows.
	// Returns common.ErrorNotFound when nothing matches.
	FindByEmail(ctx context.Context, email string) (*models.LocalUser, error)
	FindByID(ctx context.Context, id int64) (*models.LocalUser, error)
	// List returns every user that is not soft-deleted, ordered by id.
	List(ctx context.Context) ([]models.LocalUser, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.LocalUser, error)
	// RemoteIDs maps every local id to its remote id (nil when unsynced).
	RemoteIDs(ctx context.Context) (map[int64]*int64, error)
	Create(ctx context.Context, user *models.LocalUser) (*models.LocalUser, error)
	Update(ctx context.Context, id int64, changes Changes) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}

// Changes describes an update coming from the remote side. A nil Password
// or RemoteID leaves the stored value untouched; Name and Country are
// written as given.
type Changes struct {
	RemoteID  *int64
	Name      *string
	Email     string
	Country   *string
	Password  *string
	UpdatedAt *time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, remote_id, name, email, country, password, created_at, updated_at, deleted_at`

func scanUser(row rowScanner) (*models.LocalUser, error) {
	var (
		u         models.LocalUser
		remoteID  sql.NullInt64
		name      sql.NullString
		country   sql.NullString
		password  sql.NullString
		updatedAt sql.NullTime
		deletedAt sql.NullTime
	)

	if err := row.Scan(&u.ID, &remoteID, &name, &u.Email, &country, &password, &u.CreatedAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	if remoteID.Valid {
		u.RemoteID = &remoteID.Int64
	}
	u.Name = nullString(name)
	u.Country = nullString(country)
	u.Password = nullString(password)
	u.UpdatedAt = nullTime(updatedAt)
	u.DeletedAt = nullTime(deletedAt)
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]models.LocalUser, error) {
	defer rows.Close()

	var out []models.LocalUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func scanRemoteIDs(rows *sql.Rows) (map[int64]*int64, error) {
	defer rows.Close()

	out := map[int64]*int64{}
	for rows.Next() {
		var (
			id       int64
			remoteID sql.NullInt64
		)
		if err := rows.Scan(&id, &remoteID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if remoteID.Valid {
			v := remoteID.Int64
			out[id] = &v
		} else {
			out[id] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
