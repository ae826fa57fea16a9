package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

var _ Repository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*models.LocalUser, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE lower(email) = ?
		 ORDER BY deleted_at IS NOT NULL, id
		 LIMIT 1`

	return r.one(ctx, query, models.NormalizeEmail(email))
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*models.LocalUser, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = ?`

	return r.one(ctx, query, id)
}

func (r *SQLiteRepository) one(ctx context.Context, query string, args ...any) (*models.LocalUser, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.LocalUser, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE deleted_at IS NULL
		 ORDER BY id`

	return r.many(ctx, query)
}

func (r *SQLiteRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.LocalUser, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id IN (` + strings.Join(placeholders, ", ") + `)
		 ORDER BY id`

	return r.many(ctx, query, args...)
}

func (r *SQLiteRepository) many(ctx context.Context, query string, args ...any) ([]models.LocalUser, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) RemoteIDs(ctx context.Context) (map[int64]*int64, error) {
	query := `SELECT id, remote_id FROM users ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanRemoteIDs(rows)
}

func (r *SQLiteRepository) Create(ctx context.Context, user *models.LocalUser) (*models.LocalUser, error) {
	query :=
		`INSERT INTO users (remote_id, name, email, country, password, created_at, updated_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.RemoteID, user.Name, user.Email, user.Country, user.Password, user.CreatedAt.UTC(), utcPtr(user.UpdatedAt), utcPtr(user.DeletedAt)).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id int64, ch Changes) error {
	query :=
		`UPDATE users
		 SET remote_id = COALESCE(?, remote_id),
		     name = ?,
		     email = ?,
		     country = ?,
		     password = COALESCE(?, password),
		     updated_at = COALESCE(?, updated_at)
		 WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, ch.RemoteID, ch.Name, ch.Email, ch.Country, ch.Password, utcPtr(ch.UpdatedAt), id)
	return affected(res, err)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query :=
		`UPDATE users
		 SET deleted_at = COALESCE(deleted_at, ?)
		 WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	return affected(res, err)
}
