package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

func newPostgres(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

var cols = []string{"id", "remote_id", "name", "email", "country", "password", "created_at", "updated_at", "deleted_at"}

func TestPostgres_FindByEmail(t *testing.T) {
	r, mock := newPostgres(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lower(email) = $1`)).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), int64(9), "Jane", "Jane@example.com", nil, "hash", created, nil, nil))

	u, err := r.FindByEmail(context.Background(), " JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ID)
	assert.Equal(t, int64(9), *u.RemoteID)
	assert.Nil(t, u.Country)
	assert.Equal(t, "hash", *u.Password)
	assert.Equal(t, created, u.CreatedAt)
}

func TestPostgres_FindByEmail_NotFound(t *testing.T) {
	r, mock := newPostgres(t)

	mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs("x@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := r.FindByEmail(context.Background(), "x@example.com")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_FindByID_DBError(t *testing.T) {
	r, mock := newPostgres(t)

	mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("conn reset"))

	_, err := r.FindByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_ListByIDs_BuildsPlaceholders(t *testing.T) {
	r, mock := newPostgres(t)
	created := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id IN ($1, $2, $3)`)).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), nil, nil, "a@x.io", nil, nil, created, nil, nil).
			AddRow(int64(3), nil, nil, "c@x.io", nil, nil, created, created, nil))

	got, err := r.ListByIDs(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].UpdatedAt)
	assert.NotNil(t, got[1].UpdatedAt)
}

func TestPostgres_Create(t *testing.T) {
	r, mock := newPostgres(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "n@x.io", sqlmock.AnyArg(), sqlmock.AnyArg(), created, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	u, err := r.Create(context.Background(), &models.LocalUser{Email: "n@x.io", CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, int64(11), u.ID)

	deleted := created.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`updated_at, deleted_at)`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "d@x.io", sqlmock.AnyArg(), sqlmock.AnyArg(), created, nil, deleted).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	_, err = r.Create(context.Background(), &models.LocalUser{Email: "d@x.io", CreatedAt: created, DeletedAt: &deleted})
	require.NoError(t, err)
}

func TestPostgres_UpdateAndSoftDelete(t *testing.T) {
	r, mock := newPostgres(t)
	at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`password = COALESCE($5, password)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET deleted_at = COALESCE(deleted_at, $1)`)).
		WithArgs(at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Update(context.Background(), 4, Changes{Email: "a@x.io", UpdatedAt: &at}))
	err := r.SoftDelete(context.Background(), 4, at)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_RemoteIDs(t *testing.T) {
	r, mock := newPostgres(t)

	mock.ExpectQuery(`SELECT id, remote_id FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "remote_id"}).
			AddRow(int64(1), int64(100)).
			AddRow(int64(2), nil))

	got, err := r.RemoteIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), *got[1])
	assert.Nil(t, got[2])
}
