package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhub/apiserver/types"
)

var userColumns = []string{
	"id", "username", "email", "fullname", "avatar", "cover_image",
	"password_hash", "refresh_token", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db), mock
}

func TestGetByID_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	rows := sqlmock.NewRows(userColumns).
		AddRow("u-1", "alice", "a@x.com", "Alice Wonder", "http://cdn/a.png", "", "hash", nil, now, now)
	mock.ExpectQuery(`(?s)SELECT .* FROM users\s+WHERE id = \$1`).
		WithArgs("u-1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Empty(t, got.RefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM users\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPublicByID_ExcludesSecretColumns(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "username", "email", "fullname", "avatar", "cover_image", "created_at", "updated_at"}).
		AddRow("u-1", "alice", "a@x.com", "Alice Wonder", "http://cdn/a.png", "", now, now)
	mock.ExpectQuery(`(?s)SELECT id, username, email, fullname, avatar, cover_image, created_at, updated_at\s+FROM users`).
		WithArgs("u-1").
		WillReturnRows(rows)

	got, err := repo.GetPublicByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, types.PublicUser{
		ID: "u-1", Username: "alice", Email: "a@x.com", Fullname: "Alice Wonder",
		Avatar: "http://cdn/a.png", CreatedAt: now, UpdatedAt: now,
	}, got)
}

func TestFindByUsernameOrEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	rows := sqlmock.NewRows(userColumns).
		AddRow("u-1", "alice", "a@x.com", "Alice Wonder", "a", "c", "hash", "rt", now, now)
	mock.ExpectQuery(`(?s)WHERE \(\$1 <> '' AND username = \$1\) OR \(\$2 <> '' AND email = \$2\)`).
		WithArgs("", "a@x.com").
		WillReturnRows(rows)

	got, err := repo.FindByUsernameOrEmail(context.Background(), "", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, "rt", got.RefreshToken)
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.com", "Alice Wonder", "a", "", "hash",
			sql.NullString{}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), types.User{
		Username: "alice", Email: "a@x.com", Fullname: "Alice Wonder", Avatar: "a", PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)INSERT INTO users`).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	_, err := repo.Create(context.Background(), types.User{Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)INSERT INTO users`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), types.User{Username: "alice"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestSetRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE users\s+SET refresh_token = \$1`).
		WithArgs(sql.NullString{String: "tok", Valid: true}, sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE users\s+SET refresh_token = \$1`).
		WithArgs(sql.NullString{}, sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetRefreshToken(context.Background(), "u-1", "tok"))
	require.NoError(t, repo.SetRefreshToken(context.Background(), "u-1", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRefreshToken_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRefreshToken(context.Background(), "gone", "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE users\s+SET refresh_token = \$1.*WHERE id = \$3 AND refresh_token = \$4`).
		WithArgs(sql.NullString{String: "next", Valid: true}, sqlmock.AnyArg(), "u-1", "cur").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReplaceRefreshToken(context.Background(), "u-1", "cur", "next"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRefreshToken_Stale(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE users.*AND refresh_token = \$4`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "u-1", "old").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReplaceRefreshToken(context.Background(), "u-1", "old", "next")
	assert.ErrorIs(t, err, ErrNotFound)
}
