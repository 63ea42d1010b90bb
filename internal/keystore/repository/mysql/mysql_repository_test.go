package mysql

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

	"github.com/allisson/topogate/internal/database"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

func setupMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewRepository(db, database.NewTxManager(db)), mock
}

func TestRepository_CreateKeystore(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO keystores (name, created_at) VALUES (?, ?)`)).
		WithArgs("__gateway-credentials", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.CreateKeystore(context.Background(), "__gateway-credentials"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Set(t *testing.T) {
	now := time.Now().UTC()
	entry := &keystoreDomain.Entry{Store: "creds", Alias: "ldap", Value: []byte("sealed"), CreatedAt: now, UpdatedAt: now}

	repo, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores WHERE name = ?`)).
		WithArgs("creds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("creds"))
	mock.ExpectExec(regexp.QuoteMeta(`ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`)).
		WithArgs("creds", "ldap", []byte("sealed"), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Set(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SetExecFailure(t *testing.T) {
	now := time.Now().UTC()
	entry := &keystoreDomain.Entry{Store: "creds", Alias: "ldap", Value: []byte("sealed"), CreatedAt: now, UpdatedAt: now}
	boom := errors.New("connection reset")

	repo, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores`)).
		WithArgs("creds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("creds"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO keystore_entries`)).
		WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.Set(context.Background(), entry)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE store = ? AND alias = ?`)).
		WithArgs("creds", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "creds", "missing")
	assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)
}

func TestRepository_LoadEmpty(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores`)).
		WithArgs("creds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("creds"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM keystore_entries`)).
		WithArgs("creds").
		WillReturnRows(sqlmock.NewRows([]string{"store", "alias", "value", "created_at", "updated_at"}))

	entries, err := repo.Load(context.Background(), "creds")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepository_Delete(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM keystore_entries WHERE store = ? AND alias = ?`)).
		WithArgs("creds", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "creds", "gone")
	assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
