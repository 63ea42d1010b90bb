package postgresql

import (
	"context"
	"database/sql"
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

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO keystores (name, created_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`)).
		WithArgs("__gateway-keys", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateKeystore(context.Background(), "__gateway-keys")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT store, alias, value, created_at, updated_at FROM keystore_entries`)).
			WithArgs("creds", "ldap").
			WillReturnRows(sqlmock.NewRows([]string{"store", "alias", "value", "created_at", "updated_at"}).
				AddRow("creds", "ldap", []byte("sealed"), now, now))

		entry, err := repo.Get(context.Background(), "creds", "ldap")
		require.NoError(t, err)
		assert.Equal(t, "ldap", entry.Alias)
		assert.Equal(t, []byte("sealed"), entry.Value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM keystore_entries`)).
			WithArgs("creds", "missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "creds", "missing")
		assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)
	})
}

func TestRepository_Load(t *testing.T) {
	now := time.Now().UTC()

	t.Run("entries", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores WHERE name = $1`)).
			WithArgs("creds").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("creds"))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM keystore_entries`)).
			WithArgs("creds").
			WillReturnRows(sqlmock.NewRows([]string{"store", "alias", "value", "created_at", "updated_at"}).
				AddRow("creds", "a", []byte("1"), now, now).
				AddRow("creds", "b", []byte("2"), now, now))

		entries, err := repo.Load(context.Background(), "creds")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a", entries[0].Alias)
		assert.Equal(t, "b", entries[1].Alias)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing keystore", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores`)).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, keystoreDomain.ErrKeystoreNotFound)
	})
}

func TestRepository_Set(t *testing.T) {
	now := time.Now().UTC()
	entry := &keystoreDomain.Entry{Store: "creds", Alias: "ldap", Value: []byte("sealed"), CreatedAt: now, UpdatedAt: now}

	t.Run("upsert in transaction", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores`)).
			WithArgs("creds").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("creds"))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO keystore_entries`)).
			WithArgs("creds", "ldap", []byte("sealed"), now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Set(context.Background(), entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing keystore rolls back", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM keystores`)).
			WithArgs("creds").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.Set(context.Background(), entry)
		assert.ErrorIs(t, err, keystoreDomain.ErrKeystoreNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM keystore_entries WHERE store = $1 AND alias = $2`)).
			WithArgs("creds", "ldap").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(context.Background(), "creds", "ldap"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		repo, mock := setupMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM keystore_entries`)).
			WithArgs("creds", "ldap").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), "creds", "ldap")
		assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)
	})
}
