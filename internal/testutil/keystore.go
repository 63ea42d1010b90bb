package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

// KeystoreRepository is the persistence contract shared by the keystore backends.
type KeystoreRepository interface {
	CreateKeystore(ctx context.Context, store string) error
	Load(ctx context.Context, store string) ([]*keystoreDomain.Entry, error)
	Get(ctx context.Context, store, alias string) (*keystoreDomain.Entry, error)
	Set(ctx context.Context, entry *keystoreDomain.Entry) error
	Delete(ctx context.Context, store, alias string) error
}

// RunKeystoreRepositoryContract exercises the behavior every keystore backend must share.
func RunKeystoreRepositoryContract(t *testing.T, repo KeystoreRepository) {
	t.Helper()
	ctx := context.Background()
	store := keystoreDomain.GatewayCredentialsStore
	created := time.Now().UTC().Truncate(time.Second)

	t.Run("missing keystore", func(t *testing.T) {
		_, err := repo.Load(ctx, "missing-store")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		err = repo.Set(ctx, &keystoreDomain.Entry{Store: "missing-store", Alias: "a", Value: []byte("v")})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("create is idempotent", func(t *testing.T) {
		require.NoError(t, repo.CreateKeystore(ctx, store))
		require.NoError(t, repo.CreateKeystore(ctx, store))

		entries, err := repo.Load(ctx, store)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("set get and update", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, &keystoreDomain.Entry{
			Store: store, Alias: "ldap-password", Value: []byte("first"), CreatedAt: created, UpdatedAt: created,
		}))
		require.NoError(t, repo.Set(ctx, &keystoreDomain.Entry{
			Store: store, Alias: "test-cluster/db-password", Value: []byte("scoped"), CreatedAt: created, UpdatedAt: created,
		}))

		updated := created.Add(time.Minute)
		require.NoError(t, repo.Set(ctx, &keystoreDomain.Entry{
			Store: store, Alias: "ldap-password", Value: []byte("second"), CreatedAt: updated, UpdatedAt: updated,
		}))

		entry, err := repo.Get(ctx, store, "ldap-password")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), entry.Value)
		assert.True(t, entry.CreatedAt.Equal(created))
		assert.True(t, entry.UpdatedAt.Equal(updated))

		entries, err := repo.Load(ctx, store)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "ldap-password", entries[0].Alias)
		assert.Equal(t, "test-cluster/db-password", entries[1].Alias)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, store, "ldap-password"))

		_, err := repo.Get(ctx, store, "ldap-password")
		assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)

		err = repo.Delete(ctx, store, "ldap-password")
		assert.ErrorIs(t, err, keystoreDomain.ErrEntryNotFound)
	})
}
