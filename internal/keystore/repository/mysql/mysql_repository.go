// Package mysql implements keystore persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/topogate/internal/database"
	apperrors "github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

// Repository stores keystores in the keystores and keystore_entries tables.
// Entry values are BLOB. Every method honors a transaction carried in ctx
// via database.GetTx.
type Repository struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewRepository creates a MySQL keystore repository.
func NewRepository(db *sql.DB, txManager database.TxManager) *Repository {
	return &Repository{db: db, txManager: txManager}
}

// CreateKeystore inserts the keystore row unless it exists.
func (m *Repository) CreateKeystore(ctx context.Context, store string) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT IGNORE INTO keystores (name, created_at) VALUES (?, ?)`

	if _, err := querier.ExecContext(ctx, query, store, time.Now().UTC()); err != nil {
		return apperrors.Wrap(err, "failed to create keystore")
	}
	return nil
}

// Load returns every entry of the keystore ordered by alias.
func (m *Repository) Load(ctx context.Context, store string) ([]*keystoreDomain.Entry, error) {
	if err := m.exists(ctx, store); err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, m.db)

	query := `SELECT store, alias, value, created_at, updated_at FROM keystore_entries
			  WHERE store = ? ORDER BY alias`

	rows, err := querier.QueryContext(ctx, query, store)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load keystore")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*keystoreDomain.Entry
	for rows.Next() {
		var entry keystoreDomain.Entry
		if err := rows.Scan(&entry.Store, &entry.Alias, &entry.Value, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns a single entry.
func (m *Repository) Get(ctx context.Context, store, alias string) (*keystoreDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT store, alias, value, created_at, updated_at FROM keystore_entries
			  WHERE store = ? AND alias = ?`

	var entry keystoreDomain.Entry
	err := querier.QueryRowContext(ctx, query, store, alias).
		Scan(&entry.Store, &entry.Alias, &entry.Value, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keystoreDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get keystore entry")
	}
	return &entry, nil
}

// Set upserts an entry inside a transaction that first checks the keystore exists.
func (m *Repository) Set(ctx context.Context, entry *keystoreDomain.Entry) error {
	return m.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := m.exists(ctx, entry.Store); err != nil {
			return err
		}

		querier := database.GetTx(ctx, m.db)

		query := `INSERT INTO keystore_entries (store, alias, value, created_at, updated_at)
				  VALUES (?, ?, ?, ?, ?)
				  ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`

		_, err := querier.ExecContext(
			ctx,
			query,
			entry.Store,
			entry.Alias,
			entry.Value,
			entry.CreatedAt,
			entry.UpdatedAt,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to set keystore entry")
		}
		return nil
	})
}

// Delete removes an entry. Returns ErrEntryNotFound when no row matched.
func (m *Repository) Delete(ctx context.Context, store, alias string) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM keystore_entries WHERE store = ? AND alias = ?`

	result, err := querier.ExecContext(ctx, query, store, alias)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete keystore entry")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to delete keystore entry")
	}
	if affected == 0 {
		return keystoreDomain.ErrEntryNotFound
	}
	return nil
}

func (m *Repository) exists(ctx context.Context, store string) error {
	querier := database.GetTx(ctx, m.db)

	var name string
	err := querier.QueryRowContext(ctx, `SELECT name FROM keystores WHERE name = ?`, store).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Wrapf(keystoreDomain.ErrKeystoreNotFound, "keystore %q", store)
		}
		return apperrors.Wrap(err, "failed to look up keystore")
	}
	return nil
}
