// Package postgresql implements keystore persistence for PostgreSQL.
package postgresql

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
// Entry values are BYTEA. Every method honors a transaction carried in ctx
// via database.GetTx.
type Repository struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewRepository creates a PostgreSQL keystore repository.
func NewRepository(db *sql.DB, txManager database.TxManager) *Repository {
	return &Repository{db: db, txManager: txManager}
}

// CreateKeystore inserts the keystore row unless it exists.
func (p *Repository) CreateKeystore(ctx context.Context, store string) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO keystores (name, created_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`

	if _, err := querier.ExecContext(ctx, query, store, time.Now().UTC()); err != nil {
		return apperrors.Wrap(err, "failed to create keystore")
	}
	return nil
}

// Load returns every entry of the keystore ordered by alias.
func (p *Repository) Load(ctx context.Context, store string) ([]*keystoreDomain.Entry, error) {
	if err := p.exists(ctx, store); err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)

	query := `SELECT store, alias, value, created_at, updated_at FROM keystore_entries
			  WHERE store = $1 ORDER BY alias`

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
func (p *Repository) Get(ctx context.Context, store, alias string) (*keystoreDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT store, alias, value, created_at, updated_at FROM keystore_entries
			  WHERE store = $1 AND alias = $2`

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
func (p *Repository) Set(ctx context.Context, entry *keystoreDomain.Entry) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.exists(ctx, entry.Store); err != nil {
			return err
		}

		querier := database.GetTx(ctx, p.db)

		query := `INSERT INTO keystore_entries (store, alias, value, created_at, updated_at)
				  VALUES ($1, $2, $3, $4, $5)
				  ON CONFLICT (store, alias) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

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
func (p *Repository) Delete(ctx context.Context, store, alias string) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM keystore_entries WHERE store = $1 AND alias = $2`

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

func (p *Repository) exists(ctx context.Context, store string) error {
	querier := database.GetTx(ctx, p.db)

	var name string
	err := querier.QueryRowContext(ctx, `SELECT name FROM keystores WHERE name = $1`, store).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Wrapf(keystoreDomain.ErrKeystoreNotFound, "keystore %q", store)
		}
		return apperrors.Wrap(err, "failed to look up keystore")
	}
	return nil
}
