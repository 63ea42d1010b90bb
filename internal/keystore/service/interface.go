// Package service implements the KeystoreService: named keystores of entries sealed
// with a key derived from the master secret.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

// Repository persists sealed keystore entries. Implementations live in
// internal/keystore/repository.
type Repository interface {
	CreateKeystore(ctx context.Context, store string) error
	Load(ctx context.Context, store string) ([]*keystoreDomain.Entry, error)
	Get(ctx context.Context, store, alias string) (*keystoreDomain.Entry, error)
	Set(ctx context.Context, entry *keystoreDomain.Entry) error
	Delete(ctx context.Context, store, alias string) error
}

// MasterSource provides the master secret once the MasterSecretService is initialized.
type MasterSource interface {
	Secret() (*cryptoDomain.MasterSecret, error)
}
