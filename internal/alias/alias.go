// Package alias implements the AliasService: named secret values, encrypted by the
// CryptoService and stored in the gateway credentials keystore.
package alias

import (
	"context"

	"github.com/allisson/topogate/internal/errors"
)

// ServiceKeyAlias is the CryptoService key protecting alias values.
const ServiceKeyAlias = "__alias-service"

// ErrAliasNotFound indicates the alias has no value.
var ErrAliasNotFound = errors.Wrap(errors.ErrNotFound, "alias not found")

// Service is the AliasService contract.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// GetAliasValue returns the plaintext value of a gateway-wide alias.
	GetAliasValue(ctx context.Context, alias string) (string, error)

	// GetTopologyAliasValue resolves "<topology>/<alias>" first and falls back to
	// the gateway-wide alias.
	GetTopologyAliasValue(ctx context.Context, topology, alias string) (string, error)

	SetAlias(ctx context.Context, alias, value string) error
	RemoveAlias(ctx context.Context, alias string) error
	ListAliases(ctx context.Context) ([]string, error)
}

// Keystore is the part of the KeystoreService the AliasService uses.
type Keystore interface {
	GetEntry(ctx context.Context, store, alias string) ([]byte, error)
	SetEntry(ctx context.Context, store, alias string, value []byte) error
	DeleteEntry(ctx context.Context, store, alias string) error
	ListAliases(ctx context.Context, store string) ([]string, error)
}

// Crypto is the part of the CryptoService the AliasService uses.
type Crypto interface {
	GenerateKey(ctx context.Context, alias string) error
	Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, alias string, ciphertext []byte) ([]byte, error)
}

// TopologyAlias returns the keystore alias for a topology-scoped alias.
func TopologyAlias(topology, alias string) string {
	return topology + "/" + alias
}
