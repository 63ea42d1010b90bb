// Package service provides the gateway's cryptographic primitives: AEAD ciphers,
// key derivation, KMS keepers and the alias-keyed CryptoService.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// Keystore is the part of the KeystoreService the CryptoService depends on.
// Keys are read from and written to the gateway keys store.
type Keystore interface {
	GetEntry(ctx context.Context, store, alias string) ([]byte, error)
	SetEntry(ctx context.Context, store, alias string, value []byte) error
}

// Crypto is the alias-keyed encryption and signing service used by the AliasService
// and the deployment compiler.
type Crypto interface {
	// GenerateKey creates a random key under alias unless one already exists.
	GenerateKey(ctx context.Context, alias string) error

	// Encrypt seals plaintext with the key stored under alias.
	Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error)

	// Decrypt opens a ciphertext produced by Encrypt with the same alias.
	Decrypt(ctx context.Context, alias string, ciphertext []byte) ([]byte, error)

	// Sign computes an HMAC-SHA256 signature with a key derived from alias.
	Sign(ctx context.Context, alias string, data []byte) ([]byte, error)

	// Verify checks a signature produced by Sign in constant time.
	Verify(ctx context.Context, alias string, data, signature []byte) (bool, error)
}
