package domain

import (
	"github.com/allisson/topogate/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors so the
// admin API can map them to HTTP status codes.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates a decryption operation failed.
	//
	// The cause (wrong key, tampered ciphertext, truncated input) is deliberately
	// not disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrKeyNotFound indicates a key alias has no entry in the gateway keystore.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrEmptyMasterSecret indicates an attempt to build a master secret from no bytes.
	ErrEmptyMasterSecret = errors.Wrap(errors.ErrInvalidInput, "master secret is empty")
)
