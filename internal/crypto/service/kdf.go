package service

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
)

// Key derivation purposes. The version suffix allows rotating the derivation scheme.
const (
	KeystoreProtectionInfo = "keystore-protection-v1"
	SigningInfo            = "gateway-signing-v1"
)

// Argon2id parameters for passphrase-derived keys.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// DeriveKey derives a 32-byte key from secret with HKDF-SHA256 for the given purpose.
// Different info values yield independent keys from the same secret.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// DerivePassphraseKey stretches a low-entropy passphrase into a 32-byte key with Argon2id.
func DerivePassphraseKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, cryptoDomain.KeySize)
}
