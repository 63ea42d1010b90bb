package domain

import (
	"fmt"
	"strings"
)

// Algorithm represents the AEAD algorithm used to seal keystore entries and
// CryptoService ciphertexts.
//
// Both algorithms use a 256-bit key, a 12-byte nonce and a 16-byte tag:
//   - Use AESGCM on CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on systems without AES-NI
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// KeySize is the size in bytes of every symmetric key handled by the gateway.
const KeySize = 32

// ParseAlgorithm converts a configuration value into an Algorithm.
// Returns ErrUnsupportedAlgorithm for unknown values.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
