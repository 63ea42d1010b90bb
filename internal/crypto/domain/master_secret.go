package domain

import (
	"context"
	"sync"
)

// MasterSecret is the root secret of the gateway. It protects every keystore.
//
// The value is immutable once created: Bytes returns a copy, and the only mutation
// is Zero, called when the owning service stops.
type MasterSecret struct {
	mu    sync.RWMutex
	value []byte
}

// NewMasterSecret copies b into a new MasterSecret. Returns ErrEmptyMasterSecret when b is empty.
func NewMasterSecret(b []byte) (*MasterSecret, error) {
	if len(b) == 0 {
		return nil, ErrEmptyMasterSecret
	}
	value := make([]byte, len(b))
	copy(value, b)
	return &MasterSecret{value: value}, nil
}

// Bytes returns a copy of the secret. Callers should Zero the copy when done.
func (m *MasterSecret) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.value))
	copy(out, m.value)
	return out
}

// Len returns the secret length in bytes, 0 after Zero.
func (m *MasterSecret) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.value)
}

// Zero wipes the secret from memory.
func (m *MasterSecret) Zero() {
	m.mu.Lock()
	defer m.mu.Unlock()

	Zero(m.value)
	m.value = nil
}

// KMSKeeper is the subset of *secrets.Keeper used to protect the master secret.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
