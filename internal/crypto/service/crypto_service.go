package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	"github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

// CryptoService encrypts, decrypts and signs data with keys held in the gateway
// keys store. It depends only on the keystore, never on the AliasService.
//
// The output of Encrypt is nonce || ciphertext. Keys are bound to their alias as
// associated data, so a ciphertext produced under one alias never opens under another.
type CryptoService struct {
	keystore    Keystore
	aeadManager AEADManager
	algorithm   cryptoDomain.Algorithm
	logger      *slog.Logger

	generateMu sync.Mutex
}

// NewCryptoService creates a CryptoService backed by keystore.
func NewCryptoService(
	keystore Keystore,
	aeadManager AEADManager,
	algorithm cryptoDomain.Algorithm,
	logger *slog.Logger,
) *CryptoService {
	return &CryptoService{
		keystore:    keystore,
		aeadManager: aeadManager,
		algorithm:   algorithm,
		logger:      logger,
	}
}

// Init validates dependencies. The keystore must be present.
func (s *CryptoService) Init(ctx context.Context) error {
	if s.keystore == nil {
		return errors.Wrap(errors.ErrDependencyMissing, "crypto service requires a keystore")
	}
	if _, err := s.aeadManager.CreateCipher(make([]byte, cryptoDomain.KeySize), s.algorithm); err != nil {
		return fmt.Errorf("invalid crypto algorithm %q: %w", s.algorithm, err)
	}
	return nil
}

// Start is a no-op; the service holds no background state.
func (s *CryptoService) Start(ctx context.Context) error {
	return nil
}

// Stop is a no-op.
func (s *CryptoService) Stop(ctx context.Context) error {
	return nil
}

// GenerateKey creates a random 32-byte key under alias. Existing keys are left untouched.
func (s *CryptoService) GenerateKey(ctx context.Context, alias string) error {
	s.generateMu.Lock()
	defer s.generateMu.Unlock()

	_, err := s.keystore.GetEntry(ctx, keystoreDomain.GatewayKeysStore, alias)
	if err == nil {
		return nil
	}
	if !errors.Is(err, keystoreDomain.ErrEntryNotFound) {
		return fmt.Errorf("failed to look up key %q: %w", alias, err)
	}

	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer cryptoDomain.Zero(key)

	if err := s.keystore.SetEntry(ctx, keystoreDomain.GatewayKeysStore, alias, key); err != nil {
		return fmt.Errorf("failed to store key %q: %w", alias, err)
	}

	s.logger.Debug("generated key", slog.String("alias", alias))
	return nil
}

// Encrypt seals plaintext with the key stored under alias.
func (s *CryptoService) Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error) {
	cipher, err := s.cipher(ctx, alias)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := cipher.Encrypt(plaintext, []byte(alias))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt under the same alias.
// Returns ErrDecryptionFailed on truncated or tampered input, or a wrong key.
func (s *CryptoService) Decrypt(ctx context.Context, alias string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	cipher, err := s.cipher(ctx, alias)
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Decrypt(ciphertext[NonceSize:], ciphertext[:NonceSize], []byte(alias))
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}

// Sign computes HMAC-SHA256 over data with a signing key derived from the alias key.
func (s *CryptoService) Sign(ctx context.Context, alias string, data []byte) ([]byte, error) {
	key, err := s.key(ctx, alias)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	signingKey, err := DeriveKey(key, SigningInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer cryptoDomain.Zero(signingKey)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify reports whether signature matches data under alias.
func (s *CryptoService) Verify(ctx context.Context, alias string, data, signature []byte) (bool, error) {
	expected, err := s.Sign(ctx, alias, data)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, signature), nil
}

func (s *CryptoService) key(ctx context.Context, alias string) ([]byte, error) {
	key, err := s.keystore.GetEntry(ctx, keystoreDomain.GatewayKeysStore, alias)
	if err != nil {
		if errors.Is(err, keystoreDomain.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKeyNotFound, alias)
		}
		return nil, err
	}
	return key, nil
}

func (s *CryptoService) cipher(ctx context.Context, alias string) (AEAD, error) {
	key, err := s.key(ctx, alias)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	return s.aeadManager.CreateCipher(key, s.algorithm)
}
