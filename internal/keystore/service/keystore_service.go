package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/go-pwdhash"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

// KeystoreService manages named keystores whose entries are sealed with
// HKDF(master, "keystore-protection-v1").
//
// Writes to one (store, alias) are serialized; reads run concurrently.
// Every operation before Init returns ErrDependencyMissing.
type KeystoreService struct {
	repo        Repository
	master      MasterSource
	aeadManager cryptoService.AEADManager
	algorithm   cryptoDomain.Algorithm
	logger      *slog.Logger
	locks       *keyedLocks

	mu     sync.RWMutex
	cipher cryptoService.AEAD
	hasher *pwdhash.PasswordHasher
}

// NewKeystoreService creates a KeystoreService. Call Init before use.
func NewKeystoreService(
	repo Repository,
	master MasterSource,
	aeadManager cryptoService.AEADManager,
	algorithm cryptoDomain.Algorithm,
	logger *slog.Logger,
) *KeystoreService {
	return &KeystoreService{
		repo:        repo,
		master:      master,
		aeadManager: aeadManager,
		algorithm:   algorithm,
		logger:      logger,
		locks:       newKeyedLocks(),
	}
}

// Init derives the protection key from the master secret.
func (s *KeystoreService) Init(ctx context.Context) error {
	if s.master == nil {
		return errors.Wrap(errors.ErrDependencyMissing, "keystore service requires the master secret service")
	}
	secret, err := s.master.Secret()
	if err != nil {
		return errors.Wrap(err, "keystore service requires the master secret")
	}

	raw := secret.Bytes()
	defer cryptoDomain.Zero(raw)

	key, err := cryptoService.DeriveKey(raw, cryptoService.KeystoreProtectionInfo)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(key)

	cipher, err := s.aeadManager.CreateCipher(key, s.algorithm)
	if err != nil {
		return fmt.Errorf("failed to create keystore cipher: %w", err)
	}

	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return fmt.Errorf("failed to create master verifier hasher: %w", err)
	}

	s.mu.Lock()
	s.cipher = cipher
	s.hasher = hasher
	s.mu.Unlock()
	return nil
}

// Start creates the built-in keystores and checks the master secret against the
// stored verifier, writing one on first start.
func (s *KeystoreService) Start(ctx context.Context) error {
	if _, err := s.currentCipher(); err != nil {
		return err
	}

	for _, store := range keystoreDomain.BuiltinKeystores {
		if err := s.repo.CreateKeystore(ctx, store); err != nil {
			return fmt.Errorf("failed to create keystore %q: %w", store, err)
		}
	}

	return s.checkMasterVerifier(ctx)
}

// Stop drops the protection key. The service must be re-initialized before reuse.
func (s *KeystoreService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cipher = nil
	s.mu.Unlock()
	return nil
}

// CreateKeystore creates an empty keystore. Creating an existing keystore is a no-op.
func (s *KeystoreService) CreateKeystore(ctx context.Context, store string) error {
	if _, err := s.currentCipher(); err != nil {
		return err
	}
	if err := keystoreDomain.ValidateStoreName(store); err != nil {
		return err
	}
	return s.repo.CreateKeystore(ctx, store)
}

// GetEntry returns the plaintext value of alias in store.
func (s *KeystoreService) GetEntry(ctx context.Context, store, alias string) ([]byte, error) {
	cipher, err := s.currentCipher()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(lockKey(store, alias))
	defer unlock()

	entry, err := s.repo.Get(ctx, store, alias)
	if err != nil {
		return nil, err
	}
	return unseal(cipher, store, alias, entry.Value)
}

// SetEntry seals value and stores it under alias, replacing any previous value.
func (s *KeystoreService) SetEntry(ctx context.Context, store, alias string, value []byte) error {
	cipher, err := s.currentCipher()
	if err != nil {
		return err
	}
	if err := keystoreDomain.ValidateAlias(alias); err != nil {
		return err
	}

	sealed, err := seal(cipher, store, alias, value)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(lockKey(store, alias))
	defer unlock()

	now := time.Now().UTC()
	return s.repo.Set(ctx, &keystoreDomain.Entry{
		Store:     store,
		Alias:     alias,
		Value:     sealed,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// DeleteEntry removes alias from store.
func (s *KeystoreService) DeleteEntry(ctx context.Context, store, alias string) error {
	if _, err := s.currentCipher(); err != nil {
		return err
	}

	unlock := s.locks.Lock(lockKey(store, alias))
	defer unlock()

	return s.repo.Delete(ctx, store, alias)
}

// ListAliases returns the aliases of store in ascending order.
func (s *KeystoreService) ListAliases(ctx context.Context, store string) ([]string, error) {
	if _, err := s.currentCipher(); err != nil {
		return nil, err
	}

	entries, err := s.repo.Load(ctx, store)
	if err != nil {
		return nil, err
	}

	aliases := make([]string, 0, len(entries))
	for _, entry := range entries {
		aliases = append(aliases, entry.Alias)
	}
	return aliases, nil
}

func (s *KeystoreService) checkMasterVerifier(ctx context.Context) error {
	secret, err := s.master.Secret()
	if err != nil {
		return err
	}
	raw := secret.Bytes()
	defer cryptoDomain.Zero(raw)

	entry, err := s.repo.Get(ctx, keystoreDomain.MasterVerifierStore, keystoreDomain.MasterVerifierAlias)
	switch {
	case err == nil:
		ok, verifyErr := s.hasher.Verify(raw, string(entry.Value))
		if verifyErr != nil || !ok {
			return keystoreDomain.ErrMasterMismatch
		}
		return nil
	case errors.Is(err, keystoreDomain.ErrEntryNotFound):
		hash, err := s.hasher.Hash(raw)
		if err != nil {
			return fmt.Errorf("failed to hash master verifier: %w", err)
		}
		now := time.Now().UTC()
		if err := s.repo.Set(ctx, &keystoreDomain.Entry{
			Store:     keystoreDomain.MasterVerifierStore,
			Alias:     keystoreDomain.MasterVerifierAlias,
			Value:     []byte(hash),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to store master verifier: %w", err)
		}
		s.logger.Info("created master secret verifier")
		return nil
	default:
		return fmt.Errorf("failed to read master verifier: %w", err)
	}
}

func (s *KeystoreService) currentCipher() (cryptoService.AEAD, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cipher == nil {
		return nil, errors.Wrap(errors.ErrDependencyMissing, "keystore service is not initialized")
	}
	return s.cipher, nil
}

func lockKey(store, alias string) string {
	return store + "\x00" + alias
}

func seal(cipher cryptoService.AEAD, store, alias string, value []byte) ([]byte, error) {
	ciphertext, nonce, err := cipher.Encrypt(value, []byte(store+"/"+alias))
	if err != nil {
		return nil, fmt.Errorf("failed to seal keystore entry: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

func unseal(cipher cryptoService.AEAD, store, alias string, sealed []byte) ([]byte, error) {
	if len(sealed) < cryptoService.NonceSize {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	plaintext, err := cipher.Decrypt(sealed[cryptoService.NonceSize:], sealed[:cryptoService.NonceSize], []byte(store+"/"+alias))
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
