package master

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/errors"
)

// KMSService decrypts a KMS-wrapped master secret supplied through configuration.
// Registry options are ignored; the secret is never written to disk.
type KMSService struct {
	keyURI     string
	ciphertext string
	kms        cryptoService.KMSService
	logger     *slog.Logger

	mu     sync.RWMutex
	secret *cryptoDomain.MasterSecret
}

// NewKMSService creates a KMS-backed MasterSecretService. ciphertext is base64.
func NewKMSService(keyURI, ciphertext string, kms cryptoService.KMSService, logger *slog.Logger) *KMSService {
	return &KMSService{keyURI: keyURI, ciphertext: ciphertext, kms: kms, logger: logger}
}

// Init opens the keeper and decrypts the master secret.
func (s *KMSService) Init(ctx context.Context, options map[string]string) error {
	if s.keyURI == "" || s.ciphertext == "" {
		return errors.Wrap(ErrNoMasterSource, "MASTER_KMS_KEY_URI and MASTER_SECRET_CIPHERTEXT are required")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(s.ciphertext)
	if err != nil {
		return errors.Wrapf(errors.ErrInitialization, "decode master ciphertext: %v", err)
	}

	keeper, err := s.kms.OpenKeeper(ctx, s.keyURI)
	if err != nil {
		return errors.Wrapf(errors.ErrInitialization, "%v", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			s.logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	raw, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return errors.Wrapf(errors.ErrInitialization, "decrypt master secret: %v", err)
	}
	defer cryptoDomain.Zero(raw)

	secret, err := cryptoDomain.NewMasterSecret(raw)
	if err != nil {
		return errors.Wrap(errors.ErrInitialization, err.Error())
	}

	s.mu.Lock()
	s.secret = secret
	s.mu.Unlock()

	s.logger.Info("master secret initialized", slog.String("source", "kms"))
	return nil
}

// Start is a no-op.
func (s *KMSService) Start(ctx context.Context) error {
	return nil
}

// Stop zeroes the secret.
func (s *KMSService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret != nil {
		s.secret.Zero()
		s.secret = nil
	}
	return nil
}

// Secret returns the master secret. Fails with ErrDependencyMissing before Init.
func (s *KMSService) Secret() (*cryptoDomain.MasterSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.secret == nil {
		return nil, errNotInitialized
	}
	return s.secret, nil
}

// EncryptForKMS wraps secret with the keeper at keyURI and returns the base64
// ciphertext expected in MASTER_SECRET_CIPHERTEXT.
func EncryptForKMS(ctx context.Context, kms cryptoService.KMSService, keyURI string, secret []byte) (string, error) {
	keeper, err := kms.OpenKeeper(ctx, keyURI)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, secret)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
