package alias

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

type aliasService struct {
	keystore Keystore
	crypto   Crypto
	logger   *slog.Logger
	started  atomic.Bool
}

// NewService creates an AliasService. Writes to one alias are serialized by the
// keystore; reads run concurrently.
func NewService(keystore Keystore, crypto Crypto, logger *slog.Logger) Service {
	return &aliasService{keystore: keystore, crypto: crypto, logger: logger}
}

func (s *aliasService) Init(ctx context.Context) error {
	if s.keystore == nil {
		return errors.Wrap(errors.ErrDependencyMissing, "alias service requires a keystore")
	}
	if s.crypto == nil {
		return errors.Wrap(errors.ErrDependencyMissing, "alias service requires the crypto service")
	}
	return nil
}

// Start ensures the alias protection key exists.
func (s *aliasService) Start(ctx context.Context) error {
	if err := s.crypto.GenerateKey(ctx, ServiceKeyAlias); err != nil {
		return errors.Wrap(err, "failed to create alias service key")
	}
	s.started.Store(true)
	return nil
}

func (s *aliasService) Stop(ctx context.Context) error {
	s.started.Store(false)
	return nil
}

func (s *aliasService) GetAliasValue(ctx context.Context, alias string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	ciphertext, err := s.keystore.GetEntry(ctx, keystoreDomain.GatewayCredentialsStore, alias)
	if err != nil {
		if errors.Is(err, keystoreDomain.ErrEntryNotFound) {
			return "", errors.Wrapf(ErrAliasNotFound, "%s", alias)
		}
		return "", err
	}

	plaintext, err := s.crypto.Decrypt(ctx, ServiceKeyAlias, ciphertext)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decrypt alias %s", alias)
	}
	return string(plaintext), nil
}

func (s *aliasService) GetTopologyAliasValue(ctx context.Context, topology, alias string) (string, error) {
	if topology != "" {
		value, err := s.GetAliasValue(ctx, TopologyAlias(topology, alias))
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrAliasNotFound) {
			return "", err
		}
	}
	return s.GetAliasValue(ctx, alias)
}

func (s *aliasService) SetAlias(ctx context.Context, alias, value string) error {
	if err := s.ready(); err != nil {
		return err
	}

	ciphertext, err := s.crypto.Encrypt(ctx, ServiceKeyAlias, []byte(value))
	if err != nil {
		return errors.Wrapf(err, "failed to encrypt alias %s", alias)
	}
	if err := s.keystore.SetEntry(ctx, keystoreDomain.GatewayCredentialsStore, alias, ciphertext); err != nil {
		return err
	}

	s.logger.Info("alias stored", slog.String("alias", alias))
	return nil
}

func (s *aliasService) RemoveAlias(ctx context.Context, alias string) error {
	if err := s.ready(); err != nil {
		return err
	}

	if err := s.keystore.DeleteEntry(ctx, keystoreDomain.GatewayCredentialsStore, alias); err != nil {
		if errors.Is(err, keystoreDomain.ErrEntryNotFound) {
			return errors.Wrapf(ErrAliasNotFound, "%s", alias)
		}
		return err
	}

	s.logger.Info("alias removed", slog.String("alias", alias))
	return nil
}

func (s *aliasService) ListAliases(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.keystore.ListAliases(ctx, keystoreDomain.GatewayCredentialsStore)
}

func (s *aliasService) ready() error {
	if !s.started.Load() {
		return errors.Wrap(errors.ErrDependencyMissing, "alias service is not started")
	}
	return nil
}
