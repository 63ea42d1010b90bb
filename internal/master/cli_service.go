package master

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	"github.com/allisson/topogate/internal/errors"
)

// CLIConfig configures the CLIService.
type CLIConfig struct {
	// Generate allows creating a random master when no other source exists.
	Generate bool
	// StartedAt is the process start time. A master file modified after it was
	// written by another process and is never overwritten.
	StartedAt time.Time
}

// CLIService resolves the master secret from, in order: the "master" option,
// the persisted master file, or a freshly generated random value.
type CLIService struct {
	store  *FileStore
	cfg    CLIConfig
	logger *slog.Logger

	mu     sync.RWMutex
	secret *cryptoDomain.MasterSecret
	source string
}

// NewCLIService creates the default MasterSecretService.
func NewCLIService(store *FileStore, cfg CLIConfig, logger *slog.Logger) *CLIService {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &CLIService{store: store, cfg: cfg, logger: logger}
}

// Init resolves the master secret and, when "persist-master" is true and the
// secret did not come from the file, writes the master file.
func (s *CLIService) Init(ctx context.Context, options map[string]string) error {
	persist, err := parseBool(options[OptionPersistMaster])
	if err != nil {
		return errors.Wrapf(errors.ErrInitialization, "option %s: %v", OptionPersistMaster, err)
	}

	raw, source, err := s.resolve(ctx, options[OptionMaster])
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(raw)

	secret, err := cryptoDomain.NewMasterSecret(raw)
	if err != nil {
		return errors.Wrap(errors.ErrInitialization, err.Error())
	}

	if persist && source != "file" {
		if err := s.persist(ctx, raw); err != nil {
			secret.Zero()
			return err
		}
	}

	s.mu.Lock()
	s.secret = secret
	s.source = source
	s.mu.Unlock()

	s.logger.Info("master secret initialized",
		slog.String("source", source),
		slog.Bool("persisted", persist),
	)
	return nil
}

// Start is a no-op; the secret is ready after Init.
func (s *CLIService) Start(ctx context.Context) error {
	return nil
}

// Stop zeroes the secret.
func (s *CLIService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret != nil {
		s.secret.Zero()
		s.secret = nil
	}
	return nil
}

// Secret returns the master secret. Fails with ErrDependencyMissing before Init.
func (s *CLIService) Secret() (*cryptoDomain.MasterSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.secret == nil {
		return nil, errNotInitialized
	}
	return s.secret, nil
}

// Source reports where the secret came from: "option", "file" or "generated".
func (s *CLIService) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *CLIService) resolve(ctx context.Context, option string) ([]byte, string, error) {
	if option != "" {
		return []byte(option), "option", nil
	}

	exists, _, err := s.store.Exists()
	if err != nil {
		return nil, "", errors.Wrapf(errors.ErrInitialization, "stat master file: %v", err)
	}
	if exists {
		raw, err := s.store.Read(ctx)
		if err != nil {
			return nil, "", err
		}
		return raw, "file", nil
	}

	if !s.cfg.Generate {
		return nil, "", ErrNoMasterSource
	}

	raw := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate master secret: %w", err)
	}
	return raw, "generated", nil
}

func (s *CLIService) persist(ctx context.Context, raw []byte) error {
	exists, info, err := s.store.Exists()
	if err != nil {
		return errors.Wrapf(errors.ErrInitialization, "stat master file: %v", err)
	}
	if exists && info.ModTime().After(s.cfg.StartedAt) {
		s.logger.Warn("master file changed since process start, not overwriting",
			slog.String("path", s.store.Path()),
		)
		return nil
	}

	if err := s.store.Write(ctx, raw); err != nil {
		return errors.Wrapf(errors.ErrInitialization, "persist master file: %v", err)
	}
	s.logger.Info("master file written", slog.String("path", s.store.Path()))
	return nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
