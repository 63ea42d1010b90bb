// Package master provides the MasterSecretService variants. The master secret is
// the root of trust for every keystore.
package master

import (
	"context"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	"github.com/allisson/topogate/internal/errors"
)

// Registry option names understood by the master secret services.
const (
	OptionMaster        = "master"
	OptionPersistMaster = "persist-master"
)

// FileName is the name of the persisted master file inside the security directory.
const FileName = "master"

// Service is the MasterSecretService contract.
type Service interface {
	Init(ctx context.Context, options map[string]string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Secret() (*cryptoDomain.MasterSecret, error)
}

var (
	// ErrNoMasterSource indicates no option, no master file and generation disabled.
	ErrNoMasterSource = errors.Wrap(errors.ErrInitialization, "no master secret source available")

	// ErrInvalidMasterFile indicates an unreadable or corrupt master file.
	ErrInvalidMasterFile = errors.Wrap(errors.ErrInitialization, "invalid master file")

	// ErrNoFileKey indicates the master file cannot be protected: neither a KMS key
	// URI nor a passphrase is configured.
	ErrNoFileKey = errors.Wrap(errors.ErrInitialization, "master file requires MASTER_KMS_KEY_URI or MASTER_FILE_PASSPHRASE")

	errNotInitialized = errors.Wrap(errors.ErrDependencyMissing, "master secret service is not initialized")
)
