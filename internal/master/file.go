package master

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/errors"
)

// fileMagic prefixes every master file: TGMS1:<salt-b64>:<ciphertext-b64>.
// The salt is empty when the file is protected by an external KMS key.
const fileMagic = "TGMS1"

const saltSize = 16

// FileStore reads and writes the master file. The ciphertext is produced by a
// gocloud.dev/secrets keeper: the configured KMS key when keyURI is set, otherwise
// a local key stretched with Argon2id from the operator passphrase and a salt.
// Neither key is stored next to the file, so the file alone does not reveal the
// secret, and the file stays readable when the security directory moves.
type FileStore struct {
	dir        string
	keyURI     string
	passphrase string
	kms        cryptoService.KMSService
}

// NewFileStore creates a FileStore for the master file in dir. At least one of
// keyURI and passphrase must be set to read or write the file.
func NewFileStore(dir, keyURI, passphrase string, kms cryptoService.KMSService) *FileStore {
	return &FileStore{dir: dir, keyURI: keyURI, passphrase: passphrase, kms: kms}
}

// Path returns the master file location.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, FileName)
}

// Exists reports whether the master file is present.
func (f *FileStore) Exists() (bool, os.FileInfo, error) {
	info, err := os.Stat(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, info, nil
}

// Read decrypts the master file.
func (f *FileStore) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidMasterFile, "read %s: %v", f.Path(), err)
	}

	parts := strings.Split(string(bytes.TrimSpace(data)), ":")
	if len(parts) != 3 || parts[0] != fileMagic {
		return nil, errors.Wrap(ErrInvalidMasterFile, "unrecognized format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMasterFile, "bad salt encoding")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMasterFile, "bad ciphertext encoding")
	}

	keeper, err := f.openKeeper(ctx, salt)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keeper.Close()
	}()

	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidMasterFile, "decrypt: %v", err)
	}
	return plaintext, nil
}

// Write encrypts secret and atomically replaces the master file.
func (f *FileStore) Write(ctx context.Context, secret []byte) error {
	if f.keyURI == "" && f.passphrase == "" {
		return ErrNoFileKey
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	var salt []byte
	if f.keyURI == "" {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	keeper, err := f.openKeeper(ctx, salt)
	if err != nil {
		return err
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt master secret: %w", err)
	}

	content := fmt.Sprintf("%s:%s:%s\n",
		fileMagic,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(ciphertext),
	)

	tmp := f.Path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := os.Rename(tmp, f.Path()); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	return nil
}

func (f *FileStore) openKeeper(ctx context.Context, salt []byte) (cryptoDomain.KMSKeeper, error) {
	if len(salt) == 0 {
		if f.keyURI == "" {
			return nil, errors.Wrap(ErrInvalidMasterFile, "file requires MASTER_KMS_KEY_URI")
		}
		return f.kms.OpenKeeper(ctx, f.keyURI)
	}

	if f.passphrase == "" {
		return nil, errors.Wrap(ErrInvalidMasterFile, "file requires MASTER_FILE_PASSPHRASE")
	}
	key := cryptoService.DerivePassphraseKey([]byte(f.passphrase), salt)
	defer cryptoDomain.Zero(key)

	return f.kms.OpenKeeper(ctx, "base64key://"+base64.URLEncoding.EncodeToString(key))
}
