package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/master"
)

// generatedMasterSize is the number of random bytes of a generated master secret.
const generatedMasterSize = 32

// MasterStore persists the master file.
type MasterStore interface {
	Path() string
	Exists() (bool, os.FileInfo, error)
	Write(ctx context.Context, secret []byte) error
}

// RunCreateMaster writes the master file used by the cli master provider.
// A random secret is generated when secret is empty. An existing file is only
// replaced with force, since every keystore sealed under the old secret becomes
// unreadable.
func RunCreateMaster(
	ctx context.Context,
	store MasterStore,
	logger *slog.Logger,
	out io.Writer,
	secret string,
	force bool,
) error {
	exists, _, err := store.Exists()
	if err != nil {
		return fmt.Errorf("failed to check master file: %w", err)
	}
	if exists && !force {
		return fmt.Errorf("master file %s already exists (use --force to replace it)", store.Path())
	}

	raw, generated, err := masterBytes(secret)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(raw)

	if err := store.Write(ctx, raw); err != nil {
		return fmt.Errorf("failed to write master file: %w", err)
	}

	logger.Info("master file created",
		slog.String("path", store.Path()),
		slog.Bool("generated", generated),
		slog.Bool("replaced", exists),
	)
	_, err = fmt.Fprintf(out, "Master secret persisted to %s\n", store.Path())
	return err
}

// RunCreateKMSMaster encrypts a master secret with the keeper at keyURI and prints
// the environment variables of the kms master provider.
func RunCreateKMSMaster(
	ctx context.Context,
	kms cryptoService.KMSService,
	logger *slog.Logger,
	out io.Writer,
	keyURI string,
	secret string,
) error {
	if keyURI == "" {
		return fmt.Errorf("--kms-key-uri is required\n\nFor local development, use:\n  --kms-key-uri=\"base64key://<32-byte-base64-key>\"")
	}

	raw, generated, err := masterBytes(secret)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(raw)

	ciphertext, err := master.EncryptForKMS(ctx, kms, keyURI, raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt master secret with KMS: %w", err)
	}

	logger.Info("master secret encrypted with KMS", slog.Bool("generated", generated))

	_, err = fmt.Fprintf(out,
		"# Master secret configuration (KMS mode)\n"+
			"# Copy these environment variables to your .env file or secrets manager\n\n"+
			"MASTER_PROVIDER=\"kms\"\n"+
			"MASTER_KMS_KEY_URI=\"%s\"\n"+
			"MASTER_SECRET_CIPHERTEXT=\"%s\"\n",
		keyURI, ciphertext,
	)
	return err
}

// masterBytes returns secret as bytes, or a random value when secret is empty.
func masterBytes(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	raw := make([]byte, generatedMasterSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, false, fmt.Errorf("failed to generate master secret: %w", err)
	}
	encoded := make([]byte, base64.RawURLEncoding.EncodedLen(len(raw)))
	base64.RawURLEncoding.Encode(encoded, raw)
	cryptoDomain.Zero(raw)
	return encoded, true, nil
}
