package master

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/errors"
)

const testPassphrase = "test-file-passphrase"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localKeyURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func newCLIService(dir string, generate bool, startedAt time.Time) *CLIService {
	store := NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService())
	return NewCLIService(store, CLIConfig{Generate: generate, StartedAt: startedAt}, testLogger())
}

func TestCLIService_SecretBeforeInit(t *testing.T) {
	svc := newCLIService(t.TempDir(), true, time.Now())
	_, err := svc.Secret()
	assert.ErrorIs(t, err, errors.ErrDependencyMissing)
}

func TestCLIService_OptionWins(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// a persisted file with a different secret exists
	require.NoError(t, NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService()).Write(ctx, []byte("from-file")))

	svc := newCLIService(dir, true, time.Now())
	require.NoError(t, svc.Init(ctx, map[string]string{OptionMaster: "password", OptionPersistMaster: "false"}))

	secret, err := svc.Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("password"), secret.Bytes())
	assert.Equal(t, "option", svc.Source())
}

func TestCLIService_PersistedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newCLIService(dir, true, time.Now().Add(-time.Minute))
	require.NoError(t, first.Init(ctx, map[string]string{OptionMaster: "password", OptionPersistMaster: "true"}))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "TGMS1:"))
	assert.NotContains(t, string(data), "password")

	second := newCLIService(dir, false, time.Now())
	require.NoError(t, second.Init(ctx, nil))
	secret, err := second.Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("password"), secret.Bytes())
	assert.Equal(t, "file", second.Source())
}

func TestCLIService_Generated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	svc := newCLIService(dir, true, time.Now())
	require.NoError(t, svc.Init(ctx, map[string]string{OptionPersistMaster: "false"}))

	secret, err := svc.Secret()
	require.NoError(t, err)
	assert.Equal(t, 32, secret.Len())
	assert.Equal(t, "generated", svc.Source())

	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.True(t, os.IsNotExist(err), "not persisted unless requested")
}

func TestCLIService_NoSource(t *testing.T) {
	svc := newCLIService(t.TempDir(), false, time.Now())
	err := svc.Init(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMasterSource)
	assert.ErrorIs(t, err, errors.ErrInitialization)
}

func TestCLIService_InvalidPersistOption(t *testing.T) {
	svc := newCLIService(t.TempDir(), true, time.Now())
	err := svc.Init(context.Background(), map[string]string{OptionPersistMaster: "maybe"})
	assert.ErrorIs(t, err, errors.ErrInitialization)
}

func TestCLIService_DoesNotOverwriteNewerFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	startedAt := time.Now().Add(-time.Hour)

	store := NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService())
	require.NoError(t, store.Write(ctx, []byte("written-by-other-process")))

	svc := newCLIService(dir, true, startedAt)
	require.NoError(t, svc.Init(ctx, map[string]string{OptionMaster: "password", OptionPersistMaster: "true"}))

	raw, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("written-by-other-process"), raw)
}

func TestCLIService_OverwritesOlderFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService())
	require.NoError(t, store.Write(ctx, []byte("stale")))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(), old, old))

	svc := newCLIService(dir, true, time.Now().Add(-time.Hour))
	require.NoError(t, svc.Init(ctx, map[string]string{OptionMaster: "password", OptionPersistMaster: "true"}))

	raw, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("password"), raw)
}

func TestCLIService_Stop(t *testing.T) {
	ctx := context.Background()
	svc := newCLIService(t.TempDir(), true, time.Now())
	require.NoError(t, svc.Init(ctx, map[string]string{OptionMaster: "password"}))

	secret, err := svc.Secret()
	require.NoError(t, err)

	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, 0, secret.Len(), "secret is zeroed on stop")

	_, err = svc.Secret()
	assert.ErrorIs(t, err, errors.ErrDependencyMissing)
}

func TestFileStore_KMSKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	uri := localKeyURI(t)

	store := NewFileStore(dir, uri, "", cryptoService.NewKMSService())
	require.NoError(t, store.Write(ctx, []byte("password")))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "TGMS1::"), "no salt when an external key is used")

	raw, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("password"), raw)

	_, err = NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService()).Read(ctx)
	assert.ErrorIs(t, err, ErrInvalidMasterFile)
}

func TestFileStore_Passphrase(t *testing.T) {
	ctx := context.Background()
	kms := cryptoService.NewKMSService()

	t.Run("survives moving the security directory", func(t *testing.T) {
		root := t.TempDir()
		oldDir := filepath.Join(root, "old", "security")
		require.NoError(t, NewFileStore(oldDir, "", testPassphrase, kms).Write(ctx, []byte("password")))

		newDir := filepath.Join(root, "new-home", "security")
		require.NoError(t, os.MkdirAll(filepath.Dir(newDir), 0o700))
		require.NoError(t, os.Rename(oldDir, newDir))

		svc := NewCLIService(NewFileStore(newDir, "", testPassphrase, kms), CLIConfig{}, testLogger())
		require.NoError(t, svc.Init(ctx, nil))
		secret, err := svc.Secret()
		require.NoError(t, err)
		assert.Equal(t, []byte("password"), secret.Bytes())
		assert.Equal(t, "file", svc.Source())
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, NewFileStore(dir, "", testPassphrase, kms).Write(ctx, []byte("password")))

		_, err := NewFileStore(dir, "", "another passphrase", kms).Read(ctx)
		assert.ErrorIs(t, err, ErrInvalidMasterFile)
	})

	t.Run("missing passphrase", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, NewFileStore(dir, "", testPassphrase, kms).Write(ctx, []byte("password")))

		_, err := NewFileStore(dir, "", "", kms).Read(ctx)
		assert.ErrorIs(t, err, ErrInvalidMasterFile)
	})

	t.Run("no key configured", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileStore(dir, "", "", kms)
		assert.ErrorIs(t, store.Write(ctx, []byte("password")), ErrNoFileKey)

		_, err := os.Stat(store.Path())
		assert.True(t, os.IsNotExist(err))

		svc := NewCLIService(store, CLIConfig{}, testLogger())
		err = svc.Init(ctx, map[string]string{OptionMaster: "password", OptionPersistMaster: "true"})
		assert.ErrorIs(t, err, errors.ErrInitialization)
	})
}

func TestFileStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir, "", testPassphrase, cryptoService.NewKMSService())

	tests := []struct {
		name    string
		content string
	}{
		{name: "plain text", content: "password"},
		{name: "wrong magic", content: "XXXX1:a:b"},
		{name: "bad base64", content: "TGMS1:!!:??"},
		{name: "bad ciphertext", content: "TGMS1:" + base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")) + ":" + base64.StdEncoding.EncodeToString([]byte("nope"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0o600))
			_, err := store.Read(ctx)
			assert.ErrorIs(t, err, ErrInvalidMasterFile)
		})
	}
}

func TestKMSService(t *testing.T) {
	ctx := context.Background()
	kms := cryptoService.NewKMSService()
	uri := localKeyURI(t)

	ciphertext, err := EncryptForKMS(ctx, kms, uri, []byte("password"))
	require.NoError(t, err)

	t.Run("decrypts configured ciphertext", func(t *testing.T) {
		svc := NewKMSService(uri, ciphertext, kms, testLogger())
		require.NoError(t, svc.Init(ctx, map[string]string{OptionMaster: "ignored"}))

		secret, err := svc.Secret()
		require.NoError(t, err)
		assert.Equal(t, []byte("password"), secret.Bytes())

		require.NoError(t, svc.Stop(ctx))
		_, err = svc.Secret()
		assert.ErrorIs(t, err, errors.ErrDependencyMissing)
	})

	t.Run("missing configuration", func(t *testing.T) {
		svc := NewKMSService("", "", kms, testLogger())
		err := svc.Init(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrInitialization)
	})

	t.Run("wrong key", func(t *testing.T) {
		svc := NewKMSService(localKeyURI(t), ciphertext, kms, testLogger())
		err := svc.Init(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrInitialization)
	})

	t.Run("bad encoding", func(t *testing.T) {
		svc := NewKMSService(uri, "%%%", kms, testLogger())
		err := svc.Init(ctx, nil)
		assert.ErrorIs(t, err, errors.ErrInitialization)
	})
}
