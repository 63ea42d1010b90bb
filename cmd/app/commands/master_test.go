package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	"github.com/allisson/topogate/internal/master"
)

type MockKMSService struct {
	mock.Mock
}

func (m *MockKMSService) OpenKeeper(ctx context.Context, uri string) (cryptoDomain.KMSKeeper, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(cryptoDomain.KMSKeeper), args.Error(1)
}

type MockKMSKeeper struct {
	mock.Mock
}

func (m *MockKMSKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Close() error {
	return m.Called().Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCreateMaster(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("explicit-secret", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "security")
		store := master.NewFileStore(dir, "", "test-file-passphrase", cryptoService.NewKMSService())

		var out bytes.Buffer
		require.NoError(t, RunCreateMaster(ctx, store, logger, &out, "test-master-secret", false))
		require.Contains(t, out.String(), store.Path())

		secret, err := store.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, "test-master-secret", string(secret))
	})

	t.Run("generated-secret", func(t *testing.T) {
		store := master.NewFileStore(t.TempDir(), "", "test-file-passphrase", cryptoService.NewKMSService())

		require.NoError(t, RunCreateMaster(ctx, store, logger, &bytes.Buffer{}, "", false))

		secret, err := store.Read(ctx)
		require.NoError(t, err)
		require.Len(t, secret, 43)
	})

	t.Run("existing-file", func(t *testing.T) {
		store := master.NewFileStore(t.TempDir(), "", "test-file-passphrase", cryptoService.NewKMSService())
		require.NoError(t, RunCreateMaster(ctx, store, logger, &bytes.Buffer{}, "first", false))

		err := RunCreateMaster(ctx, store, logger, &bytes.Buffer{}, "second", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "already exists")

		require.NoError(t, RunCreateMaster(ctx, store, logger, &bytes.Buffer{}, "second", true))
		secret, err := store.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, "second", string(secret))
	})
}

func TestRunCreateKMSMaster(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("success", func(t *testing.T) {
		mockService := &MockKMSService{}
		mockKeeper := &MockKMSKeeper{}

		mockService.On("OpenKeeper", ctx, "base64key://...").Return(mockKeeper, nil)
		mockKeeper.On("Encrypt", ctx, []byte("test-master-secret")).Return([]byte("encrypted"), nil)
		mockKeeper.On("Close").Return(nil)

		var out bytes.Buffer
		err := RunCreateKMSMaster(ctx, mockService, logger, &out, "base64key://...", "test-master-secret")
		require.NoError(t, err)
		require.Contains(t, out.String(), `MASTER_PROVIDER="kms"`)
		require.Contains(t, out.String(), `MASTER_KMS_KEY_URI="base64key://..."`)
		require.Contains(t, out.String(), `MASTER_SECRET_CIPHERTEXT="ZW5jcnlwdGVk"`)

		mockService.AssertExpectations(t)
		mockKeeper.AssertExpectations(t)
	})

	t.Run("missing-key-uri", func(t *testing.T) {
		err := RunCreateKMSMaster(ctx, nil, logger, nil, "", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "required")
	})

	t.Run("kms-error", func(t *testing.T) {
		mockService := &MockKMSService{}
		mockService.On("OpenKeeper", ctx, "invalid").Return(nil, errors.New("kms error"))

		err := RunCreateKMSMaster(ctx, mockService, logger, &bytes.Buffer{}, "invalid", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to encrypt master secret with KMS")
		mockService.AssertExpectations(t)
	})
}
