package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
)

func deployTestVersion(t *testing.T, crypto *fakeCrypto) *deployDomain.Version {
	t.Helper()
	compiler := NewCompiler(newFakeAliases(map[string]string{"ldap-password": "s"}), crypto)
	store := NewArtifactStore(t.TempDir(), 0, discardLogger())
	deployer := NewDeployer(compiler, store, discardLogger())

	version, err := deployer.Deploy(context.Background(), testTopology(t, "test-cluster", ""), time.Time{})
	require.NoError(t, err)
	return version
}

func TestLoadVersion(t *testing.T) {
	ctx := context.Background()
	crypto := newFakeCrypto()

	t.Run("valid version", func(t *testing.T) {
		version := deployTestVersion(t, crypto)

		loaded, err := LoadVersion(ctx, crypto, version)
		require.NoError(t, err)
		assert.Equal(t, version.ID(), loaded.Manifest.Version)
		assert.True(t, loaded.Manifest.CreatedAt.Equal(version.CreatedAt))
		require.Len(t, loaded.Routes, 1)
		assert.Equal(t, "/test-service-path", loaded.Routes[0].Path)
		assert.Len(t, loaded.Providers, 2)
	})

	t.Run("tampered artifact", func(t *testing.T) {
		version := deployTestVersion(t, crypto)
		require.NoError(t, os.WriteFile(version.ArtifactPath(deployDomain.RoutesFile), []byte(`[]`), 0o600))

		_, err := LoadVersion(ctx, crypto, version)
		assert.ErrorIs(t, err, deployDomain.ErrInvalidManifest)
	})

	t.Run("foreign signature", func(t *testing.T) {
		version := deployTestVersion(t, crypto)

		_, err := LoadVersion(ctx, rejectingVerifier{}, version)
		assert.ErrorIs(t, err, deployDomain.ErrInvalidManifest)
	})

	t.Run("missing manifest", func(t *testing.T) {
		version := deployTestVersion(t, crypto)
		require.NoError(t, os.Remove(version.ArtifactPath(deployDomain.ManifestFile)))

		_, err := LoadVersion(ctx, crypto, version)
		assert.Error(t, err)
	})
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string, []byte, []byte) (bool, error) {
	return false, nil
}
