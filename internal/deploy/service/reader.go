package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/errors"
)

// LoadedVersion is a verified version ready to serve.
type LoadedVersion struct {
	Version   *deployDomain.Version
	Manifest  *deployDomain.Manifest
	Providers []deployDomain.Provider
	Routes    []deployDomain.Route
}

// LoadVersion reads a version's artifacts, checks every artifact against the
// manifest and the manifest signature against the deployment key.
func LoadVersion(ctx context.Context, verifier Verifier, version *deployDomain.Version) (*LoadedVersion, error) {
	manifest, err := readManifest(version)
	if err != nil {
		return nil, err
	}
	if err := verifyManifest(ctx, verifier, manifest); err != nil {
		return nil, err
	}

	loaded := &LoadedVersion{Version: version, Manifest: manifest}
	targets := map[string]any{
		deployDomain.ProvidersFile: &loaded.Providers,
		deployDomain.RoutesFile:    &loaded.Routes,
	}
	for file, sum := range manifest.Artifacts {
		data, err := os.ReadFile(version.ArtifactPath(file))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrIO, "read %s of %s: %v", file, version.ID(), err)
		}
		if checksum(data) != sum {
			return nil, errors.Wrapf(deployDomain.ErrInvalidManifest, "%s of %s: checksum mismatch", file, version.ID())
		}
		if target, ok := targets[file]; ok {
			if err := json.Unmarshal(data, target); err != nil {
				return nil, errors.Wrapf(deployDomain.ErrInvalidManifest, "%s of %s: %v", file, version.ID(), err)
			}
			delete(targets, file)
		}
	}
	if len(targets) > 0 {
		return nil, errors.Wrapf(deployDomain.ErrInvalidManifest, "%s: incomplete artifact set", version.ID())
	}
	return loaded, nil
}

func verifyManifest(ctx context.Context, verifier Verifier, manifest *deployDomain.Manifest) error {
	signature, err := base64.StdEncoding.DecodeString(manifest.Signature)
	if err != nil || len(signature) == 0 {
		return errors.Wrap(deployDomain.ErrInvalidManifest, "missing signature")
	}

	unsigned := *manifest
	unsigned.Signature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return errors.Wrapf(deployDomain.ErrInvalidManifest, "encode: %v", err)
	}

	ok, err := verifier.Verify(ctx, deployDomain.KeyAlias, data, signature)
	if err != nil {
		return errors.Wrapf(deployDomain.ErrInvalidManifest, "verify: %v", err)
	}
	if !ok {
		return errors.Wrap(deployDomain.ErrInvalidManifest, "signature mismatch")
	}
	return nil
}
