package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/errors"
)

// ArtifactStore owns the deployment directory. Versions are assembled in a hidden
// staging directory and renamed into place, so a visible version is always complete.
type ArtifactStore struct {
	root       string
	maxRetries int
	logger     *slog.Logger
}

// NewArtifactStore creates an ArtifactStore rooted at dir.
func NewArtifactStore(dir string, maxRetries int, logger *slog.Logger) *ArtifactStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ArtifactStore{root: dir, maxRetries: maxRetries, logger: logger}
}

// Root returns the deployment directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Prepare creates the deployment directory and removes staging directories left
// behind by an interrupted process.
func (s *ArtifactStore) Prepare() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return errors.Wrapf(errors.ErrIO, "create deployment directory %s: %v", s.root, err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return errors.Wrapf(errors.ErrIO, "read deployment directory %s: %v", s.root, err)
	}
	for _, entry := range entries {
		if isStagingDir(entry) {
			path := filepath.Join(s.root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return errors.Wrapf(errors.ErrIO, "remove staging directory %s: %v", path, err)
			}
			s.logger.Info("removed stale staging directory", slog.String("path", path))
		}
	}
	return nil
}

// NewToken returns a fresh version token: a UUIDv7 in 32 hex characters, so tokens
// sort by creation time.
func NewToken() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrapf(errors.ErrIO, "generate version token: %v", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Write publishes artifacts as version <topology>.<token>. Transient failures are
// retried; staging is removed on any failure or cancellation.
func (s *ArtifactStore) Write(ctx context.Context, version *deployDomain.Version, artifacts Artifacts) error {
	staging := filepath.Join(s.root, deployDomain.StagingDirName(version.Topology, version.Token))
	final := filepath.Join(s.root, version.ID())

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := s.writeStaging(staging, artifacts); err != nil {
			_ = os.RemoveAll(staging)
			return err
		}
		if err := os.Rename(staging, final); err != nil {
			_ = os.RemoveAll(staging)
			return errors.Wrapf(errors.ErrIO, "publish %s: %v", final, err)
		}
		return syncDir(s.root)
	}

	if err := backoff.RetryNotify(operation, s.backOff(ctx), s.notify("write", version.ID())); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	version.Dir = final
	return nil
}

// Remove deletes every version and staging directory of a topology.
func (s *ArtifactStore) Remove(ctx context.Context, topology string) error {
	operation := func() error {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.Wrapf(errors.ErrIO, "read deployment directory %s: %v", s.root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || !belongsTo(entry.Name(), topology) {
				continue
			}
			path := filepath.Join(s.root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return errors.Wrapf(errors.ErrIO, "remove %s: %v", path, err)
			}
		}
		return nil
	}
	return backoff.RetryNotify(operation, s.backOff(ctx), s.notify("remove", topology))
}

// Versions lists the on-disk versions of a topology, oldest first.
func (s *ArtifactStore) Versions(topology string) ([]*deployDomain.Version, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrIO, "read deployment directory %s: %v", s.root, err)
	}

	var versions []*deployDomain.Version
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, token, ok := deployDomain.ParseDirName(entry.Name())
		if !ok || name != topology {
			continue
		}
		version := &deployDomain.Version{
			Topology: name,
			Token:    token,
			Dir:      filepath.Join(s.root, entry.Name()),
		}
		if manifest, err := readManifest(version); err == nil {
			version.CreatedAt = manifest.CreatedAt
			version.Checksum = manifest.DescriptorChecksum
		}
		versions = append(versions, version)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Token < versions[j].Token })
	return versions, nil
}

// Topologies lists the names that have at least one version on disk.
func (s *ArtifactStore) Topologies() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrIO, "read deployment directory %s: %v", s.root, err)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, _, ok := deployDomain.ParseDirName(entry.Name())
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ArtifactStore) writeStaging(staging string, artifacts Artifacts) error {
	if err := os.RemoveAll(staging); err != nil {
		return errors.Wrapf(errors.ErrIO, "clear %s: %v", staging, err)
	}
	webInf := filepath.Join(staging, deployDomain.WebInfDir)
	if err := os.MkdirAll(webInf, 0o750); err != nil {
		return errors.Wrapf(errors.ErrIO, "create %s: %v", webInf, err)
	}

	files := make([]string, 0, len(artifacts))
	for file := range artifacts {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := writeFileSync(filepath.Join(webInf, file), artifacts[file]); err != nil {
			return err
		}
	}
	if err := syncDir(webInf); err != nil {
		return err
	}
	return syncDir(staging)
}

func (s *ArtifactStore) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx)
}

func (s *ArtifactStore) notify(operation, target string) backoff.Notify {
	return func(err error, wait time.Duration) {
		s.logger.Warn("retrying deployment io",
			slog.String("operation", operation),
			slog.String("target", target),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return errors.Wrapf(errors.ErrIO, "create %s: %v", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(errors.ErrIO, "write %s: %v", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(errors.ErrIO, "sync %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(errors.ErrIO, "close %s: %v", path, err)
	}
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(errors.ErrIO, "open %s: %v", path, err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return errors.Wrapf(errors.ErrIO, "sync %s: %v", path, err)
	}
	return nil
}

func isStagingDir(entry os.DirEntry) bool {
	name := entry.Name()
	return entry.IsDir() && strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".staging")
}

// belongsTo reports whether a directory name is a version or staging directory of topology.
func belongsTo(dir, topology string) bool {
	if name, _, ok := deployDomain.ParseDirName(dir); ok {
		return name == topology
	}
	if strings.HasPrefix(dir, ".") && strings.HasSuffix(dir, ".staging") {
		name, _, ok := deployDomain.ParseDirName(strings.TrimSuffix(strings.TrimPrefix(dir, "."), ".staging"))
		return ok && name == topology
	}
	return false
}

func readManifest(version *deployDomain.Version) (*deployDomain.Manifest, error) {
	data, err := os.ReadFile(version.ArtifactPath(deployDomain.ManifestFile))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrIO, "read manifest of %s: %v", version.ID(), err)
	}
	var manifest deployDomain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(deployDomain.ErrInvalidManifest, "%s: %v", version.ID(), err)
	}
	return &manifest, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
