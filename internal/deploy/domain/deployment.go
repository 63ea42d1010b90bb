// Package domain defines deployment versions, their on-disk artifact layout and the
// per-topology deployment state.
package domain

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/topogate/internal/errors"
)

// Artifact layout inside a version directory.
const (
	WebInfDir     = "WEB-INF"
	TopologyFile  = "topology.json"
	ProvidersFile = "providers.json"
	RoutesFile    = "routes.json"
	ManifestFile  = "manifest.json"
)

// KeyAlias is the CryptoService key protecting and signing deployment artifacts.
const KeyAlias = "__deployment"

// EncryptedPrefix marks a provider parameter value encrypted with KeyAlias.
const EncryptedPrefix = "enc:"

// tokenLen is the length of a hex-encoded 16 byte version token.
const tokenLen = 32

// Version identifies one immutable deployment of a topology. Dir is the absolute
// version directory <root>/<name>.<token>.
type Version struct {
	Topology  string    `json:"topology"`
	Token     string    `json:"token"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
	// Checksum is the checksum of the descriptor the version was compiled from.
	Checksum string `json:"checksum"`
}

// ID returns the directory name <name>.<token>.
func (v *Version) ID() string {
	return DirName(v.Topology, v.Token)
}

// ArtifactPath returns the path of an artifact of this version.
func (v *Version) ArtifactPath(file string) string {
	return filepath.Join(v.Dir, WebInfDir, file)
}

// DirName returns the version directory name for a topology and token.
func DirName(topology, token string) string {
	return topology + "." + token
}

// StagingDirName returns the hidden directory a version is assembled in.
func StagingDirName(topology, token string) string {
	return "." + topology + "." + token + ".staging"
}

// ParseDirName splits a version directory name. Names whose suffix is not a
// 32 character hex token are rejected.
func ParseDirName(dir string) (topology, token string, ok bool) {
	i := strings.LastIndexByte(dir, '.')
	if i <= 0 {
		return "", "", false
	}
	topology, token = dir[:i], dir[i+1:]
	if len(token) != tokenLen {
		return "", "", false
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", "", false
	}
	return topology, token, true
}

// Param is a compiled provider parameter.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Encrypted reports whether the value carries EncryptedPrefix.
func (p Param) Encrypted() bool {
	return strings.HasPrefix(p.Value, EncryptedPrefix)
}

// Provider is a compiled, enabled provider in chain order.
type Provider struct {
	Role   string  `json:"role"`
	Name   string  `json:"name"`
	Params []Param `json:"params"`
}

// Route maps a URL prefix under the topology to a backend.
type Route struct {
	Role string `json:"role"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Manifest describes a version's artifacts. Signature covers the manifest encoded
// with an empty Signature.
type Manifest struct {
	Version            string            `json:"version"`
	Topology           string            `json:"topology"`
	CreatedAt          time.Time         `json:"created_at"`
	DescriptorChecksum string            `json:"descriptor_checksum"`
	Artifacts          map[string]string `json:"artifacts"`
	Signature          string            `json:"signature,omitempty"`
}

// Deployment errors.
var (
	ErrDeploymentNotFound = errors.Wrap(errors.ErrNotFound, "deployment not found")
	ErrUnresolvedAlias    = errors.Wrap(errors.ErrCompile, "unresolved alias reference")
	ErrInvalidManifest    = errors.Wrap(errors.ErrUnavailable, "invalid deployment manifest")
)
