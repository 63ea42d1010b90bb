// Package domain defines the keystore entities shared by the keystore repositories
// and the KeystoreService.
package domain

import (
	"regexp"
	"time"

	"github.com/allisson/topogate/internal/errors"
)

// Built-in keystore names. All of them are created when the KeystoreService starts.
const (
	// GatewayKeysStore holds CryptoService keys.
	GatewayKeysStore = "__gateway-keys"

	// GatewayCredentialsStore holds AliasService values.
	GatewayCredentialsStore = "__gateway-credentials"

	// MasterVerifierStore holds the Argon2id hash used to detect a wrong master secret.
	MasterVerifierStore = "__gateway-master"

	// MasterVerifierAlias is the single entry of MasterVerifierStore.
	MasterVerifierAlias = "verifier"
)

// BuiltinKeystores lists the keystores the gateway needs to operate.
var BuiltinKeystores = []string{GatewayKeysStore, GatewayCredentialsStore, MasterVerifierStore}

// Entry is a persisted keystore entry. Value is always sealed by the KeystoreService
// before it reaches a repository; repositories never see plaintext.
type Entry struct {
	Store     string
	Alias     string
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrEntryNotFound indicates the alias has no entry in the keystore.
	ErrEntryNotFound = errors.Wrap(errors.ErrNotFound, "keystore entry not found")

	// ErrKeystoreNotFound indicates the keystore itself was never created.
	ErrKeystoreNotFound = errors.Wrap(errors.ErrNotFound, "keystore not found")

	// ErrInvalidName indicates a keystore name or alias that cannot be persisted.
	ErrInvalidName = errors.Wrap(errors.ErrInvalidInput, "invalid keystore name or alias")

	// ErrMasterMismatch indicates the keystores were protected by a different master secret.
	ErrMasterMismatch = errors.Wrap(errors.ErrUnauthorized, "master secret does not match keystore verifier")
)

var (
	storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
	aliasPattern     = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_./-]{0,254}$`)
)

// ValidateStoreName reports whether name is usable as a keystore name.
// Names double as file names in the file backend, so path separators are rejected.
func ValidateStoreName(name string) error {
	if !storeNamePattern.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "keystore %q", name)
	}
	return nil
}

// ValidateAlias reports whether alias is usable as an entry alias.
func ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return errors.Wrapf(ErrInvalidName, "alias %q", alias)
	}
	return nil
}
