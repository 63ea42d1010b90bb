// Package file implements keystore persistence as one JSON document per keystore.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/allisson/topogate/internal/errors"
	keystoreDomain "github.com/allisson/topogate/internal/keystore/domain"
)

const fileMode = 0o600

type document struct {
	Name      string               `json:"name"`
	CreatedAt time.Time            `json:"created_at"`
	Entries   map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository stores each keystore in <dir>/<name>.json. Writes replace the file
// atomically through a temporary file and rename.
type Repository struct {
	dir string
	mu  sync.RWMutex
}

// NewRepository creates a file keystore repository rooted at dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// CreateKeystore creates an empty keystore if it does not already exist.
func (r *Repository) CreateKeystore(ctx context.Context, store string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return errors.Wrap(errors.ErrIO, fmt.Sprintf("failed to create keystore directory: %v", err))
	}

	_, err := os.Stat(r.path(store))
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	return r.write(&document{
		Name:      store,
		CreatedAt: time.Now().UTC(),
		Entries:   map[string]fileEntry{},
	})
}

// Load returns every entry of the keystore sorted by alias.
func (r *Repository) Load(ctx context.Context, store string) ([]*keystoreDomain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.read(store)
	if err != nil {
		return nil, err
	}

	entries := make([]*keystoreDomain.Entry, 0, len(doc.Entries))
	for alias, e := range doc.Entries {
		entries = append(entries, toEntry(store, alias, e))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Alias < entries[j].Alias })
	return entries, nil
}

// Get returns a single entry.
func (r *Repository) Get(ctx context.Context, store, alias string) (*keystoreDomain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.read(store)
	if err != nil {
		return nil, err
	}
	e, ok := doc.Entries[alias]
	if !ok {
		return nil, keystoreDomain.ErrEntryNotFound
	}
	return toEntry(store, alias, e), nil
}

// Set inserts or replaces an entry. The original creation time survives updates.
func (r *Repository) Set(ctx context.Context, entry *keystoreDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read(entry.Store)
	if err != nil {
		return err
	}

	created := entry.CreatedAt
	if existing, ok := doc.Entries[entry.Alias]; ok {
		created = existing.CreatedAt
	}
	doc.Entries[entry.Alias] = fileEntry{
		Value:     entry.Value,
		CreatedAt: created,
		UpdatedAt: entry.UpdatedAt,
	}
	return r.write(doc)
}

// Delete removes an entry. Returns ErrEntryNotFound when absent.
func (r *Repository) Delete(ctx context.Context, store, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read(store)
	if err != nil {
		return err
	}
	if _, ok := doc.Entries[alias]; !ok {
		return keystoreDomain.ErrEntryNotFound
	}
	delete(doc.Entries, alias)
	return r.write(doc)
}

func (r *Repository) path(store string) string {
	return filepath.Join(r.dir, store+".json")
}

func (r *Repository) read(store string) (*document, error) {
	data, err := os.ReadFile(r.path(store))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(keystoreDomain.ErrKeystoreNotFound, "keystore %q", store)
		}
		return nil, errors.Wrap(errors.ErrIO, err.Error())
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.ErrIO, "corrupt keystore %q: %v", store, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]fileEntry{}
	}
	return &doc, nil
}

func (r *Repository) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, "."+doc.Name+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := os.Rename(tmpName, r.path(doc.Name)); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	return nil
}

func toEntry(store, alias string, e fileEntry) *keystoreDomain.Entry {
	return &keystoreDomain.Entry{
		Store:     store,
		Alias:     alias,
		Value:     e.Value,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
