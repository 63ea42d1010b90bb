package service

import (
	"sync"
	"sync/atomic"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
)

// activeMap maps topology names to their serving version. Readers load an immutable
// snapshot and never block; writers copy the map under mu and swap the pointer.
type activeMap struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]*deployDomain.Version]
}

func newActiveMap() *activeMap {
	m := &activeMap{}
	empty := map[string]*deployDomain.Version{}
	m.snapshot.Store(&empty)
	return m
}

func (m *activeMap) lookup(name string) (*deployDomain.Version, bool) {
	v, ok := (*m.snapshot.Load())[name]
	return v, ok
}

func (m *activeMap) all() map[string]*deployDomain.Version {
	return *m.snapshot.Load()
}

func (m *activeMap) publish(v *deployDomain.Version) {
	m.update(func(next map[string]*deployDomain.Version) {
		next[v.Topology] = v
	})
}

func (m *activeMap) remove(name string) {
	m.update(func(next map[string]*deployDomain.Version) {
		delete(next, name)
	})
}

func (m *activeMap) update(fn func(map[string]*deployDomain.Version)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := *m.snapshot.Load()
	next := make(map[string]*deployDomain.Version, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	fn(next)
	m.snapshot.Store(&next)
}
