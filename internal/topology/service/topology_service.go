// Package service implements the TopologyService: it discovers descriptors in a
// directory, parses them and publishes change events to subscribers.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/allisson/topogate/internal/errors"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
	"github.com/allisson/topogate/internal/topology/parser"
)

// DefaultInterval is used when Init receives a non-positive poll interval.
const DefaultInterval = 500 * time.Millisecond

// fileState is the last observed state of one descriptor.
type fileState struct {
	path     string
	modTime  time.Time
	checksum string
	// topology is the last successfully parsed topology; nil if the descriptor has
	// never parsed.
	topology *topologyDomain.Topology
	failed   bool
}

// TopologyService watches a descriptor directory by polling.
type TopologyService struct {
	logger *slog.Logger

	dir      string
	interval time.Duration

	// scanMu serializes scans and redeploys.
	scanMu sync.Mutex

	mu     sync.RWMutex
	files  map[string]*fileState
	subs   map[int]*dispatcher
	nextID int

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewTopologyService creates a TopologyService. Init must be called before Start.
func NewTopologyService(logger *slog.Logger) *TopologyService {
	return &TopologyService{
		logger: logger,
		files:  make(map[string]*fileState),
		subs:   make(map[int]*dispatcher),
	}
}

// Init sets the descriptor directory, creating it if needed, and the poll interval.
func (s *TopologyService) Init(dir string, interval time.Duration) error {
	if dir == "" {
		return errors.Wrap(errors.ErrInvalidInput, "topology directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrapf(errors.ErrIO, "create topology directory %s: %v", dir, err)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.dir = dir
	s.interval = interval
	return nil
}

// Start performs an initial scan and launches the poll loop. The loop outlives ctx
// and is stopped by Stop.
func (s *TopologyService) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.dir == "" {
		return errors.Wrap(errors.ErrDependencyMissing, "topology service is not initialized")
	}
	if s.cancel != nil {
		return nil
	}

	s.scan()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.poll(loopCtx, s.done)

	s.logger.Info("topology service started",
		slog.String("dir", s.dir),
		slog.Duration("interval", s.interval),
	)
	return nil
}

// Stop stops the poll loop and the subscriber dispatchers. Undelivered events are dropped.
func (s *TopologyService) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.cancel = nil
		s.done = nil
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[int]*dispatcher)
	s.mu.Unlock()

	for _, d := range subs {
		d.close()
	}

	s.logger.Info("topology service stopped")
	return nil
}

// Subscribe registers a listener. Each listener has its own queue and goroutine.
// The returned function unsubscribes and waits for an in-progress delivery.
func (s *TopologyService) Subscribe(listener topologyDomain.Listener) func() {
	d := newDispatcher(listener, s.logger)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = d
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			d.close()
		})
	}
}

// Topologies returns the known topologies sorted by name.
func (s *TopologyService) Topologies() []*topologyDomain.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*topologyDomain.Topology, 0, len(s.files))
	for _, st := range s.files {
		if st.topology != nil {
			out = append(out, st.topology)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Topology returns the named topology.
func (s *TopologyService) Topology(name string) (*topologyDomain.Topology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.files[name]
	if !ok || st.topology == nil {
		return nil, topologyDomain.ErrTopologyNotFound
	}
	return st.topology, nil
}

// Redeploy moves the descriptor modification time forward and rescans, so each
// target produces exactly one Updated event. An empty name redeploys every known
// topology.
func (s *TopologyService) Redeploy(ctx context.Context, name string) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if s.dir == "" {
		return errors.Wrap(errors.ErrDependencyMissing, "topology service is not initialized")
	}

	s.mu.RLock()
	var targets []*fileState
	if name == "" {
		for _, st := range s.files {
			if st.topology != nil {
				targets = append(targets, st)
			}
		}
	} else if st, ok := s.files[name]; ok && st.topology != nil {
		targets = append(targets, st)
	}
	s.mu.RUnlock()

	if name != "" && len(targets) == 0 {
		return errors.Wrapf(topologyDomain.ErrTopologyNotFound, "redeploy %s", name)
	}

	// A descriptor that currently fails to parse is not touched; its last valid
	// topology is redeployed instead. These events go out before the scan so a
	// concurrent fix on disk is delivered after them.
	var retained []topologyDomain.Event
	for _, st := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.failed {
			retained = append(retained, topologyDomain.Event{
				Kind:     topologyDomain.Updated,
				Name:     st.topology.Name,
				Topology: st.topology,
				At:       time.Now(),
			})
			continue
		}
		if err := touch(st.path, st.modTime); err != nil {
			return err
		}
	}

	s.publish(retained)
	s.scanLocked()
	return nil
}

func (s *TopologyService) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

func (s *TopologyService) scan() {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.scanLocked()
}

// scanLocked compares the directory with the recorded state and publishes the
// differences. The caller holds scanMu.
func (s *TopologyService) scanLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("failed to read topology directory",
			slog.String("dir", s.dir),
			slog.Any("error", err),
		)
		return
	}

	now := time.Now()
	seen := make(map[string]struct{}, len(entries))
	var events []topologyDomain.Event

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, format, ok := parser.Descriptor(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		if _, dup := seen[name]; dup {
			s.logger.Warn("ignoring duplicate topology descriptor",
				slog.String("topology", name),
				slog.String("path", path),
			)
			continue
		}
		seen[name] = struct{}{}

		if event, ok := s.check(name, format, path, now); ok {
			events = append(events, event)
		}
	}

	s.mu.Lock()
	for name, st := range s.files {
		if _, ok := seen[name]; ok {
			continue
		}
		delete(s.files, name)
		if st.topology != nil {
			events = append(events, topologyDomain.Event{
				Kind: topologyDomain.Removed,
				Name: name,
				At:   now,
			})
		}
	}
	s.mu.Unlock()

	s.publish(events)
}

// check reads one descriptor and records its state, returning the event to publish.
func (s *TopologyService) check(
	name string,
	format parser.Format,
	path string,
	now time.Time,
) (topologyDomain.Event, bool) {
	info, err := os.Stat(path)
	if err != nil {
		// Vanished between listing and stat; the next scan reports the removal.
		s.logger.Debug("topology descriptor not readable", slog.String("path", path), slog.Any("error", err))
		return topologyDomain.Event{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("topology descriptor not readable", slog.String("path", path), slog.Any("error", err))
		return topologyDomain.Event{}, false
	}
	modTime := info.ModTime()
	checksum := parser.Checksum(data)

	s.mu.RLock()
	prev := s.files[name]
	s.mu.RUnlock()

	if prev != nil && prev.path == path && prev.modTime.Equal(modTime) && prev.checksum == checksum {
		return topologyDomain.Event{}, false
	}

	next := &fileState{path: path, modTime: modTime, checksum: checksum}
	if prev != nil {
		next.topology = prev.topology
	}

	topology, err := parser.Parse(name, format, data)
	if err != nil {
		next.failed = true
		s.mu.Lock()
		s.files[name] = next
		s.mu.Unlock()

		s.logger.Warn("failed to parse topology descriptor",
			slog.String("topology", name),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return topologyDomain.Event{Kind: topologyDomain.Error, Name: name, Err: err, At: now}, true
	}
	topology.Timestamp = modTime
	topology.Source = path

	kind := topologyDomain.Updated
	if next.topology == nil {
		kind = topologyDomain.Added
	}
	next.topology = topology

	s.mu.Lock()
	s.files[name] = next
	s.mu.Unlock()

	return topologyDomain.Event{Kind: kind, Name: name, Topology: topology, At: now}, true
}

func (s *TopologyService) publish(events []topologyDomain.Event) {
	if len(events) == 0 {
		return
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Name < events[j].Name })

	for _, e := range events {
		s.logger.Info("topology event",
			slog.String("topology", e.Name),
			slog.String("kind", e.Kind.String()),
		)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.subs {
		d.enqueue(events...)
	}
}

// touch sets the modification time of path to now, or one second past prev when
// the filesystem clock would not move it forward.
func touch(path string, prev time.Time) error {
	mtime := time.Now()
	if !mtime.After(prev) {
		mtime = prev.Add(time.Second)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return errors.Wrapf(errors.ErrIO, "touch %s: %v", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(errors.ErrIO, "stat %s: %v", path, err)
	}
	if !info.ModTime().After(prev) {
		mtime = prev.Add(time.Second)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			return errors.Wrapf(errors.ErrIO, "touch %s: %v", path, err)
		}
	}
	return nil
}
