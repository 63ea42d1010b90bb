package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/topogate/internal/errors"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const validXML = `<topology>
  <gateway>
    <provider><role>authentication</role><name>ShiroProvider</name><enabled>true</enabled></provider>
  </gateway>
  <service><role>test-service-role</role><url>http://localhost:9000</url></service>
</topology>`

// recorder collects delivered events.
type recorder struct {
	events chan topologyDomain.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan topologyDomain.Event, 64)}
}

func (r *recorder) HandleTopologyEvent(event topologyDomain.Event) {
	r.events <- event
}

func (r *recorder) next(t *testing.T) topologyDomain.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for topology event")
		return topologyDomain.Event{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event %s for %s", e.Kind, e.Name)
	case <-time.After(wait):
	}
}

func newTestService(t *testing.T, dir string) *TopologyService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewTopologyService(logger)
	require.NoError(t, s.Init(dir, 20*time.Millisecond))
	return s
}

// writeDescriptor writes through a temporary name and renames, like a deploying tool would.
func writeDescriptor(t *testing.T, dir, file, content string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	tmp := path + ".3f2a9c"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	return path
}

func TestTopologyService_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "test-cluster.xml", validXML)

	s := newTestService(t, dir)
	rec := newRecorder()
	s.Subscribe(rec)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer func() { require.NoError(t, s.Stop(ctx)) }()

	e := rec.next(t)
	assert.Equal(t, topologyDomain.Added, e.Kind)
	assert.Equal(t, "test-cluster", e.Name)
	require.NotNil(t, e.Topology)
	assert.Equal(t, "test-cluster", e.Topology.Name)

	topology, err := s.Topology("test-cluster")
	require.NoError(t, err)
	assert.Equal(t, e.Topology.Checksum, topology.Checksum)
	assert.Len(t, s.Topologies(), 1)

	t.Run("staging files are ignored", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "other.xml.tmp"), []byte("<"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
		rec.none(t, 100*time.Millisecond)
	})

	t.Run("content change produces Updated", func(t *testing.T) {
		updated := validXML + "\n<!-- v2 -->"
		writeDescriptor(t, dir, "test-cluster.xml", updated)

		e := rec.next(t)
		assert.Equal(t, topologyDomain.Updated, e.Kind)
		assert.NotEqual(t, topology.Checksum, e.Topology.Checksum)
	})

	t.Run("malformed update keeps previous topology", func(t *testing.T) {
		before, err := s.Topology("test-cluster")
		require.NoError(t, err)

		writeDescriptor(t, dir, "test-cluster.xml", "<topology><gateway>")
		e := rec.next(t)
		assert.Equal(t, topologyDomain.Error, e.Kind)
		assert.ErrorIs(t, e.Err, errors.ErrParse)
		assert.Nil(t, e.Topology)

		after, err := s.Topology("test-cluster")
		require.NoError(t, err)
		assert.Same(t, before, after)

		rec.none(t, 100*time.Millisecond)

		writeDescriptor(t, dir, "test-cluster.xml", validXML)
		e = rec.next(t)
		assert.Equal(t, topologyDomain.Updated, e.Kind)
	})

	t.Run("malformed new descriptor creates no topology", func(t *testing.T) {
		writeDescriptor(t, dir, "broken.yaml", "providers: [:")
		e := rec.next(t)
		assert.Equal(t, topologyDomain.Error, e.Kind)
		assert.Equal(t, "broken", e.Name)

		_, err := s.Topology("broken")
		assert.ErrorIs(t, err, topologyDomain.ErrTopologyNotFound)

		require.NoError(t, os.Remove(filepath.Join(dir, "broken.yaml")))
		rec.none(t, 100*time.Millisecond)
	})

	t.Run("deletion produces Removed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "test-cluster.xml")))
		e := rec.next(t)
		assert.Equal(t, topologyDomain.Removed, e.Kind)
		assert.Equal(t, "test-cluster", e.Name)

		_, err := s.Topology("test-cluster")
		assert.ErrorIs(t, err, topologyDomain.ErrTopologyNotFound)
		assert.Empty(t, s.Topologies())
	})
}

func TestTopologyService_Redeploy(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "test-cluster.xml", validXML)
	writeDescriptor(t, dir, "sandbox.xml", validXML)

	s := newTestService(t, dir)
	rec := newRecorder()
	s.Subscribe(rec)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer func() { require.NoError(t, s.Stop(ctx)) }()

	rec.next(t)
	rec.next(t)

	before, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Redeploy(ctx, "test-cluster"))

	e := rec.next(t)
	assert.Equal(t, topologyDomain.Updated, e.Kind)
	assert.Equal(t, "test-cluster", e.Name)
	assert.True(t, e.Topology.Timestamp.After(before.ModTime()))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, after.ModTime().After(before.ModTime()))

	// The poller must not report the touched file a second time.
	rec.none(t, 100*time.Millisecond)

	t.Run("all", func(t *testing.T) {
		require.NoError(t, s.Redeploy(ctx, ""))
		names := []string{rec.next(t).Name, rec.next(t).Name}
		assert.ElementsMatch(t, []string{"sandbox", "test-cluster"}, names)
		rec.none(t, 100*time.Millisecond)
	})

	t.Run("malformed descriptor redeploys the last valid topology", func(t *testing.T) {
		retained, err := s.Topology("test-cluster")
		require.NoError(t, err)

		writeDescriptor(t, dir, "test-cluster.xml", "<topology><gateway>")
		assert.Equal(t, topologyDomain.Error, rec.next(t).Kind)

		require.NoError(t, s.Redeploy(ctx, "test-cluster"))
		e := rec.next(t)
		assert.Equal(t, topologyDomain.Updated, e.Kind)
		assert.Equal(t, "test-cluster", e.Name)
		assert.Same(t, retained, e.Topology)
		rec.none(t, 100*time.Millisecond)

		writeDescriptor(t, dir, "test-cluster.xml", validXML)
		assert.Equal(t, topologyDomain.Updated, rec.next(t).Kind)
	})

	t.Run("unknown topology", func(t *testing.T) {
		err := s.Redeploy(ctx, "missing")
		assert.ErrorIs(t, err, topologyDomain.ErrTopologyNotFound)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestTopologyService_NotInitialized(t *testing.T) {
	s := NewTopologyService(slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.ErrorIs(t, s.Start(context.Background()), errors.ErrDependencyMissing)
	assert.ErrorIs(t, s.Redeploy(context.Background(), ""), errors.ErrDependencyMissing)
	assert.ErrorIs(t, s.Init("", time.Second), errors.ErrInvalidInput)
}

func TestTopologyService_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir)

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	s.Subscribe(topologyDomain.ListenerFunc(func(topologyDomain.Event) {
		<-release
	}))
	fast := newRecorder()
	s.Subscribe(fast)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	for _, name := range []string{"a.xml", "b.xml", "c.xml"} {
		writeDescriptor(t, dir, name, validXML)
	}
	seen := map[string]bool{}
	for len(seen) < 3 {
		seen[fast.next(t).Name] = true
	}

	unblock()
	require.NoError(t, s.Stop(ctx))
}

func TestTopologyService_Unsubscribe(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir)
	rec := newRecorder()
	unsubscribe := s.Subscribe(rec)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer func() { require.NoError(t, s.Stop(ctx)) }()

	unsubscribe()
	unsubscribe()

	writeDescriptor(t, dir, "test-cluster.xml", validXML)
	rec.none(t, 100*time.Millisecond)
}
