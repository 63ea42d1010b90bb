package service

import (
	"log/slog"
	"sync"

	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// dispatcher delivers events to one listener in FIFO order from its own goroutine.
// The queue is unbounded so a slow listener never stalls discovery.
type dispatcher struct {
	listener topologyDomain.Listener
	logger   *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []topologyDomain.Event
	closed bool
	done   chan struct{}
}

func newDispatcher(listener topologyDomain.Listener, logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		listener: listener,
		logger:   logger,
		done:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) enqueue(events ...topologyDomain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, events...)
	d.cond.Signal()
}

// close discards undelivered events and waits for an in-progress delivery to return.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.queue = nil
		d.cond.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		event := d.queue[0]
		d.queue[0] = topologyDomain.Event{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(event)
	}
}

func (d *dispatcher) deliver(event topologyDomain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("topology listener panicked",
				slog.String("topology", event.Name),
				slog.String("kind", event.Kind.String()),
				slog.Any("panic", r),
			)
		}
	}()
	d.listener.HandleTopologyEvent(event)
}
