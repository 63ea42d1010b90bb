package domain

import "time"

// EventKind classifies a topology change.
type EventKind int

const (
	// Added is emitted for a descriptor seen for the first time.
	Added EventKind = iota + 1
	// Updated is emitted when a descriptor's content or timestamp changed, or on redeploy.
	Updated
	// Removed is emitted when a descriptor disappears.
	Removed
	// Error is emitted when a descriptor fails to parse. The previous topology, if
	// any, stays authoritative.
	Error
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a change notification for one topology name. Topology is nil for
// Removed and Error events.
type Event struct {
	Kind     EventKind
	Name     string
	Topology *Topology
	Err      error
	At       time.Time
}

// Listener receives topology events. Calls for one subscriber are sequential and
// in discovery order.
type Listener interface {
	HandleTopologyEvent(event Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(event Event)

// HandleTopologyEvent calls f(event).
func (f ListenerFunc) HandleTopologyEvent(event Event) {
	f(event)
}
