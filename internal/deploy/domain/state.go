package domain

import "time"

// State is the deployment state of one topology name.
type State int

const (
	Undeployed State = iota
	Deploying
	Active
	Failed
)

func (s State) String() string {
	switch s {
	case Undeployed:
		return "undeployed"
	case Deploying:
		return "deploying"
	case Active:
		return "active"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of a topology's deployment. Active may be set while State
// is Failed: a failed redeploy leaves the previous version serving. Pending is set
// while work for the topology is queued or in flight.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Active    *Version  `json:"active,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Pending   bool      `json:"pending"`
	UpdatedAt time.Time `json:"updated_at"`
}
