// Package domain defines topologies, their providers and routes, and the change
// events produced by the TopologyService.
package domain

import (
	"strings"
	"time"

	"github.com/allisson/topogate/internal/errors"
)

// Topology is a named declaration of a provider chain and backend routes for one
// virtual cluster. The name comes from the descriptor file's base name.
type Topology struct {
	Name      string
	Providers []Provider
	Services  []ServiceRoute
	// Timestamp is the descriptor modification time.
	Timestamp time.Time
	// Checksum is the hex sha256 of the descriptor content.
	Checksum string
	// Source is the descriptor path.
	Source string
}

// Provider is one element of a topology's provider chain. Params keep descriptor order.
type Provider struct {
	Role    string  `json:"role" yaml:"role"`
	Name    string  `json:"name" yaml:"name"`
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Params  []Param `json:"params,omitempty" yaml:"params,omitempty"`
}

// ServiceRoute is a backend route exposed under the topology.
type ServiceRoute struct {
	Role   string  `json:"role" yaml:"role"`
	URL    string  `json:"url,omitempty" yaml:"url,omitempty"`
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param is an ordered name/value pair.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// PathParam overrides the URL prefix of a route.
const PathParam = "path"

// Param returns the value of the named provider parameter.
func (p Provider) Param(name string) (string, bool) {
	return lookup(p.Params, name)
}

// Param returns the value of the named route parameter.
func (s ServiceRoute) Param(name string) (string, bool) {
	return lookup(s.Params, name)
}

// Path returns the URL prefix the route is served under, relative to the topology.
// The "path" param wins; otherwise it is the lower-cased role.
func (s ServiceRoute) Path() string {
	if p, ok := s.Param(PathParam); ok && p != "" {
		return "/" + strings.Trim(p, "/")
	}
	return "/" + strings.ToLower(s.Role)
}

// EnabledProviders returns the providers with Enabled set, in chain order.
func (t *Topology) EnabledProviders() []Provider {
	out := make([]Provider, 0, len(t.Providers))
	for _, p := range t.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func lookup(params []Param, name string) (string, bool) {
	for _, p := range params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ErrTopologyNotFound indicates no descriptor is known for the name.
var ErrTopologyNotFound = errors.Wrap(errors.ErrNotFound, "topology not found")
