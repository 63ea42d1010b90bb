// Package dto provides data transfer objects for the topology admin API.
package dto

import (
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// TopologyResponse represents a topology in API responses.
type TopologyResponse struct {
	Name       string                    `json:"name"`
	Source     string                    `json:"source"`
	Checksum   string                    `json:"checksum"`
	Timestamp  time.Time                 `json:"timestamp"`
	Providers  []topologyDomain.Provider `json:"providers"`
	Services   []ServiceRouteResponse    `json:"services"`
	Deployment *deployDomain.Status      `json:"deployment,omitempty"`
}

// ServiceRouteResponse represents a backend route in API responses.
type ServiceRouteResponse struct {
	Role string `json:"role"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// TopologySummaryResponse is the list form of a topology.
type TopologySummaryResponse struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Version   string    `json:"version,omitempty"`
	Pending   bool      `json:"pending"`
}

// ListTopologiesResponse represents the list of known topologies.
type ListTopologiesResponse struct {
	Data []TopologySummaryResponse `json:"data"`
}

// VersionResponse represents one deployed version.
type VersionResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Active    bool      `json:"active"`
}

// ListVersionsResponse represents the on-disk versions of a topology, oldest first.
type ListVersionsResponse struct {
	Data []VersionResponse `json:"data"`
}

// RedeployResponse acknowledges a redeploy request.
type RedeployResponse struct {
	Status   string `json:"status"`
	Topology string `json:"topology,omitempty"`
}

// MapTopologyToResponse converts a topology and its deployment status. Provider
// parameters are omitted because they may carry alias references.
func MapTopologyToResponse(topology *topologyDomain.Topology, status *deployDomain.Status) TopologyResponse {
	providers := make([]topologyDomain.Provider, 0, len(topology.Providers))
	for _, p := range topology.Providers {
		providers = append(providers, topologyDomain.Provider{Role: p.Role, Name: p.Name, Enabled: p.Enabled})
	}

	services := make([]ServiceRouteResponse, 0, len(topology.Services))
	for _, s := range topology.Services {
		services = append(services, ServiceRouteResponse{Role: s.Role, Path: s.Path(), URL: s.URL})
	}

	return TopologyResponse{
		Name:       topology.Name,
		Source:     topology.Source,
		Checksum:   topology.Checksum,
		Timestamp:  topology.Timestamp,
		Providers:  providers,
		Services:   services,
		Deployment: status,
	}
}

// MapTopologiesToListResponse converts topologies to the list response. Statuses
// are matched by name; a topology the engine has not seen yet is "undeployed".
func MapTopologiesToListResponse(
	topologies []*topologyDomain.Topology,
	statuses []deployDomain.Status,
) ListTopologiesResponse {
	byName := make(map[string]deployDomain.Status, len(statuses))
	for _, s := range statuses {
		byName[s.Name] = s
	}

	data := make([]TopologySummaryResponse, 0, len(topologies))
	for _, t := range topologies {
		summary := TopologySummaryResponse{
			Name:      t.Name,
			Checksum:  t.Checksum,
			Timestamp: t.Timestamp,
			State:     deployDomain.Undeployed.String(),
		}
		if s, ok := byName[t.Name]; ok {
			summary.State = s.State.String()
			summary.Pending = s.Pending
			if s.Active != nil {
				summary.Version = s.Active.ID()
			}
		}
		data = append(data, summary)
	}
	return ListTopologiesResponse{Data: data}
}

// MapVersionsToListResponse converts versions, flagging the active one.
func MapVersionsToListResponse(versions []*deployDomain.Version, active *deployDomain.Version) ListVersionsResponse {
	data := make([]VersionResponse, 0, len(versions))
	for _, v := range versions {
		data = append(data, VersionResponse{
			ID:        v.ID(),
			Token:     v.Token,
			CreatedAt: v.CreatedAt,
			Checksum:  v.Checksum,
			Active:    active != nil && active.ID() == v.ID(),
		})
	}
	return ListVersionsResponse{Data: data}
}
