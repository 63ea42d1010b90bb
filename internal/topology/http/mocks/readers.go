// Package mocks provides mock implementations for testing topology HTTP handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// MockTopologyReader is a mock implementation of TopologyReader for testing.
type MockTopologyReader struct {
	mock.Mock
}

// Topologies mocks the Topologies method of TopologyReader.
func (m *MockTopologyReader) Topologies() []*topologyDomain.Topology {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*topologyDomain.Topology)
}

// Topology mocks the Topology method of TopologyReader.
func (m *MockTopologyReader) Topology(name string) (*topologyDomain.Topology, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*topologyDomain.Topology), args.Error(1)
}

// Redeploy mocks the Redeploy method of TopologyReader.
func (m *MockTopologyReader) Redeploy(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// MockDeploymentReader is a mock implementation of DeploymentReader for testing.
type MockDeploymentReader struct {
	mock.Mock
}

// Lookup mocks the Lookup method of DeploymentReader.
func (m *MockDeploymentReader) Lookup(name string) (*deployDomain.Version, bool) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*deployDomain.Version), args.Bool(1)
}

// Status mocks the Status method of DeploymentReader.
func (m *MockDeploymentReader) Status(name string) (deployDomain.Status, error) {
	args := m.Called(name)
	return args.Get(0).(deployDomain.Status), args.Error(1)
}

// Statuses mocks the Statuses method of DeploymentReader.
func (m *MockDeploymentReader) Statuses() []deployDomain.Status {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]deployDomain.Status)
}

// Versions mocks the Versions method of DeploymentReader.
func (m *MockDeploymentReader) Versions(name string) ([]*deployDomain.Version, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*deployDomain.Version), args.Error(1)
}
