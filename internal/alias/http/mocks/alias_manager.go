// Package mocks provides mock implementations for testing alias HTTP handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAliasManager is a mock implementation of AliasManager for testing.
type MockAliasManager struct {
	mock.Mock
}

// SetAlias mocks the SetAlias method of AliasManager.
func (m *MockAliasManager) SetAlias(ctx context.Context, alias, value string) error {
	args := m.Called(ctx, alias, value)
	return args.Error(0)
}

// RemoveAlias mocks the RemoveAlias method of AliasManager.
func (m *MockAliasManager) RemoveAlias(ctx context.Context, alias string) error {
	args := m.Called(ctx, alias)
	return args.Error(0)
}

// ListAliases mocks the ListAliases method of AliasManager.
func (m *MockAliasManager) ListAliases(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
