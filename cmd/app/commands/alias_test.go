package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/topogate/internal/alias"
)

type MockAliasStore struct {
	mock.Mock
}

func (m *MockAliasStore) GetAliasValue(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockAliasStore) SetAlias(ctx context.Context, name, value string) error {
	return m.Called(ctx, name, value).Error(0)
}

func (m *MockAliasStore) RemoveAlias(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockAliasStore) ListAliases(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func TestRunAliasSet(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("global", func(t *testing.T) {
		store := &MockAliasStore{}
		store.On("SetAlias", ctx, "ldap-password", "secret").Return(nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunAliasSet(ctx, store, logger, &out, "ldap-password", "", "secret"))
		assert.Equal(t, "Alias ldap-password set\n", out.String())
		store.AssertExpectations(t)
	})

	t.Run("topology-scoped", func(t *testing.T) {
		store := &MockAliasStore{}
		key := alias.TopologyAlias("test-cluster", "ldap-password")
		store.On("SetAlias", ctx, key, "secret").Return(nil).Once()

		require.NoError(t, RunAliasSet(ctx, store, logger, &bytes.Buffer{}, "ldap-password", "test-cluster", "secret"))
		store.AssertExpectations(t)
	})

	t.Run("blank-value", func(t *testing.T) {
		store := &MockAliasStore{}
		err := RunAliasSet(ctx, store, logger, &bytes.Buffer{}, "ldap-password", "", "  ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid alias value")
		store.AssertNotCalled(t, "SetAlias", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid-name", func(t *testing.T) {
		err := RunAliasSet(ctx, &MockAliasStore{}, logger, &bytes.Buffer{}, "", "", "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid alias name")
	})
}

func TestRunAliasGet(t *testing.T) {
	ctx := context.Background()

	store := &MockAliasStore{}
	store.On("GetAliasValue", ctx, "ldap-password").Return("secret", nil).Once()
	store.On("GetAliasValue", ctx, "missing").Return("", alias.ErrAliasNotFound).Once()

	var out bytes.Buffer
	require.NoError(t, RunAliasGet(ctx, store, &out, "ldap-password", ""))
	assert.Equal(t, "secret\n", out.String())

	err := RunAliasGet(ctx, store, &bytes.Buffer{}, "missing", "")
	assert.ErrorIs(t, err, alias.ErrAliasNotFound)
	store.AssertExpectations(t)
}

func TestRunAliasRemove(t *testing.T) {
	ctx := context.Background()

	store := &MockAliasStore{}
	store.On("RemoveAlias", ctx, "ldap-password").Return(nil).Once()

	var out bytes.Buffer
	require.NoError(t, RunAliasRemove(ctx, store, discardLogger(), &out, "ldap-password", ""))
	assert.Equal(t, "Alias ldap-password removed\n", out.String())
	store.AssertExpectations(t)
}

func TestRunAliasList(t *testing.T) {
	ctx := context.Background()

	t.Run("text-output", func(t *testing.T) {
		store := &MockAliasStore{}
		store.On("ListAliases", ctx).Return([]string{"a", "b"}, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunAliasList(ctx, store, &out, "text"))
		assert.Equal(t, "a\nb\n", out.String())
	})

	t.Run("json-output", func(t *testing.T) {
		store := &MockAliasStore{}
		store.On("ListAliases", ctx).Return(nil, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunAliasList(ctx, store, &out, "json"))
		assert.JSONEq(t, `{"aliases": []}`, out.String())
	})

	t.Run("empty-text", func(t *testing.T) {
		store := &MockAliasStore{}
		store.On("ListAliases", ctx).Return([]string{}, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunAliasList(ctx, store, &out, "text"))
		assert.Contains(t, out.String(), "No aliases found")
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunAliasList(ctx, &MockAliasStore{}, &bytes.Buffer{}, "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})
}
