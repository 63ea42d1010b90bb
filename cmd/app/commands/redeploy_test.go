package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedeployer struct {
	mock.Mock
}

func (m *MockRedeployer) Redeploy(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func TestRunRedeploy(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("single-topology", func(t *testing.T) {
		topologies := &MockRedeployer{}
		topologies.On("Redeploy", ctx, "test-cluster").Return(nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunRedeploy(ctx, topologies, logger, &out, "test-cluster"))
		assert.Equal(t, "Redeploy requested for test-cluster\n", out.String())
		topologies.AssertExpectations(t)
	})

	t.Run("all-topologies", func(t *testing.T) {
		topologies := &MockRedeployer{}
		topologies.On("Redeploy", ctx, "").Return(nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunRedeploy(ctx, topologies, logger, &out, ""))
		assert.Contains(t, out.String(), "all topologies")
		topologies.AssertExpectations(t)
	})

	t.Run("unknown-topology", func(t *testing.T) {
		topologies := &MockRedeployer{}
		topologies.On("Redeploy", ctx, "missing").Return(errors.New("not found")).Once()

		err := RunRedeploy(ctx, topologies, logger, &bytes.Buffer{}, "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to redeploy")
	})

	t.Run("invalid-name", func(t *testing.T) {
		topologies := &MockRedeployer{}
		err := RunRedeploy(ctx, topologies, logger, &bytes.Buffer{}, "../etc")
		require.Error(t, err)
		topologies.AssertNotCalled(t, "Redeploy", mock.Anything, mock.Anything)
	})
}
