package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRunningParsesStatusOutput(t *testing.T) {
	s := NewWithRunner(func(ctx context.Context, args ...string) (string, error) {
		assert.Equal(t, []string{"status"}, args)
		return "ccr: Running (pid 1234)", nil
	})
	assert.True(t, s.IsRunning(context.Background()))
}

func TestIsRunningFalseOnError(t *testing.T) {
	s := NewWithRunner(func(ctx context.Context, args ...string) (string, error) {
		return "", assert.AnError
	})
	assert.False(t, s.IsRunning(context.Background()))
}

func TestStartWaitsForReady(t *testing.T) {
	calls := 0
	s := NewWithRunner(func(ctx context.Context, args ...string) (string, error) {
		calls++
		if args[0] == "start" {
			return "", nil
		}
		return "Running", nil
	})
	require.NoError(t, s.Start(context.Background()))
}
