package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSkipsWhenConditionFalse(t *testing.T) {
	cond := &Condition{LHS: "session_id", RHS: "other"}
	d := New(func(Event) []Hook {
		return []Hook{{Command: "echo hi", Condition: cond}}
	}, func(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
		t.Fatal("hook should have been skipped")
		return "", nil
	})

	result := d.Run(context.Background(), Context{Event: PostToolUse, SessionID: "s1"})
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Skipped)
}

func TestPreToolUseFailureBlocksChain(t *testing.T) {
	d := New(func(Event) []Hook {
		return []Hook{{Command: "false"}}
	}, func(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
		return "", assert.AnError
	})

	result := d.Run(context.Background(), Context{Event: PreToolUse, SessionID: "s1"})
	assert.False(t, result.ShouldContinue)
}

func TestPostToolUseFailureDoesNotBlock(t *testing.T) {
	d := New(func(Event) []Hook {
		return []Hook{{Command: "false"}}
	}, func(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
		return "", assert.AnError
	})

	result := d.Run(context.Background(), Context{Event: PostToolUse, SessionID: "s1"})
	assert.True(t, result.ShouldContinue)
}

func TestEnvInjection(t *testing.T) {
	var gotEnv []string
	d := New(func(Event) []Hook {
		return []Hook{{Command: "noop"}}
	}, func(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
		gotEnv = env
		return "", nil
	})

	d.Run(context.Background(), Context{Event: OnSessionStart, SessionID: "s1", ProjectPath: "/tmp/p"})
	assert.Contains(t, gotEnv, "HOOK_EVENT=OnSessionStart")
	assert.Contains(t, gotEnv, "SESSION_ID=s1")
	assert.Contains(t, gotEnv, "PROJECT_PATH=/tmp/p")
}

func TestParseCondition(t *testing.T) {
	cond, err := ParseCondition(`event == "Stop"`)
	require.NoError(t, err)
	require.NotNil(t, cond)
	assert.Equal(t, "event", cond.LHS)
	assert.Equal(t, "Stop", cond.RHS)

	empty, err := ParseCondition("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCondition("bogus")
	assert.Error(t, err)
}

func TestRetriesRunsUntilSuccess(t *testing.T) {
	attempts := 0
	d := New(func(Event) []Hook {
		return []Hook{{Command: "flaky", Retries: 2}}
	}, func(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
		attempts++
		if attempts < 2 {
			return "", assert.AnError
		}
		return "ok", nil
	})

	result := d.Run(context.Background(), Context{Event: PostToolUse})
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, 2, attempts)
}
