package agentsup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgvResumePrecedesPrompt(t *testing.T) {
	argv := BuildArgv(SpawnRequest{Prompt: "hello", Model: "claude-3", ResumeID: "sess-1"})
	require := assert.New(t)
	require.Equal([]string{"--resume", "sess-1", "hello", "--model", "claude-3", "--output-format", "stream-json"}, argv)
}

func TestBuildArgvSkipPermissionsExcludesOtherFlags(t *testing.T) {
	argv := BuildArgv(SpawnRequest{
		Prompt: "hi",
		Permission: PermissionConfig{
			SkipPermissions: true,
			AllowedTools:    []string{"Bash"},
			PermissionMode:  "acceptEdits",
		},
	})

	assert.Contains(t, argv, "--dangerously-skip-permissions")
	assert.NotContains(t, argv, "--allowedTools")
	assert.NotContains(t, argv, "--permission-mode")
}

func TestBuildArgvContinueFlag(t *testing.T) {
	argv := BuildArgv(SpawnRequest{Prompt: "hi", Continue: true})
	assert.Contains(t, argv, "-c")
}

func TestBuildArgvPermissionFlagsWhenNotSkipping(t *testing.T) {
	argv := BuildArgv(SpawnRequest{
		Prompt: "hi",
		Permission: PermissionConfig{
			AllowedTools:    []string{"Bash", "Read"},
			DisallowedTools: []string{"WebFetch"},
			PermissionMode:  "acceptEdits",
		},
	})

	assert.Contains(t, argv, "--allowedTools")
	assert.Contains(t, argv, "Bash,Read")
	assert.Contains(t, argv, "--disallowedTools")
	assert.Contains(t, argv, "--permission-mode")
}

func TestInheritedEnvSetsAnthropicModel(t *testing.T) {
	env := inheritedEnv("/usr/bin/claude", "claude-3-opus")
	found := false
	for _, kv := range env {
		if kv == "ANTHROPIC_MODEL=claude-3-opus" {
			found = true
		}
	}
	assert.True(t, found)
}
