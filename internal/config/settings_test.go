package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSettingsPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveSettings(Settings{Extra: map[string]any{"customKey": "value"}}))
	require.NoError(t, store.SaveSettings(Settings{APIKeyHelper: "echo token"}))

	loaded, err := store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "echo token", loaded.APIKeyHelper)
	assert.Equal(t, "value", loaded.Extra["customKey"])
}

func TestSaveSettingsMergesEnv(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveSettings(Settings{Env: map[string]string{"FOO": "bar"}}))
	loaded, err := store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "bar", loaded.Env["FOO"])
}

func TestExecutionConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	cfg := ExecutionConfig{DefaultModel: "claude-3-opus", DefaultTimeoutMs: 5000}
	require.NoError(t, store.SaveExecutionConfig(cfg))

	loaded, err := store.LoadExecutionConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadProvidersMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	presets, err := store.LoadProviders()
	require.NoError(t, err)
	assert.Nil(t, presets)
}
