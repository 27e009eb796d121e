package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchDynamicRulePicksHighestPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated_config.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.AddDynamicRule(DynamicRule{ID: "low", Keywords: []string{"code"}, Priority: 1, Enabled: true, Provider: "a", Model: "m1"}))
	require.NoError(t, store.AddDynamicRule(DynamicRule{ID: "high", Keywords: []string{"code"}, Priority: 5, Enabled: true, Provider: "b", Model: "m2"}))

	rule, ok := store.MatchDynamicRule("please write some CODE for me")
	require.True(t, ok)
	assert.Equal(t, "high", rule.ID)
}

func TestMatchDynamicRuleSkipsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated_config.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.AddDynamicRule(DynamicRule{ID: "r1", Keywords: []string{"think"}, Priority: 10, Enabled: false}))

	_, ok := store.MatchDynamicRule("let's think about it")
	assert.False(t, ok)
}

func TestAddDynamicRulePersistsAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated_config.json")
	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.AddDynamicRule(DynamicRule{ID: "r1", Keywords: []string{"x"}, Priority: 1, Enabled: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "r1"`)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Document().RouterData.DynamicRules, 1)
}

func TestDeleteDynamicRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated_config.json")
	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.AddDynamicRule(DynamicRule{ID: "r1", Priority: 1, Enabled: true}))
	require.NoError(t, store.DeleteDynamicRule("r1"))

	assert.Empty(t, store.Document().RouterData.DynamicRules)
}

func TestSyncFromWorkbenchProvidersAssignsDescendingPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated_config.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.SyncFromWorkbenchProviders([]string{"a", "b", "c"}))
	providers := store.Document().RouterData.Providers
	require.Len(t, providers, 3)
	assert.Equal(t, 10, providers[0].Priority)
	assert.Equal(t, 9, providers[1].Priority)
	assert.Equal(t, 8, providers[2].Priority)
}

func TestEncryptDecryptAPIKeyRoundTrip(t *testing.T) {
	encrypted, err := EncryptAPIKey("sk-secret", "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "sk-secret")

	decrypted, err := DecryptAPIKey(encrypted, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", decrypted)
}
