package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcourtman/workbench-core/internal/checkpoint/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	projectDir := t.TempDir()
	jsonlPath := filepath.Join(projectDir, "sess-1.jsonl")
	content := `{"type":"user","message":{"role":"user","content":"hi"}}` + "\n" +
		`{"type":"assistant","message":{"role":"assistant","content":"hello"}}` + "\n"
	require.NoError(t, os.WriteFile(jsonlPath, []byte(content), 0o644))

	store := storage.New(projectDir)
	return NewManager("proj-1", "sess-1", jsonlPath, store), projectDir
}

func TestCreateCheckpointBulkLoadsOnFirstCall(t *testing.T) {
	m, _ := newTestManager(t)

	result, err := m.CreateCheckpoint("initial", "", -1, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Checkpoint.ID)

	lines, err := m.store.LoadMessages("sess-1", result.Checkpoint.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestRestoreConversationOnlyRoundTripsJSONL(t *testing.T) {
	m, _ := newTestManager(t)
	result, err := m.CreateCheckpoint("cp1", "", -1, nil)
	require.NoError(t, err)

	m.TrackMessage(`{"type":"user","message":{"role":"user","content":"more"}}`)

	require.NoError(t, m.RestoreCheckpoint(result.Checkpoint.ID, ConversationOnly, nil))

	data, err := os.ReadFile(m.jsonlPath)
	require.NoError(t, err)

	expectedLines, err := m.store.LoadMessages("sess-1", result.Checkpoint.ID)
	require.NoError(t, err)
	expected := ""
	for _, l := range expectedLines {
		expected += l + "\n"
	}
	assert.Equal(t, expected, string(data))
}

func TestRestoreCodeOnlyWritesFiles(t *testing.T) {
	m, _ := newTestManager(t)
	files := map[string][]byte{"a.txt": []byte("v1")}
	result, err := m.CreateCheckpoint("cp1", "", -1, func() (map[string][]byte, error) { return files, nil })
	require.NoError(t, err)

	written := map[string][]byte{}
	writer := func(path string, content []byte) error {
		written[path] = content
		return nil
	}
	require.NoError(t, m.RestoreCheckpoint(result.Checkpoint.ID, CodeOnly, writer))
	assert.Equal(t, []byte("v1"), written["a.txt"])
}

func TestForkFromCheckpointSetsParentID(t *testing.T) {
	m, projectDir := newTestManager(t)
	result, err := m.CreateCheckpoint("cp1", "", -1, nil)
	require.NoError(t, err)

	newPath := filepath.Join(projectDir, "sess-2.jsonl")
	fork, forkResult, err := m.ForkFromCheckpoint(result.Checkpoint.ID, "sess-2", newPath, "forked")
	require.NoError(t, err)
	assert.Equal(t, result.Checkpoint.ID, forkResult.Checkpoint.ParentID)
	assert.Equal(t, "sess-2", fork.sessionID)

	_, err = os.Stat(newPath)
	require.NoError(t, err)
}

func TestGetCheckpointDiffCategorizesPaths(t *testing.T) {
	m, _ := newTestManager(t)
	from, err := m.CreateCheckpoint("from", "", -1, func() (map[string][]byte, error) {
		return map[string][]byte{"same.txt": []byte("x"), "removed.txt": []byte("y")}, nil
	})
	require.NoError(t, err)

	to, err := m.CreateCheckpoint("to", from.Checkpoint.ID, -1, func() (map[string][]byte, error) {
		return map[string][]byte{"same.txt": []byte("x\nx2"), "added.txt": []byte("z")}, nil
	})
	require.NoError(t, err)

	diff, err := m.GetCheckpointDiff(from.Checkpoint.ID, to.Checkpoint.ID)
	require.NoError(t, err)
	require.Len(t, diff.Modified, 1)
	assert.Equal(t, "same.txt", diff.Modified[0].Path)
	assert.Equal(t, []string{"added.txt"}, diff.Added)
	assert.Equal(t, []string{"removed.txt"}, diff.Deleted)
}

func TestCreateCheckpointSumsUsageTokens(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.CreateCheckpoint("cp1", "", -1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Checkpoint.TotalTokens)

	m.TrackMessage(`{"type":"assistant","usage":{"input_tokens":10,"output_tokens":5}}`)
	m.TrackMessage(`{"type":"assistant","usage":{"input_tokens":7,"output_tokens":3}}`)

	second, err := m.CreateCheckpoint("cp2", first.Checkpoint.ID, -1, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, second.Checkpoint.TotalTokens)

	diff, err := m.GetCheckpointDiff(first.Checkpoint.ID, second.Checkpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, diff.TokenDelta)
}

func TestShouldAutoCheckpointRespectsStrategy(t *testing.T) {
	m, _ := newTestManager(t)
	m.UpdateSettings(Settings{Auto: true, Strategy: PerPrompt})

	assert.True(t, m.ShouldAutoCheckpoint(`{"type":"user","content":"hi"}`))
	assert.False(t, m.ShouldAutoCheckpoint(`{"type":"assistant"}`))
}

func TestCleanupOldCheckpointsKeepsMostRecent(t *testing.T) {
	m, _ := newTestManager(t)
	var ids []string
	for i := 0; i < 5; i++ {
		r, err := m.CreateCheckpoint("cp", "", -1, nil)
		require.NoError(t, err)
		ids = append(ids, r.Checkpoint.ID)
	}

	removed, err := m.CleanupOldCheckpoints(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	remaining, err := m.ListCheckpoints()
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
