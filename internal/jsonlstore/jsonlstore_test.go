package jsonlstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListSessionFiles(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, dir, "a.jsonl", "{}\n")
	writeJSONL(t, dir, "b.jsonl", "{}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	files, err := ListSessionFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].SessionID)
	assert.Equal(t, "b", files[1].SessionID)
}

func TestFirstUserMessageSkipsSynthetic(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"system","subtype":"init","session_id":"s1"}` + "\n" +
		`{"type":"user","message":{"role":"user","content":"<command-name>foo</command-name>"}}` + "\n" +
		`{"type":"user","message":{"role":"user","content":"Caveat: The messages below were generated by the user while running local commands"}}` + "\n" +
		`{"type":"user","message":{"role":"user","content":"real question"},"timestamp":"2024-01-01T00:00:00Z"}` + "\n"
	path := writeJSONL(t, dir, "s1.jsonl", content)

	text, ts, err := FirstUserMessage(path)
	require.NoError(t, err)
	assert.Equal(t, "real question", text)
	require.NotNil(t, ts)
	assert.Equal(t, "2024-01-01T00:00:00Z", *ts)
}

func TestLoadHistoryBackfillsSyntheticTimestamps(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"user"}` + "\n" + `{"type":"assistant"}` + "\n" + `{"type":"assistant"}` + "\n"
	path := writeJSONL(t, dir, "s1.jsonl", content)

	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	entries, err := LoadHistory(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[2].Timestamp.Equal(mtime))
	assert.True(t, entries[1].Timestamp.Equal(mtime.Add(-SyntheticMessageSpacing)))
	assert.True(t, entries[0].Timestamp.Equal(mtime.Add(-2 * SyntheticMessageSpacing)))
}
