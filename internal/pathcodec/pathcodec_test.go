package pathcodec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFallback(t *testing.T) {
	encoded := Encode("/home/user/projects/foo")
	assert.Equal(t, "-home-user-projects-foo", encoded)
	assert.Equal(t, "/home/user/projects/foo", DecodeFallback(encoded))
}

func TestNormalizeEquivalence(t *testing.T) {
	assert.True(t, Equivalent("/Home/User/Foo/", "/home/user/foo"))
	assert.True(t, Equivalent(`C:\Users\foo`, "c/users/foo"))
	assert.False(t, Equivalent("/home/user/foo", "/home/user/bar"))
}

func TestRecoverFromJSONL(t *testing.T) {
	dir := t.TempDir()
	content := `{"type":"system","subtype":"init","cwd":"/workspace/demo","session_id":"abc"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sess.jsonl"), []byte(content), 0o644))

	path, err := RecoverFromJSONL(dir)
	require.NoError(t, err)
	assert.Equal(t, "/workspace/demo", path)
}

func TestRecoverFromJSONLNoCwd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sess.jsonl"), []byte(`{"type":"system"}`+"\n"), 0o644))

	_, err := RecoverFromJSONL(dir)
	assert.ErrorIs(t, err, ErrCwdNotFound)
}
