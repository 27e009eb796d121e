// Package storage persists checkpoint metadata, tracked messages, and
// content-addressed file snapshots to disk under
// <project>/checkpoints/<session>/<checkpoint_id>/.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// Metadata is the persisted, immutable description of one checkpoint.
type Metadata struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SessionID   string    `json:"session_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	TotalTokens int       `json:"total_tokens"`
}

// FileSnapshot is one tracked file's content at checkpoint time.
type FileSnapshot struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Store persists and retrieves checkpoints for a single project root.
type Store struct {
	root string // <project>/checkpoints
}

// New returns a Store rooted at <projectDir>/checkpoints.
func New(projectDir string) *Store {
	return &Store{root: filepath.Join(projectDir, "checkpoints")}
}

func (s *Store) dir(sessionID, checkpointID string) string {
	return filepath.Join(s.root, sessionID, checkpointID)
}

// HashContent returns the content-addressed hash used to dedupe file
// snapshots.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Save persists metadata, the raw tracked-message JSONL lines, and a set of
// file snapshots (path -> content). Snapshots sharing a hash are written
// once under files/<hash>; per-checkpoint path->hash mapping is recorded in
// files.json.
func (s *Store) Save(meta Metadata, messageLines []string, files map[string][]byte) error {
	dir := s.dir(meta.SessionID, meta.ID)
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		return wkerr.IO("checkpoint.store.save.mkdir", err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return wkerr.Parse("checkpoint.store.save.marshal_metadata", err)
	}
	if err := atomicWrite(filepath.Join(dir, "metadata.json"), metaBytes); err != nil {
		return err
	}

	var messagesBuf []byte
	for _, line := range messageLines {
		messagesBuf = append(messagesBuf, []byte(line)...)
		messagesBuf = append(messagesBuf, '\n')
	}
	if err := atomicWrite(filepath.Join(dir, "messages.jsonl"), messagesBuf); err != nil {
		return err
	}

	snapshots := make([]FileSnapshot, 0, len(files))
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := files[p]
		hash := HashContent(content)
		snapshots = append(snapshots, FileSnapshot{Path: p, Hash: hash})

		blobPath := filepath.Join(dir, "files", hash)
		if _, err := os.Stat(blobPath); os.IsNotExist(err) {
			if err := os.WriteFile(blobPath, content, 0o644); err != nil {
				return wkerr.IO("checkpoint.store.save.write_blob", err)
			}
		}
	}

	snapBytes, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return wkerr.Parse("checkpoint.store.save.marshal_files", err)
	}
	return atomicWrite(filepath.Join(dir, "files.json"), snapBytes)
}

// LoadMetadata reads a checkpoint's metadata.
func (s *Store) LoadMetadata(sessionID, checkpointID string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(s.dir(sessionID, checkpointID), "metadata.json"))
	if err != nil {
		return meta, wkerr.IO("checkpoint.store.load_metadata", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, wkerr.Parse("checkpoint.store.load_metadata.unmarshal", err)
	}
	return meta, nil
}

// LoadMessages reads the tracked-message JSONL lines, in order.
func (s *Store) LoadMessages(sessionID, checkpointID string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(sessionID, checkpointID), "messages.jsonl"))
	if err != nil {
		return nil, wkerr.IO("checkpoint.store.load_messages", err)
	}
	return splitNonEmptyLines(string(data)), nil
}

// LoadFileSnapshots reads the path->hash mapping and the blob content for
// each.
func (s *Store) LoadFileSnapshots(sessionID, checkpointID string) (map[string][]byte, error) {
	dir := s.dir(sessionID, checkpointID)
	data, err := os.ReadFile(filepath.Join(dir, "files.json"))
	if err != nil {
		return nil, wkerr.IO("checkpoint.store.load_files", err)
	}
	var snaps []FileSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, wkerr.Parse("checkpoint.store.load_files.unmarshal", err)
	}

	out := make(map[string][]byte, len(snaps))
	for _, snap := range snaps {
		content, err := os.ReadFile(filepath.Join(dir, "files", snap.Hash))
		if err != nil {
			return nil, wkerr.IO("checkpoint.store.load_files.read_blob", err)
		}
		out[snap.Path] = content
	}
	return out, nil
}

// LoadFileHashes reads only the path->hash mapping, without blob content;
// used by the diff algorithm.
func (s *Store) LoadFileHashes(sessionID, checkpointID string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(sessionID, checkpointID), "files.json"))
	if err != nil {
		return nil, wkerr.IO("checkpoint.store.load_hashes", err)
	}
	var snaps []FileSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, wkerr.Parse("checkpoint.store.load_hashes.unmarshal", err)
	}
	out := make(map[string]string, len(snaps))
	for _, snap := range snaps {
		out[snap.Path] = snap.Hash
	}
	return out, nil
}

// ListCheckpoints returns every checkpoint id stored for sessionID, sorted
// by creation time ascending.
func (s *Store) ListCheckpoints(sessionID string) ([]Metadata, error) {
	dir := filepath.Join(s.root, sessionID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wkerr.IO("checkpoint.store.list", err)
	}

	var metas []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.LoadMetadata(sessionID, entry.Name())
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	sort.SliceStable(metas, func(i, j int) bool { return metas[i].CreatedAt.Before(metas[j].CreatedAt) })
	return metas, nil
}

// Delete removes a checkpoint's directory entirely.
func (s *Store) Delete(sessionID, checkpointID string) error {
	if err := os.RemoveAll(s.dir(sessionID, checkpointID)); err != nil {
		return wkerr.IO("checkpoint.store.delete", err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return wkerr.IO("checkpoint.store.atomic_write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return wkerr.IO("checkpoint.store.atomic_write.rename", err)
	}
	return nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
