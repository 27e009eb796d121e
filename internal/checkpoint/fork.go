package checkpoint

import (
	"io"
	"os"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// ForkFromCheckpoint copies the source session's JSONL transcript to
// newJSONLPath (the new session's file), then creates a checkpoint for the
// new session whose ParentID is the source checkpoint. The new Manager
// returned owns newSessionID's lineage going forward.
func (m *Manager) ForkFromCheckpoint(checkpointID, newSessionID, newJSONLPath, description string) (*Manager, Result, error) {
	m.mu.Lock()
	srcPath := m.jsonlPath
	m.mu.Unlock()

	if err := copyFile(srcPath, newJSONLPath); err != nil {
		return nil, Result{}, err
	}

	fork := NewManager(m.projectID, newSessionID, newJSONLPath, m.store)
	result, err := fork.CreateCheckpoint(description, checkpointID, -1, nil)
	if err != nil {
		return nil, Result{}, err
	}
	return fork, result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return wkerr.IO("checkpoint.manager.fork.open_source", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return wkerr.IO("checkpoint.manager.fork.create_dest", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return wkerr.IO("checkpoint.manager.fork.copy", err)
	}
	return nil
}
