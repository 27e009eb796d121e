package checkpoint

import (
	"os"
	"strings"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// FileWriter writes restored file content back to the working tree. The
// Manager does not know the project root layout; the caller supplies the
// write.
type FileWriter func(path string, content []byte) error

// RestoreCheckpoint applies the checkpoint identified by checkpointID
// according to mode. For ConversationOnly and Both, the session's on-disk
// JSONL is afterward exactly the concatenation of the checkpoint's tracked
// messages, each followed by a newline. For CodeOnly and Both, every file
// snapshot is written back via writer.
func (m *Manager) RestoreCheckpoint(checkpointID string, mode RestoreMode, writer FileWriter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == ConversationOnly || mode == Both {
		lines, err := m.store.LoadMessages(m.sessionID, checkpointID)
		if err != nil {
			return err
		}
		if err := m.writeJSONL(lines); err != nil {
			return err
		}
		m.tracked = append([]string(nil), lines...)
		m.bulkLoaded = true
	}

	if mode == CodeOnly || mode == Both {
		if writer == nil {
			return wkerr.Config("checkpoint.manager.restore.no_writer", nil)
		}
		files, err := m.store.LoadFileSnapshots(m.sessionID, checkpointID)
		if err != nil {
			return err
		}
		for path, content := range files {
			if err := writer(path, content); err != nil {
				return wkerr.IO("checkpoint.manager.restore.write_file", err)
			}
		}
	}

	m.headCheckpointID = checkpointID
	return nil
}

func (m *Manager) writeJSONL(lines []string) error {
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	tmp := m.jsonlPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return wkerr.IO("checkpoint.manager.restore.write_jsonl", err)
	}
	if err := os.Rename(tmp, m.jsonlPath); err != nil {
		return wkerr.IO("checkpoint.manager.restore.rename_jsonl", err)
	}
	return nil
}
