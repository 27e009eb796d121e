package checkpoint

import "bytes"

// GetCheckpointDiff compares the file-snapshot sets of two checkpoints
// belonging to this Manager's session. Modified paths get line-count-based
// additions/deletions; unified diff text is left empty, which is a
// permitted shape for this result.
func (m *Manager) GetCheckpointDiff(fromID, toID string) (Diff, error) {
	fromHashes, err := m.store.LoadFileHashes(m.sessionID, fromID)
	if err != nil {
		return Diff{}, err
	}
	toHashes, err := m.store.LoadFileHashes(m.sessionID, toID)
	if err != nil {
		return Diff{}, err
	}

	fromMeta, err := m.store.LoadMetadata(m.sessionID, fromID)
	if err != nil {
		return Diff{}, err
	}
	toMeta, err := m.store.LoadMetadata(m.sessionID, toID)
	if err != nil {
		return Diff{}, err
	}

	var modified []ModifiedFile
	var added, deleted []string

	for path, toHash := range toHashes {
		fromHash, existed := fromHashes[path]
		if !existed {
			added = append(added, path)
			continue
		}
		if fromHash != toHash {
			additions, deletions := lineDelta(m, fromID, toID, path, fromHash, toHash)
			modified = append(modified, ModifiedFile{Path: path, Additions: additions, Deletions: deletions})
		}
	}
	for path := range fromHashes {
		if _, stillPresent := toHashes[path]; !stillPresent {
			deleted = append(deleted, path)
		}
	}

	return Diff{
		Modified:   modified,
		Added:      added,
		Deleted:    deleted,
		TokenDelta: toMeta.TotalTokens - fromMeta.TotalTokens,
	}, nil
}

func lineDelta(m *Manager, fromID, toID, path, fromHash, toHash string) (additions, deletions int) {
	fromFiles, err := m.store.LoadFileSnapshots(m.sessionID, fromID)
	if err != nil {
		return 0, 0
	}
	toFiles, err := m.store.LoadFileSnapshots(m.sessionID, toID)
	if err != nil {
		return 0, 0
	}
	additions = countLines(toFiles[path])
	deletions = countLines(fromFiles[path])
	return additions, deletions
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	return bytes.Count(content, []byte("\n")) + 1
}
