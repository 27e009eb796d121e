package checkpoint

import "time"

const defaultMaxAgeDays = 30

// CleanupOldCheckpoints retains the keepCount most recently created
// checkpoints for this session and deletes the rest.
func (m *Manager) CleanupOldCheckpoints(keepCount int) (int, error) {
	metas, err := m.store.ListCheckpoints(m.sessionID)
	if err != nil {
		return 0, err
	}
	if len(metas) <= keepCount {
		return 0, nil
	}

	// ListCheckpoints returns ascending by CreatedAt; the oldest len-keep
	// entries are the ones to remove.
	toRemove := metas[:len(metas)-keepCount]
	removed := 0
	for _, meta := range toRemove {
		if err := m.store.Delete(m.sessionID, meta.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// CleanupOldCheckpointsByAge deletes any checkpoint strictly older than
// now-days. days defaults to 30 when <= 0.
func (m *Manager) CleanupOldCheckpointsByAge(days int) (int, error) {
	if days <= 0 {
		days = defaultMaxAgeDays
	}
	cutoff := nowUTC().Add(-time.Duration(days) * 24 * time.Hour)

	metas, err := m.store.ListCheckpoints(m.sessionID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, meta := range metas {
		if meta.CreatedAt.Before(cutoff) {
			if err := m.store.Delete(m.sessionID, meta.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
