package checkpoint

import (
	"sync"

	"github.com/rcourtman/workbench-core/internal/checkpoint/storage"
	"golang.org/x/sync/singleflight"
)

// ManagerRegistry lazily creates and caches one Manager per session.
// Concurrent first-requests for the same session collapse onto a single
// construction via singleflight; already-cached lookups take the read lock
// only.
type ManagerRegistry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
	group    singleflight.Group
}

// NewManagerRegistry constructs an empty registry.
func NewManagerRegistry() *ManagerRegistry {
	return &ManagerRegistry{managers: make(map[string]*Manager)}
}

// Get returns the cached Manager for sessionID, constructing it via factory
// on first access. Concurrent calls for the same sessionID share one
// construction.
func (r *ManagerRegistry) Get(sessionID string, factory func() *Manager) *Manager {
	r.mu.RLock()
	if m, ok := r.managers[sessionID]; ok {
		r.mu.RUnlock()
		return m
	}
	r.mu.RUnlock()

	v, _, _ := r.group.Do(sessionID, func() (interface{}, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := r.managers[sessionID]; ok {
			return m, nil
		}
		m := factory()
		r.managers[sessionID] = m
		return m, nil
	})
	return v.(*Manager)
}

// GetOrNewFilesystem is a convenience wrapper around Get for the common
// case of a filesystem-backed Store rooted at projectDir.
func (r *ManagerRegistry) GetOrNewFilesystem(projectID, sessionID, jsonlPath, projectDir string) *Manager {
	return r.Get(sessionID, func() *Manager {
		return NewManager(projectID, sessionID, jsonlPath, storage.New(projectDir))
	})
}

// Evict drops the cached Manager for sessionID, if any (e.g. after the
// session transcript is deleted).
func (r *ManagerRegistry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, sessionID)
}
