// Package procreg is the in-memory table of live Agent CLI child processes,
// keyed first by a monotonic run id assigned at spawn time and, once the
// child reveals it, by session id.
package procreg

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunningProcess is a point-in-time snapshot of a supervised child.
type RunningProcess struct {
	RunID       int64
	SessionID   string
	PID         int
	ProjectPath string
	Prompt      string
	Model       string
	StartedAt   time.Time
}

type entry struct {
	proc       RunningProcess
	liveOutput []string
	killFunc   func()
}

// Registry is the process-wide live-process table. At most one entry exists
// per session id at any time; entries are held only in memory and vanish on
// unregister.
type Registry struct {
	mu       sync.RWMutex
	byRun    map[int64]*entry
	bySess   map[string]int64
	runIDSeq atomic.Int64
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byRun:  make(map[int64]*entry),
		bySess: make(map[string]int64),
	}
}

// NextRunID returns the next monotonically increasing run id without
// registering anything; callers hold it until the session id is known.
func (r *Registry) NextRunID() int64 {
	return r.runIDSeq.Add(1)
}

// Register adds a process under runID, pre-assigned via NextRunID. killFunc
// is invoked by Kill; it may be nil if no kill is wired yet.
func (r *Registry) Register(runID int64, sessionID string, pid int, projectPath, prompt, model string, killFunc func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingRun, ok := r.bySess[sessionID]; ok {
		delete(r.byRun, existingRun)
	}

	r.byRun[runID] = &entry{
		proc: RunningProcess{
			RunID:       runID,
			SessionID:   sessionID,
			PID:         pid,
			ProjectPath: projectPath,
			Prompt:      prompt,
			Model:       model,
			StartedAt:   time.Now(),
		},
		killFunc: killFunc,
	}
	if sessionID != "" {
		r.bySess[sessionID] = runID
	}
}

// SetKillFunc attaches (or replaces) the kill callback for a run, used when
// the supervisor learns the child handle after NextRunID/Register race.
func (r *Registry) SetKillFunc(runID int64, killFunc func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRun[runID]; ok {
		e.killFunc = killFunc
	}
}

// Unregister removes a run's entry, wherever it is keyed.
func (r *Registry) Unregister(runID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byRun[runID]
	if !ok {
		return
	}
	delete(r.byRun, runID)
	if e.proc.SessionID != "" {
		if r.bySess[e.proc.SessionID] == runID {
			delete(r.bySess, e.proc.SessionID)
		}
	}
}

// Kill invokes the registered kill callback for runID, if present, and
// reports whether a callback was invoked; an entry registered with a nil
// callback counts as not found. This is tier 1 of the Agent
// Supervisor's cancellation cascade.
func (r *Registry) Kill(runID int64) bool {
	r.mu.RLock()
	e, ok := r.byRun[runID]
	r.mu.RUnlock()
	if !ok || e.killFunc == nil {
		return false
	}
	go e.killFunc()
	return true
}

// KillBySession resolves a session id to its run id and kills it.
func (r *Registry) KillBySession(sessionID string) bool {
	r.mu.RLock()
	runID, ok := r.bySess[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.Kill(runID)
}

// AppendLiveOutput records a raw output line for the given run's tail
// buffer.
func (r *Registry) AppendLiveOutput(runID int64, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRun[runID]; ok {
		e.liveOutput = append(e.liveOutput, line)
	}
}

// LiveOutput returns a copy of the accumulated output lines for runID.
func (r *Registry) LiveOutput(runID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byRun[runID]
	if !ok {
		return nil
	}
	out := make([]string, len(e.liveOutput))
	copy(out, e.liveOutput)
	return out
}

// List returns a snapshot of all currently-registered processes.
func (r *Registry) List() []RunningProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunningProcess, 0, len(r.byRun))
	for _, e := range r.byRun {
		out = append(out, e.proc)
	}
	return out
}

// BySession looks up the running process registered for sessionID.
func (r *Registry) BySession(sessionID string) (RunningProcess, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runID, ok := r.bySess[sessionID]
	if !ok {
		return RunningProcess{}, false
	}
	e := r.byRun[runID]
	return e.proc, true
}
