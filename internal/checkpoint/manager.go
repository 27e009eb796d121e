package checkpoint

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rcourtman/workbench-core/internal/checkpoint/storage"
	"github.com/rcourtman/workbench-core/internal/jsonlstore"
	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// FileSnapshotSource supplies the current content of working-tree files the
// caller considers "tracked" (typically: files touched by tool-use frames
// since the last checkpoint). The Manager does not discover files on its
// own; it is handed them at CreateCheckpoint time.
type FileSnapshotSource func() (map[string][]byte, error)

// Manager owns one session's tracked-message vector and checkpoint
// lineage. Operations that touch the tracked-message vector, settings or
// head checkpoint are serialized by mu; listing, diffing and cleanup read
// the store without taking mu. Separate Managers (one per session) run
// independently.
type Manager struct {
	mu sync.Mutex

	projectID   string
	sessionID   string
	jsonlPath   string
	store       *storage.Store
	settings    Settings
	bulkLoaded  bool
	tracked     []string
	headCheckpointID string
}

// NewManager constructs a Manager for sessionID. jsonlPath is the path to
// the session's on-disk transcript, used for the first-call bulk load.
func NewManager(projectID, sessionID, jsonlPath string, store *storage.Store) *Manager {
	return &Manager{
		projectID: projectID,
		sessionID: sessionID,
		jsonlPath: jsonlPath,
		store:     store,
		settings:  DefaultSettings(),
	}
}

// ensureBulkLoaded bulk-loads the JSONL transcript into the tracked-message
// vector on first use, bounded by messageIndex if >= 0.
func (m *Manager) ensureBulkLoaded(messageIndex int) error {
	if m.bulkLoaded {
		return nil
	}
	entries, err := jsonlstore.LoadHistory(m.jsonlPath)
	if err != nil {
		return wkerr.IO("checkpoint.manager.bulk_load", err)
	}

	for i, e := range entries {
		if messageIndex >= 0 && i > messageIndex {
			break
		}
		raw, err := marshalRaw(e.Raw)
		if err != nil {
			continue
		}
		m.tracked = append(m.tracked, raw)
	}
	m.bulkLoaded = true
	return nil
}

// TrackMessage appends one raw JSONL line to the tracked-message vector.
// The vector is append-only and ordered by arrival.
func (m *Manager) TrackMessage(rawLine string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkLoaded = true
	m.tracked = append(m.tracked, rawLine)
}

// TrackSessionMessages appends a batch of raw lines, preserving the
// caller's order.
func (m *Manager) TrackSessionMessages(lines []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkLoaded = true
	m.tracked = append(m.tracked, lines...)
}

// ShouldAutoCheckpoint reports whether msg (a raw JSONL line) should trigger
// an automatic checkpoint under the Manager's configured strategy.
func (m *Manager) ShouldAutoCheckpoint(msg string) bool {
	m.mu.Lock()
	strategy := m.settings.Strategy
	auto := m.settings.Auto
	m.mu.Unlock()

	if !auto {
		return false
	}

	isUserPrompt := strings.Contains(msg, `"type":"user"`)
	isToolUse := strings.Contains(msg, `"type":"tool_use"`) || strings.Contains(msg, `"tool_use"`)
	mutatesFiles := isToolUse && (strings.Contains(msg, `"Edit"`) || strings.Contains(msg, `"Write"`) || strings.Contains(msg, `"name":"str_replace"`))

	switch strategy {
	case Manual:
		return false
	case PerPrompt:
		return isUserPrompt
	case PerToolUse:
		return isToolUse
	case Smart:
		return isUserPrompt || mutatesFiles
	default:
		return false
	}
}

// UpdateSettings replaces the Manager's auto-checkpoint configuration.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// CreateCheckpoint snapshots the current tracked-message vector plus
// whatever files source yields, and persists it. On a Manager's first
// invocation it bulk-loads the transcript (bounded by messageIndex, or
// unbounded if negative) before snapshotting.
func (m *Manager) CreateCheckpoint(description string, parentID string, messageIndex int, source FileSnapshotSource) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureBulkLoaded(messageIndex); err != nil {
		return Result{}, err
	}

	var files map[string][]byte
	if source != nil {
		var err error
		files, err = source()
		if err != nil {
			return Result{}, wkerr.IO("checkpoint.manager.create.file_source", err)
		}
	}

	meta := storage.Metadata{
		ID:          newCheckpointID(),
		ProjectID:   m.projectID,
		SessionID:   m.sessionID,
		ParentID:    parentID,
		CreatedAt:   nowUTC(),
		Description: description,
		TotalTokens: sumTokens(m.tracked),
	}

	if err := m.store.Save(meta, append([]string(nil), m.tracked...), files); err != nil {
		return Result{}, err
	}

	m.headCheckpointID = meta.ID
	return Result{Checkpoint: meta}, nil
}

// ListCheckpoints returns every checkpoint persisted for this session, in
// creation order.
func (m *Manager) ListCheckpoints() ([]storage.Metadata, error) {
	return m.store.ListCheckpoints(m.sessionID)
}

// GetTimeline returns the session's checkpoint lineage with the current
// head flagged.
func (m *Manager) GetTimeline() ([]TimelineEntry, error) {
	metas, err := m.store.ListCheckpoints(m.sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	head := m.headCheckpointID
	m.mu.Unlock()

	out := make([]TimelineEntry, len(metas))
	for i, meta := range metas {
		out[i] = TimelineEntry{Metadata: meta, IsHead: meta.ID == head}
	}
	return out, nil
}

// usageBearingLine is the same top-level "usage" shape the Agent Supervisor
// parses off stdout frames: input_tokens + output_tokens, summed across
// every tracked line that carries one.
type usageBearingLine struct {
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// sumTokens totals the input+output tokens reported across every tracked
// raw JSONL line, matching the running total_tokens the source keeps per
// session as each usage-bearing frame arrives.
func sumTokens(lines []string) int {
	total := 0
	for _, line := range lines {
		var u usageBearingLine
		if err := json.Unmarshal([]byte(line), &u); err != nil || u.Usage == nil {
			continue
		}
		total += u.Usage.InputTokens + u.Usage.OutputTokens
	}
	return total
}

func marshalRaw(raw map[string]any) (string, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
