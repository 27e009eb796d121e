// Package checkpoint tracks a session's conversation messages and modified
// working-tree files, persists immutable snapshots of both, and supports
// restoring, forking, diffing, and garbage-collecting them.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
	"github.com/rcourtman/workbench-core/internal/checkpoint/storage"
)

// RestoreMode selects what a restore operation writes back.
type RestoreMode int

const (
	ConversationOnly RestoreMode = iota
	CodeOnly
	Both
)

// AutoStrategy selects when a Manager auto-triggers a checkpoint.
type AutoStrategy int

const (
	Manual AutoStrategy = iota
	PerPrompt
	PerToolUse
	Smart
)

// Settings configures a Manager's auto-checkpoint behavior.
type Settings struct {
	Auto     bool
	Strategy AutoStrategy
}

// DefaultSettings matches the conservative default: auto-checkpointing off.
func DefaultSettings() Settings {
	return Settings{Auto: false, Strategy: Manual}
}

// Result is returned from CreateCheckpoint.
type Result struct {
	Checkpoint storage.Metadata
}

// TimelineEntry describes one checkpoint in a session's lineage, in
// creation order.
type TimelineEntry struct {
	Metadata storage.Metadata
	IsHead   bool
}

// Diff is the result of comparing two checkpoints' file-snapshot sets.
type Diff struct {
	Modified   []ModifiedFile
	Added      []string
	Deleted    []string
	TokenDelta int
}

// ModifiedFile describes a path whose content hash changed between two
// checkpoints. UnifiedText is optional and may be left empty; it is not
// required by the diff invariant.
type ModifiedFile struct {
	Path        string
	Additions   int
	Deletions   int
	UnifiedText string
}

func newCheckpointID() string {
	return uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
