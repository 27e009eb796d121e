// Package jsonlstore reads the append-only line-JSON transcript files that
// back each session. It never writes; restoring and forking sessions is the
// Checkpoint Engine's job.
package jsonlstore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SyntheticMessageSpacing is the gap used to back-fill timestamps on
// transcript entries that predate timestamped logging. The exact value is
// not load-bearing; it is preserved as a named constant for compatibility
// with UIs that read the synthesized fields.
const SyntheticMessageSpacing = 5 * time.Second

const (
	caveatPrefix      = "Caveat: The messages below were generated by the user while running local commands"
	commandNameTag    = "<command-name>"
	commandStdoutTag  = "<local-command-stdout>"
)

// SessionFile describes one on-disk transcript.
type SessionFile struct {
	SessionID string
	Path      string
	ModTime   time.Time
}

// ListSessionFiles enumerates ".jsonl" children of dir; the file stem is the
// session id.
func ListSessionFiles(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []SessionFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SessionFile{
			SessionID: strings.TrimSuffix(entry.Name(), ".jsonl"),
			Path:      filepath.Join(dir, entry.Name()),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].SessionID < files[j].SessionID })
	return files, nil
}

type jsonlMessage struct {
	Role    *string `json:"role"`
	Content any     `json:"content"`
}

// Entry mirrors the recognized fields of one transcript line. Raw is not
// filled in by JSON decoding or by FirstUserMessage; unrecognized fields
// are dropped.
type Entry struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	Timestamp *string         `json:"timestamp,omitempty"`
	Message   *jsonlMessage   `json:"message,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// FirstUserMessage scans path top-to-bottom and returns the content and
// optional timestamp of the first non-synthetic user message: entries whose
// content begins with a command-sentinel tag, or that carry the embedded
// local-command caveat, are skipped.
func FirstUserMessage(path string) (content string, timestamp *string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Message == nil || entry.Message.Role == nil || *entry.Message.Role != "user" {
			continue
		}
		text, ok := stringContent(entry.Message.Content)
		if !ok {
			continue
		}
		if strings.Contains(text, caveatPrefix) {
			continue
		}
		if strings.HasPrefix(text, commandNameTag) || strings.HasPrefix(text, commandStdoutTag) {
			continue
		}
		return text, entry.Timestamp, nil
	}

	return "", nil, scanner.Err()
}

func stringContent(content any) (string, bool) {
	switch v := content.(type) {
	case string:
		return v, true
	default:
		return "", false
	}
}

// HistoryEntry is a loaded transcript line with a resolved timestamp field,
// synthesized when the original line lacked one.
type HistoryEntry struct {
	Raw       map[string]any
	Role      string
	Timestamp time.Time
	Synthetic bool
}

// LoadHistory streams every line of path, parsing into a generic map and
// back-filling missing timestamp fields ("sentAt" for user entries,
// "receivedAt" otherwise) so that entries lacking one are spaced
// SyntheticMessageSpacing apart, oldest-first, ending at the file's mtime.
func LoadHistory(path string) ([]HistoryEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		role, _ := raw["type"].(string)
		ts, has := resolveTimestamp(raw)
		entries = append(entries, HistoryEntry{
			Raw:       raw,
			Role:      role,
			Timestamp: ts,
			Synthetic: !has,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	backfillSyntheticTimestamps(entries, info.ModTime())

	for i := range entries {
		field := "receivedAt"
		if entries[i].Role == "user" {
			field = "sentAt"
		}
		if _, exists := entries[i].Raw[field]; !exists {
			entries[i].Raw[field] = entries[i].Timestamp.UTC().Format(time.RFC3339)
		}
	}

	return entries, nil
}

func resolveTimestamp(raw map[string]any) (time.Time, bool) {
	if v, ok := raw["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func backfillSyntheticTimestamps(entries []HistoryEntry, mtime time.Time) {
	missing := 0
	for _, e := range entries {
		if e.Synthetic {
			missing++
		}
	}
	if missing == 0 {
		return
	}

	// Synthetic entries are spaced SyntheticMessageSpacing apart, ending at
	// mtime; entries that already have a real timestamp are skipped and
	// neither move nor affect the synthetic sequence.
	next := mtime
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Synthetic {
			continue
		}
		entries[i].Timestamp = next
		next = next.Add(-SyntheticMessageSpacing)
	}
}
