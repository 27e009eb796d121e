// Package registry maintains the catalog of known projects: each one a
// directory under the Agent CLI's project-data root, named by the path
// codec, holding zero or more session transcripts. Registry also tracks a
// soft-hidden set of projects that remain on disk but are excluded from
// listings until restored.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rcourtman/workbench-core/internal/jsonlstore"
	"github.com/rcourtman/workbench-core/internal/pathcodec"
)

// Project is a single catalog entry, resolved to a real filesystem path
// whenever possible.
type Project struct {
	EncodedName    string
	Path           string
	PathSource     string // "recovered" (transcript cwd) or "decoded" (DecodeFallback)
	SessionIDs     []string
	LatestActivity time.Time
}

// Registry scans a project-data root and tracks hidden-project state,
// persisted in hiddenPath as a JSON array.
type Registry struct {
	dataRoot   string
	hiddenPath string

	mu     sync.Mutex
	hidden map[string]bool
}

// New constructs a Registry rooted at dataRoot, loading its hidden-project
// list from hiddenPath (created empty on first use).
func New(dataRoot, hiddenPath string) (*Registry, error) {
	r := &Registry{
		dataRoot:   dataRoot,
		hiddenPath: hiddenPath,
		hidden:     make(map[string]bool),
	}
	if err := r.loadHidden(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadHidden() error {
	data, err := os.ReadFile(r.hiddenPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.hidden[n] = true
	}
	return nil
}

func (r *Registry) saveHidden() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.hidden))
	for n := range r.hidden {
		names = append(names, n)
	}
	r.mu.Unlock()
	sort.Strings(names)

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.hiddenPath, data)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ListProjects enumerates every non-hidden project directory under the data
// root, recovering each one's real path via pathcodec, bucketing directories
// that normalize to the same path into a single merged project, and sorting
// by latest activity descending.
func (r *Registry) ListProjects() ([]Project, error) {
	return r.listProjects(false)
}

// ListHiddenProjects enumerates only the soft-hidden projects, self-healing
// the hidden list first: any hidden id whose directory no longer exists,
// directly or via normalized-path match against a surviving directory, is
// dropped and the hidden-list file is rewritten.
func (r *Registry) ListHiddenProjects() ([]Project, error) {
	if err := r.healHidden(); err != nil {
		return nil, err
	}
	return r.listProjects(true)
}

func (r *Registry) listProjects(wantHidden bool) ([]Project, error) {
	entries, err := os.ReadDir(r.dataRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	r.mu.Lock()
	hiddenSnapshot := make(map[string]bool, len(r.hidden))
	for k, v := range r.hidden {
		hiddenSnapshot[k] = v
	}
	r.mu.Unlock()

	buckets := make(map[string][]Project)
	var bucketOrder []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if hiddenSnapshot[name] != wantHidden {
			continue
		}
		p := r.resolveProject(name)
		key := pathcodec.Normalize(p.Path)
		if _, seen := buckets[key]; !seen {
			bucketOrder = append(bucketOrder, key)
		}
		buckets[key] = append(buckets[key], p)
	}

	out := make([]Project, 0, len(bucketOrder))
	for _, key := range bucketOrder {
		out = append(out, mergeBucket(buckets[key]))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LatestActivity.After(out[j].LatestActivity) })
	return out, nil
}

// mergeBucket collapses every directory whose path normalizes to the same
// value into one Project: session ids are unioned and deduplicated, the
// latest activity is the greatest of the bucket's, and the canonical id is
// chosen by the shortest-id / absence-of-"--" / presence-of-upper-case rule.
func mergeBucket(candidates []Project) Project {
	if len(candidates) == 1 {
		return candidates[0]
	}

	sessionSet := make(map[string]bool)
	merged := candidates[0]
	for _, c := range candidates {
		for _, id := range c.SessionIDs {
			sessionSet[id] = true
		}
		if c.LatestActivity.After(merged.LatestActivity) {
			merged.Path = c.Path
			merged.PathSource = c.PathSource
			merged.LatestActivity = c.LatestActivity
		}
		if betterCanonicalID(c.EncodedName, merged.EncodedName) {
			merged.EncodedName = c.EncodedName
		}
	}

	sessions := make([]string, 0, len(sessionSet))
	for id := range sessionSet {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	merged.SessionIDs = sessions
	return merged
}

// betterCanonicalID reports whether candidate should replace current as the
// bucket's canonical id: shortest id wins; tiebreak by absence of "--";
// tiebreak by presence of upper-case.
func betterCanonicalID(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	candidateDD, currentDD := strings.Contains(candidate, "--"), strings.Contains(current, "--")
	if candidateDD != currentDD {
		return !candidateDD
	}
	candidateUpper, currentUpper := hasUpper(candidate), hasUpper(current)
	if candidateUpper != currentUpper {
		return candidateUpper
	}
	return false
}

func hasUpper(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func (r *Registry) resolveProject(encodedName string) Project {
	dir := filepath.Join(r.dataRoot, encodedName)

	path, source := "", "fallback"
	if recovered, err := pathcodec.RecoverFromJSONL(dir); err == nil {
		path, source = recovered, "recovered"
	} else {
		path, source = pathcodec.DecodeFallback(encodedName), "decoded"
	}

	ids, latest := sessionIDsAndActivity(dir)

	return Project{
		EncodedName:    encodedName,
		Path:           path,
		PathSource:     source,
		SessionIDs:     ids,
		LatestActivity: latest,
	}
}

// sessionIDsAndActivity enumerates dir's session transcripts and computes
// latest_activity = max(dir mtime, max(jsonl mtime)). The directory's mtime
// stands in for its creation time: the filesystem APIs available in the
// standard library expose no portable ctime/birthtime.
func sessionIDsAndActivity(dir string) ([]string, time.Time) {
	var latest time.Time
	if info, err := os.Stat(dir); err == nil {
		latest = info.ModTime()
	}

	files, err := jsonlstore.ListSessionFiles(dir)
	if err != nil {
		return nil, latest
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.SessionID)
		if f.ModTime.After(latest) {
			latest = f.ModTime
		}
	}
	sort.Strings(ids)
	return ids, latest
}

// DeleteProject soft-hides encodedName: it remains on disk but is excluded
// from ListProjects until RestoreProject is called.
func (r *Registry) DeleteProject(encodedName string) error {
	r.mu.Lock()
	r.hidden[encodedName] = true
	r.mu.Unlock()
	return r.saveHidden()
}

// RestoreProject un-hides a previously soft-deleted project.
func (r *Registry) RestoreProject(encodedName string) error {
	r.mu.Lock()
	delete(r.hidden, encodedName)
	r.mu.Unlock()
	return r.saveHidden()
}

// DeleteProjectPermanently locates the true on-disk directory for
// encodedName by normalized-path match (the literal id may not be the
// directory a merged listing actually presented), removes it, and removes
// both the literal id and the resolved id from the hidden list. This cannot
// be undone.
func (r *Registry) DeleteProjectPermanently(encodedName string) error {
	entries, err := os.ReadDir(r.dataRoot)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var targetNorm string
	if info, statErr := os.Stat(filepath.Join(r.dataRoot, encodedName)); statErr == nil && info.IsDir() {
		targetNorm = pathcodec.Normalize(r.resolveProject(encodedName).Path)
	} else {
		targetNorm = pathcodec.Normalize(pathcodec.DecodeFallback(encodedName))
	}

	resolvedName := encodedName
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if pathcodec.Normalize(r.resolveProject(e.Name()).Path) == targetNorm {
			resolvedName = e.Name()
			break
		}
	}

	if err := os.RemoveAll(filepath.Join(r.dataRoot, resolvedName)); err != nil {
		return err
	}

	r.mu.Lock()
	_, literalWasHidden := r.hidden[encodedName]
	_, resolvedWasHidden := r.hidden[resolvedName]
	delete(r.hidden, encodedName)
	delete(r.hidden, resolvedName)
	r.mu.Unlock()

	if literalWasHidden || resolvedWasHidden {
		return r.saveHidden()
	}
	return nil
}

// healHidden drops hidden ids whose directory no longer exists, directly or
// via normalized-path match against a surviving directory, and rewrites the
// hidden-list file if anything was pruned.
func (r *Registry) healHidden() error {
	entries, err := os.ReadDir(r.dataRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	existing := make(map[string]bool, len(entries))
	normalizedExisting := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		existing[e.Name()] = true
		normalizedExisting = append(normalizedExisting, pathcodec.Normalize(r.resolveProject(e.Name()).Path))
	}

	r.mu.Lock()
	var stale []string
	for id := range r.hidden {
		if existing[id] {
			continue
		}
		norm := pathcodec.Normalize(pathcodec.DecodeFallback(id))
		found := false
		for _, n := range normalizedExisting {
			if n == norm {
				found = true
				break
			}
		}
		if !found {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(r.hidden, id)
	}
	changed := len(stale) > 0
	r.mu.Unlock()

	if changed {
		return r.saveHidden()
	}
	return nil
}
