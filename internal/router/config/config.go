// Package config persists the router's integrated configuration document
// (providers, static role routes, and an ordered dynamic rule list) and
// answers "which model handles this request text?".
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// Provider is one configured model provider.
type Provider struct {
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
	Models   []string `json:"models"`
	APIKey   string   `json:"api_key,omitempty"`
}

// StaticRoutes maps the fixed set of routing roles to "provider,model"
// strings.
type StaticRoutes struct {
	Default     string `json:"default"`
	Background  string `json:"background"`
	Think       string `json:"think"`
	LongContext string `json:"long_context"`
	Coding      string `json:"coding"`
	Analysis    string `json:"analysis"`
}

// DynamicRule is one keyword-triggered override, evaluated in descending
// Priority order, ties broken by slice position (insertion order).
type DynamicRule struct {
	ID       string   `json:"id"`
	Keywords []string `json:"keywords"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
}

// RouterData groups the router-owned sub-documents.
type RouterData struct {
	Providers      []Provider        `json:"providers"`
	RoutingRules   StaticRoutes      `json:"routing_rules"`
	DynamicRules   []DynamicRule     `json:"dynamic_rules"`
	GlobalSettings map[string]any    `json:"global_settings"`
}

// Document is the full integrated JSON config persisted to disk.
type Document struct {
	Router      map[string]any `json:"router"`
	RouterData  RouterData     `json:"router_data"`
	Integration map[string]any `json:"integration"`
}

// Store persists a Document at path with read-modify-write, atomic-rename
// semantics.
type Store struct {
	path string
	mu   sync.Mutex
	doc  Document
}

// Load reads path, or starts from an empty Document if it does not exist.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = Document{Router: map[string]any{}, Integration: map[string]any{}}
		return s, nil
	}
	if err != nil {
		return nil, wkerr.IO("router.config.load", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, wkerr.Parse("router.config.load.unmarshal", err)
	}
	sortDynamicRules(s.doc.RouterData.DynamicRules)
	return s, nil
}

// Document returns a copy of the current in-memory document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return wkerr.Parse("router.config.persist.marshal", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return wkerr.IO("router.config.persist.mkdir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return wkerr.IO("router.config.persist.write", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return wkerr.IO("router.config.persist.rename", err)
	}
	return nil
}

func sortDynamicRules(rules []DynamicRule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
}

// AddDynamicRule appends rule, re-sorts by descending priority (stable, so
// equal-priority insertion order is preserved), and persists atomically.
func (s *Store) AddDynamicRule(rule DynamicRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.RouterData.DynamicRules = append(s.doc.RouterData.DynamicRules, rule)
	sortDynamicRules(s.doc.RouterData.DynamicRules)
	return s.persistLocked()
}

// UpdateDynamicRule replaces the rule matching id and re-sorts.
func (s *Store) UpdateDynamicRule(id string, updated DynamicRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.doc.RouterData.DynamicRules
	found := false
	for i, r := range rules {
		if r.ID == id {
			updated.ID = id
			rules[i] = updated
			found = true
			break
		}
	}
	if !found {
		return wkerr.Config("router.config.update_dynamic_rule.not_found", nil)
	}
	sortDynamicRules(rules)
	return s.persistLocked()
}

// DeleteDynamicRule removes the rule matching id.
func (s *Store) DeleteDynamicRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.doc.RouterData.DynamicRules
	out := rules[:0]
	for _, r := range rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.doc.RouterData.DynamicRules = out
	return s.persistLocked()
}

// MatchDynamicRule returns the first enabled rule (in descending-priority,
// then insertion order) whose keyword set case-insensitively matches a
// substring of text. No match returns (_, false); the caller falls back to
// the static "default" route.
func (s *Store) MatchDynamicRule(text string) (DynamicRule, bool) {
	s.mu.Lock()
	rules := append([]DynamicRule(nil), s.doc.RouterData.DynamicRules...)
	s.mu.Unlock()

	normalized := strings.ToLower(text)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(keyword)) {
				return rule, true
			}
		}
	}
	return DynamicRule{}, false
}

// SyncFromWorkbenchProviders overwrites the router's provider list from a
// workbench-native provider name list, in priority order:
// priority = 10 - min(index, 9), enabled = true, empty Models (discovered
// separately).
func (s *Store) SyncFromWorkbenchProviders(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	providers := make([]Provider, 0, len(names))
	for i, name := range names {
		idx := i
		if idx > 9 {
			idx = 9
		}
		providers = append(providers, Provider{
			Name:     name,
			Priority: 10 - idx,
			Enabled:  true,
			Models:   nil,
		})
	}
	s.doc.RouterData.Providers = providers
	return s.persistLocked()
}
