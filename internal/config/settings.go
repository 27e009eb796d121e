// Package config persists the workbench's ambient settings files under
// <home>/.claude: settings.json, execution_config.json, and the legacy
// providers.json preset list. hidden_projects.json is owned by
// internal/registry. SaveSettings reads settings.json fresh before merging
// so unrelated keys written by others survive; SaveExecutionConfig and
// SaveProviders do not read or merge, they replace the whole file with the
// value given.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// Settings mirrors settings.json. Env and ApiKeyHelper are recognized;
// Extra preserves every other top-level key verbatim across read-modify-
// write cycles.
type Settings struct {
	Env          map[string]string `json:"env,omitempty"`
	APIKeyHelper string            `json:"apiKeyHelper,omitempty"`
	Extra        map[string]any    `json:"-"`
}

// MarshalJSON flattens Extra alongside the recognized fields.
func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Env != nil {
		out["env"] = s.Env
	}
	if s.APIKeyHelper != "" {
		out["apiKeyHelper"] = s.APIKeyHelper
	}
	return json.Marshal(out)
}

// UnmarshalJSON recognizes "env" and "apiKeyHelper"; every other key is
// preserved in Extra.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Extra = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "env":
			envBytes, _ := json.Marshal(v)
			_ = json.Unmarshal(envBytes, &s.Env)
		case "apiKeyHelper":
			if str, ok := v.(string); ok {
				s.APIKeyHelper = str
			}
		default:
			s.Extra[k] = v
		}
	}
	return nil
}

// ExecutionConfig mirrors execution_config.json.
type ExecutionConfig struct {
	DefaultModel     string   `json:"default_model,omitempty"`
	DefaultTimeoutMs int      `json:"default_timeout_ms,omitempty"`
	AllowedTools     []string `json:"allowed_tools,omitempty"`
	DisallowedTools  []string `json:"disallowed_tools,omitempty"`
	PermissionMode   string   `json:"permission_mode,omitempty"`
}

// ProviderPreset is one legacy providers.json entry, still read and written
// for backward compatibility.
type ProviderPreset struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Store manages the three ambient JSON files rooted at dir (typically
// <home>/.claude).
type Store struct {
	dir string
	mu  sync.Mutex
}

// New constructs a Store rooted at dir. dir is created if it does not
// exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wkerr.IO("config.store.new.mkdir", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return wkerr.Parse("config.store.marshal", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return wkerr.IO("config.store.write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return wkerr.IO("config.store.rename", err)
	}
	return nil
}

// LoadSettings reads settings.json, returning an empty Settings if it does
// not yet exist.
func (s *Store) LoadSettings() (Settings, error) {
	var out Settings
	data, err := os.ReadFile(s.path("settings.json"))
	if os.IsNotExist(err) {
		out.Extra = map[string]any{}
		return out, nil
	}
	if err != nil {
		return out, wkerr.IO("config.store.load_settings", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		// A corrupt settings file is not fatal: the caller's next write
		// overwrites with only the new keys, preserving nothing of the
		// unparseable original, and a warning should be logged by the
		// caller.
		return Settings{Extra: map[string]any{}}, wkerr.Parse("config.store.load_settings.unmarshal", err)
	}
	return out, nil
}

// SaveSettings re-reads the file, merges patch's recognized fields and
// Extra keys over it, and writes atomically.
func (s *Store) SaveSettings(patch Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.LoadSettings()
	if err != nil {
		current = Settings{Extra: map[string]any{}}
	}

	if patch.Env != nil {
		current.Env = patch.Env
	}
	if patch.APIKeyHelper != "" {
		current.APIKeyHelper = patch.APIKeyHelper
	}
	for k, v := range patch.Extra {
		if current.Extra == nil {
			current.Extra = map[string]any{}
		}
		current.Extra[k] = v
	}

	return atomicWriteJSON(s.path("settings.json"), current)
}

// LoadExecutionConfig reads execution_config.json, returning zero-value
// defaults if absent.
func (s *Store) LoadExecutionConfig() (ExecutionConfig, error) {
	var cfg ExecutionConfig
	data, err := os.ReadFile(s.path("execution_config.json"))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, wkerr.IO("config.store.load_execution_config", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, wkerr.Parse("config.store.load_execution_config.unmarshal", err)
	}
	return cfg, nil
}

// SaveExecutionConfig overwrites execution_config.json atomically.
func (s *Store) SaveExecutionConfig(cfg ExecutionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWriteJSON(s.path("execution_config.json"), cfg)
}

// LoadProviders reads the legacy providers.json array.
func (s *Store) LoadProviders() ([]ProviderPreset, error) {
	var presets []ProviderPreset
	data, err := os.ReadFile(s.path("providers.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wkerr.IO("config.store.load_providers", err)
	}
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, wkerr.Parse("config.store.load_providers.unmarshal", err)
	}
	return presets, nil
}

// SaveProviders overwrites providers.json atomically.
func (s *Store) SaveProviders(presets []ProviderPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWriteJSON(s.path("providers.json"), presets)
}
