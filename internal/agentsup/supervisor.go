// Package agentsup spawns the supervised Agent CLI as a child process,
// streams its line-JSONL stdout/stderr, correlates frames with the session
// id the child chooses for itself, and drives the per-run state machine
// Spawned -> SessionAssigned -> Running -> Exited.
package agentsup

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rcourtman/workbench-core/internal/eventbus"
	"github.com/rcourtman/workbench-core/internal/procreg"
	"github.com/rcourtman/workbench-core/internal/wkerr"
	"github.com/rs/zerolog"
)

// State is a run's position in the Spawned -> SessionAssigned -> Running ->
// Exited state machine.
type State int

const (
	StateSpawned State = iota
	StateSessionAssigned
	StateRunning
	StateExited
)

// PermissionConfig selects how the child's tool permissions are presented
// on argv. AllowedTools, DisallowedTools and PermissionMode may be combined;
// SkipPermissions (the legacy flag) is mutually exclusive with all three.
type PermissionConfig struct {
	AllowedTools    []string
	DisallowedTools []string
	PermissionMode  string
	SkipPermissions bool
}

// SpawnRequest describes one child invocation.
type SpawnRequest struct {
	Binary      string
	Prompt      string
	Model       string
	ProjectPath string
	Permission  PermissionConfig
	Verbose     bool
	TimeoutSec  int
	MaxTokens   int
	Continue    bool
	ResumeID    string
}

// UsageRecord is persisted once per usage-bearing stdout frame.
type UsageRecord struct {
	SessionID             string
	Timestamp             time.Time
	Model                 string
	InputTokens           int
	OutputTokens          int
	CacheCreationInputTok int
	CacheReadInputTok     int
	ProjectPath           string
}

// UsageRecorder persists a UsageRecord; callers inject their own sink (a
// SQLite table in the original system, a no-op in tests).
type UsageRecorder func(UsageRecord)

// Handle is the caller's view of one in-flight or completed run.
type Handle struct {
	RunID int64

	sup        *Supervisor
	cmd        *exec.Cmd
	prompt     string
	model      string
	mu         sync.Mutex
	state      State
	sessionID  string
	cancelOnce sync.Once
}

// SessionID returns the session id once known, or "" before SessionAssigned.
func (h *Handle) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// State returns the run's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Cancel runs the three-tier cancellation cascade and always emits a
// cancellation event, whether or not any tier actually found a live
// process. It returns immediately; the OS-level fallback runs in O(1) wall
// time modulo signal delivery.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		go h.sup.cancel(h)
	})
}

// Supervisor owns the current-process slot and coordinates with the
// Process Registry and event hub.
type Supervisor struct {
	log     zerolog.Logger
	procs   *procreg.Registry
	hub     *eventbus.Hub
	recUsage UsageRecorder

	slotMu  sync.Mutex
	current *Handle
}

// New constructs a Supervisor.
func New(log zerolog.Logger, procs *procreg.Registry, hub *eventbus.Hub, recorder UsageRecorder) *Supervisor {
	if recorder == nil {
		recorder = func(UsageRecord) {}
	}
	return &Supervisor{log: log, procs: procs, hub: hub, recUsage: recorder}
}

var nvmEnvPrefixes = []string{"NVM_", "HOMEBREW_"}
var passthroughVars = []string{"PATH", "HOME", "USER", "SHELL", "LANG", "LC_ALL", "LC_CTYPE", "NODE_PATH", "API_TIMEOUT_MS"}

func inheritedEnv(binary, model string) []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if contains(passthroughVars, name) ||
			strings.HasPrefix(name, "ANTHROPIC_") ||
			strings.HasPrefix(name, "CLAUDE_CODE_") ||
			hasAnyPrefix(name, nvmEnvPrefixes) {
			out = append(out, kv)
		}
	}
	out = append(out, "ANTHROPIC_MODEL="+model)

	if nvmDir := nvmNodeDir(binary); nvmDir != "" {
		for i, kv := range out {
			if strings.HasPrefix(kv, "PATH=") {
				out[i] = "PATH=" + nvmDir + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
				break
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func nvmNodeDir(binary string) string {
	dir := filepath.Dir(binary)
	if strings.Contains(dir, filepath.Join(".nvm", "versions", "node")) {
		return dir
	}
	return ""
}

// BuildArgv assembles the child's argument vector per the external Agent
// CLI's documented flags. SkipPermissions is mutually exclusive with the
// other three permission fields; if set, none of the other flags are
// emitted.
func BuildArgv(req SpawnRequest) []string {
	var argv []string

	if req.ResumeID != "" {
		argv = append(argv, "--resume", req.ResumeID)
	}

	argv = append(argv, req.Prompt)

	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	argv = append(argv, "--output-format", "stream-json")
	if req.Verbose {
		argv = append(argv, "--verbose")
	}
	if req.TimeoutSec > 0 {
		argv = append(argv, "--timeout", strconv.Itoa(req.TimeoutSec))
	}
	if req.MaxTokens > 0 {
		argv = append(argv, "--max-tokens", strconv.Itoa(req.MaxTokens))
	}

	switch {
	case req.Permission.SkipPermissions:
		argv = append(argv, "--dangerously-skip-permissions")
	default:
		if len(req.Permission.AllowedTools) > 0 {
			argv = append(argv, "--allowedTools", strings.Join(req.Permission.AllowedTools, ","))
		}
		if len(req.Permission.DisallowedTools) > 0 {
			argv = append(argv, "--disallowedTools", strings.Join(req.Permission.DisallowedTools, ","))
		}
		if req.Permission.PermissionMode != "" {
			argv = append(argv, "--permission-mode", req.Permission.PermissionMode)
		}
	}

	if req.Continue {
		argv = append(argv, "-c")
	}

	return argv
}

type initFrame struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

type usageFrame struct {
	Model string `json:"model"`
	Usage *struct {
		InputTokens             int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// Spawn launches the child described by req. It returns once the child has
// started (PID assigned); the remainder of the lifecycle runs in background
// goroutines that publish events on the Supervisor's hub.
func (s *Supervisor) Spawn(ctx context.Context, req SpawnRequest) (*Handle, error) {
	argv := BuildArgv(req)
	cmd := exec.CommandContext(ctx, req.Binary, argv...)
	cmd.Dir = req.ProjectPath
	cmd.Env = inheritedEnv(req.Binary, req.Model)
	configurePlatform(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wkerr.Process("agentsup.spawn.stdout_pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, wkerr.Process("agentsup.spawn.stderr_pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, wkerr.Process("agentsup.spawn.start", err)
	}

	runID := s.procs.NextRunID()
	h := &Handle{RunID: runID, sup: s, cmd: cmd, prompt: req.Prompt, model: req.Model, state: StateSpawned}

	s.occupySlot(h)

	var wg sync.WaitGroup
	wg.Add(2)
	go s.readLines(h, stdout, false, &wg)
	go s.readLines(h, stderr, true, &wg)

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		time.Sleep(100 * time.Millisecond)
		s.finish(h, req, waitErr)
	}()

	return h, nil
}

func (s *Supervisor) occupySlot(h *Handle) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.current != nil {
		go s.current.Cancel()
	}
	s.current = h
}

func (s *Supervisor) readLines(h *Handle, r io.Reader, isStderr bool, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		s.handleLine(h, line, isStderr)
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn().Err(err).Int64("run_id", h.RunID).Bool("stderr", isStderr).Msg("agentsup: reader terminated")
	}
}

func (s *Supervisor) handleLine(h *Handle, line string, isStderr bool) {
	h.mu.Lock()
	state := h.state
	sessionID := h.sessionID
	h.mu.Unlock()

	if state == StateSpawned || state == StateSessionAssigned {
		var init initFrame
		if err := json.Unmarshal([]byte(line), &init); err == nil && init.Type == "system" && init.Subtype == "init" && init.SessionID != "" {
			h.mu.Lock()
			h.sessionID = init.SessionID
			h.state = StateSessionAssigned
			h.mu.Unlock()
			sessionID = init.SessionID

			s.procs.Register(h.RunID, sessionID, h.cmd.Process.Pid, h.cmd.Dir, h.prompt, h.model, func() { _ = h.cmd.Process.Kill() })
			s.hub.Publish(eventbus.Event{Kind: eventbus.KindSessionState, SessionID: sessionID, Status: eventbus.StatusStarted, PID: h.cmd.Process.Pid, RunID: h.RunID})

			h.mu.Lock()
			h.state = StateRunning
			h.mu.Unlock()
		}
	}

	var usage usageFrame
	if err := json.Unmarshal([]byte(line), &usage); err == nil && usage.Usage != nil {
		s.recUsage(UsageRecord{
			SessionID:             sessionID,
			Timestamp:             time.Now(),
			Model:                 usage.Model,
			InputTokens:           usage.Usage.InputTokens,
			OutputTokens:          usage.Usage.OutputTokens,
			CacheCreationInputTok: usage.Usage.CacheCreationInputTokens,
			CacheReadInputTok:     usage.Usage.CacheReadInputTokens,
			ProjectPath:           h.cmd.Dir,
		})
	}

	s.procs.AppendLiveOutput(h.RunID, line)

	kind := eventbus.KindOutput
	if isStderr {
		kind = eventbus.KindError
	}
	s.hub.Publish(eventbus.Event{Kind: kind, SessionID: sessionID, Line: line, RunID: h.RunID})
}

func (s *Supervisor) finish(h *Handle, req SpawnRequest, waitErr error) {
	h.mu.Lock()
	h.state = StateExited
	sessionID := h.sessionID
	h.mu.Unlock()

	success := waitErr == nil

	s.hub.Publish(eventbus.Event{Kind: eventbus.KindComplete, SessionID: sessionID, Success: success, RunID: h.RunID})
	s.hub.Publish(eventbus.Event{Kind: eventbus.KindSessionState, SessionID: sessionID, Status: eventbus.StatusStopped, Success: success, RunID: h.RunID})

	s.procs.Unregister(h.RunID)

	s.slotMu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.slotMu.Unlock()
}

// cancel runs the three-tier cancellation cascade for h.
func (s *Supervisor) cancel(h *Handle) {
	found := s.procs.Kill(h.RunID)

	s.slotMu.Lock()
	if s.current == h {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
			found = true
		}
		s.current = nil
	}
	s.slotMu.Unlock()

	if !found {
		if err := osLevelKill(h.cmd); err == nil {
			found = true
		}
	}
	if !found {
		s.log.Warn().Int64("run_id", h.RunID).Msg("agentsup: cancel found no live process")
	}

	sessionID := h.SessionID()
	s.hub.Publish(eventbus.Event{Kind: eventbus.KindCancelled, SessionID: sessionID, Success: found, RunID: h.RunID})
}

func osLevelKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return wkerr.Process("agentsup.cancel.no_process", io.ErrClosedPipe)
	}
	if runtime.GOOS == "windows" {
		return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
	}
	return cmd.Process.Kill()
}
