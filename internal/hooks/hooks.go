// Package hooks runs the ordered per-event chain of user-configured shell
// hooks: PreToolUse, PostToolUse, OnContextCompact, OnAgentSwitch,
// OnFileChange, OnSessionStart, OnSessionEnd, OnCheckpointCreate,
// OnCheckpointRestore, OnTabSwitch, Notification, Stop, SubagentStop.
package hooks

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// Event names the chain being evaluated.
type Event string

const (
	PreToolUse          Event = "PreToolUse"
	PostToolUse         Event = "PostToolUse"
	OnContextCompact    Event = "OnContextCompact"
	OnAgentSwitch       Event = "OnAgentSwitch"
	OnFileChange        Event = "OnFileChange"
	OnSessionStart      Event = "OnSessionStart"
	OnSessionEnd        Event = "OnSessionEnd"
	OnCheckpointCreate  Event = "OnCheckpointCreate"
	OnCheckpointRestore Event = "OnCheckpointRestore"
	OnTabSwitch         Event = "OnTabSwitch"
	Notification        Event = "Notification"
	Stop                Event = "Stop"
	SubagentStop        Event = "SubagentStop"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 0
)

// Condition is the restricted condition grammar: lhs == rhs, where lhs is
// one of "event" or "session_id".
type Condition struct {
	LHS string `json:"lhs"`
	RHS string `json:"rhs"`
}

func (c Condition) evaluate(ctx Context) bool {
	if c.LHS == "" {
		return true
	}
	switch c.LHS {
	case "event":
		return string(ctx.Event) == c.RHS
	case "session_id":
		return ctx.SessionID == c.RHS
	default:
		return false
	}
}

// Hook is one configured command, scoped to a single Event.
type Hook struct {
	Command    string
	Condition  *Condition
	TimeoutSec int
	Retries    int
	OnSuccess  []string
	OnFailure  []string
}

func (h Hook) timeout() time.Duration {
	if h.TimeoutSec <= 0 {
		return defaultTimeout
	}
	return time.Duration(h.TimeoutSec) * time.Second
}

func (h Hook) retries() int {
	if h.Retries < 0 {
		return defaultRetries
	}
	return h.Retries
}

// Context carries the variables injected into every hook's environment and
// available to condition evaluation.
type Context struct {
	Event       Event
	SessionID   string
	ProjectPath string
	Extra       map[string]any
}

// Result is one hook's outcome, reported back to the caller in arrival
// order.
type Result struct {
	Command  string
	Skipped  bool
	Success  bool
	Output   string
	ErrorMsg string
}

// ChainResult is the outcome of running an event's full hook chain.
type ChainResult struct {
	Results        []Result
	ShouldContinue bool
}

// Runner executes one shell command with the given environment and
// timeout; the default uses os/exec. Tests substitute a stub.
type Runner func(ctx context.Context, command string, env []string, timeout time.Duration) (output string, err error)

// Dispatcher loads and runs hook chains for each event.
type Dispatcher struct {
	loader func(event Event) []Hook
	run    Runner
}

// New constructs a Dispatcher. loader returns the ordered hook list
// configured for an event (merged across user/project/local scope by the
// caller); run executes a single hook's shell command.
func New(loader func(event Event) []Hook, run Runner) *Dispatcher {
	if run == nil {
		run = shellRunner
	}
	return &Dispatcher{loader: loader, run: run}
}

func shellRunner(ctx context.Context, command string, env []string, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Run executes the ordered hook chain for hookCtx.Event. For PreToolUse,
// any hook failure sets ShouldContinue=false so the caller can block the
// pending tool call; for every other event ShouldContinue is always true
// (failures are reported but do not block).
func (d *Dispatcher) Run(ctx context.Context, hookCtx Context) ChainResult {
	chain := ChainResult{ShouldContinue: true}

	for _, hook := range d.loader(hookCtx.Event) {
		if hook.Condition != nil && !hook.Condition.evaluate(hookCtx) {
			chain.Results = append(chain.Results, Result{Command: hook.Command, Skipped: true})
			continue
		}

		result := d.runOne(ctx, hook, hookCtx)
		chain.Results = append(chain.Results, result)

		if !result.Success && hookCtx.Event == PreToolUse {
			chain.ShouldContinue = false
		}
	}

	return chain
}

func (d *Dispatcher) runOne(ctx context.Context, hook Hook, hookCtx Context) Result {
	env := buildEnv(hookCtx)

	var output string
	var err error
	attempts := hook.retries() + 1
	for attempt := 0; attempt < attempts; attempt++ {
		output, err = d.run(ctx, hook.Command, env, hook.timeout())
		if err == nil {
			break
		}
	}

	result := Result{Command: hook.Command, Output: output, Success: err == nil}
	if err != nil {
		result.ErrorMsg = wkerr.ToUIString(wkerr.Process("hooks.run", err))
	}

	var followUps []string
	if err == nil {
		followUps = hook.OnSuccess
	} else {
		followUps = hook.OnFailure
	}
	for _, cmd := range followUps {
		_, _ = d.run(ctx, cmd, env, hook.timeout())
	}

	return result
}

func buildEnv(hookCtx Context) []string {
	contextJSON, _ := json.Marshal(hookCtx.Extra)
	return []string{
		"HOOK_CONTEXT=" + string(contextJSON),
		"HOOK_EVENT=" + string(hookCtx.Event),
		"SESSION_ID=" + hookCtx.SessionID,
		"PROJECT_PATH=" + hookCtx.ProjectPath,
	}
}

// ParseCondition parses the restricted "lhs == rhs" grammar; an empty
// string means "no condition" (always true).
func ParseCondition(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parts := strings.SplitN(expr, "==", 2)
	if len(parts) != 2 {
		return nil, wkerr.Config("hooks.parse_condition", nil)
	}
	lhs := strings.TrimSpace(parts[0])
	rhs := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
	if lhs != "event" && lhs != "session_id" {
		return nil, wkerr.Config("hooks.parse_condition.unsupported_lhs", nil)
	}
	return &Condition{LHS: lhs, RHS: rhs}, nil
}
