// Package supervisor manages the external router sidecar process's
// lifecycle by shelling out to its "ccr" wrapper binary. It never holds a
// child handle; every state question is answered by re-running "ccr
// status" and parsing its output textually.
package supervisor

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

const (
	readinessPollInterval = 1 * time.Second
	readinessTimeout      = 30 * time.Second
	runningMarker         = "Running"
)

// CommandRunner abstracts process execution so tests can stub "ccr"
// without a real binary on PATH.
type CommandRunner func(ctx context.Context, args ...string) (output string, err error)

// Supervisor drives the "ccr" sidecar wrapper.
type Supervisor struct {
	run CommandRunner
}

// New constructs a Supervisor that shells out to the real "ccr" binary.
func New() *Supervisor {
	return &Supervisor{run: execCcr}
}

// NewWithRunner constructs a Supervisor backed by a custom CommandRunner,
// used by tests.
func NewWithRunner(run CommandRunner) *Supervisor {
	return &Supervisor{run: run}
}

func execCcr(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "ccr", args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// IsRunning reports whether "ccr status" output contains the running
// marker. A non-zero exit or error is treated as not-running.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	out, err := s.run(ctx, "status")
	if err != nil {
		return false
	}
	return strings.Contains(out, runningMarker)
}

// Start invokes "ccr start" then polls IsRunning every readinessPollInterval
// up to readinessTimeout, returning as soon as it reports running.
func (s *Supervisor) Start(ctx context.Context) error {
	if _, err := s.run(ctx, "start"); err != nil {
		return wkerr.Process("router.supervisor.start", err)
	}
	return s.waitForReady(ctx)
}

// Stop invokes "ccr stop".
func (s *Supervisor) Stop(ctx context.Context) error {
	if _, err := s.run(ctx, "stop"); err != nil {
		return wkerr.Process("router.supervisor.stop", err)
	}
	return nil
}

// Restart invokes "ccr restart" then waits for readiness.
func (s *Supervisor) Restart(ctx context.Context) error {
	if _, err := s.run(ctx, "restart"); err != nil {
		return wkerr.Process("router.supervisor.restart", err)
	}
	return s.waitForReady(ctx)
}

func (s *Supervisor) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(readinessTimeout)
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	if s.IsRunning(ctx) {
		return nil
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return wkerr.Timeout("router.supervisor.wait_ready.cancelled", ctx.Err())
		case <-ticker.C:
			if s.IsRunning(ctx) {
				return nil
			}
		}
	}
	return wkerr.Timeout("router.supervisor.wait_ready.deadline_exceeded", nil)
}
