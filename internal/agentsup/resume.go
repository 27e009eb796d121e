package agentsup

import (
	"context"
	"time"

	"github.com/rcourtman/workbench-core/internal/eventbus"
)

// immediateExitWindow bounds how long after spawn a non-zero exit counts as
// an "immediate" resume failure rather than a genuine run that happened to
// fail quickly.
const immediateExitWindow = 500 * time.Millisecond

// SpawnWithResumeFallback attempts a --resume spawn; if the spawn call
// itself fails, or the child exits non-zero within immediateExitWindow, it
// retries once in continue mode (-c) with the same prompt. The fallback is
// silent to the caller aside from a warning log.
func (s *Supervisor) SpawnWithResumeFallback(ctx context.Context, req SpawnRequest) (*Handle, error) {
	if req.ResumeID == "" {
		return s.Spawn(ctx, req)
	}

	h, err := s.Spawn(ctx, req)
	if err != nil {
		return s.spawnContinueFallback(ctx, req, err)
	}

	exited := make(chan bool, 1)
	unsub := s.watchImmediateExit(h, exited)
	defer unsub()

	select {
	case failed := <-exited:
		if failed {
			return s.spawnContinueFallback(ctx, req, nil)
		}
	case <-time.After(immediateExitWindow):
	}
	return h, nil
}

func (s *Supervisor) watchImmediateExit(h *Handle, exited chan<- bool) func() {
	ch, unsub := s.hub.Subscribe(func(e eventbus.Event) bool {
		return e.Kind == eventbus.KindComplete && e.RunID == h.RunID
	})
	go func() {
		for e := range ch {
			exited <- !e.Success
			return
		}
	}()
	return unsub
}

func (s *Supervisor) spawnContinueFallback(ctx context.Context, req SpawnRequest, spawnErr error) (*Handle, error) {
	s.log.Warn().Err(spawnErr).Str("session_id", req.ResumeID).Msg("agentsup: resume failed, falling back to continue mode")
	fallback := req
	fallback.ResumeID = ""
	fallback.Continue = true
	return s.Spawn(ctx, fallback)
}
