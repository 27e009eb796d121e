package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/rcourtman/workbench-core/internal/wkerr"
	"github.com/rs/zerolog"
)

// Watcher notifies onReload whenever one of the Store's JSON files changes
// on disk, so external edits (or another process instance) are picked up
// without a restart.
type Watcher struct {
	fsw *fsnotify.Watcher
	log zerolog.Logger
}

// NewWatcher starts watching dir (the same root as the Store).
func NewWatcher(dir string, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, wkerr.IO("config.watcher.new", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, wkerr.IO("config.watcher.add", err)
	}
	return &Watcher{fsw: fsw, log: log}, nil
}

// Run dispatches onReload(name) for every write/create event until ctx is
// cancelled, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context, onReload func(name string)) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				onReload(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config: watcher error")
		}
	}
}
