package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a rule pack whenever its file changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	// OnReload receives every successfully reloaded pack.
	OnReload func(p *Pack)
	// OnError receives load errors. The previous pack stays in effect.
	OnError func(err error)
}

// NewWatcher creates a watcher for the pack at path. The parent
// directory is watched so that editors that save by renaming a
// temporary file over the original are picked up too.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule pack path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule pack watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	pack, err := Load(w.path)
	if err != nil {
		w.logger.Error("reload rule pack", "path", w.path, "error", err)
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	w.logger.Info("rule pack reloaded", "path", w.path, "rules", len(pack.Rules))
	if w.OnReload != nil {
		w.OnReload(pack)
	}
}
