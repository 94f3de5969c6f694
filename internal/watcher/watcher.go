package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/raaihank/log-redactor/internal/logger"
	"github.com/raaihank/log-redactor/internal/reload"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor save produces
const DefaultDebounce = 250 * time.Millisecond

// Reloader is implemented by reload.Manager
type Reloader interface {
	Reload(ctx context.Context, trigger string) (reload.Event, error)
}

// Watcher reloads rules when the rules file changes. It watches the
// containing directory so that files replaced by rename are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	reloader Reloader
	logger   *logger.Logger
	fsw      *fsnotify.Watcher
}

// New starts watching the directory of path
func New(path string, debounce time.Duration, r Reloader, log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		reloader: r,
		logger:   log.WithComponent("watcher"),
		fsw:      fsw,
	}, nil
}

// Run dispatches reloads until ctx is cancelled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Watching rules file",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Rules file event", zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			// failures are logged by the manager and the old rules stay bound
			_, _ = w.reloader.Reload(ctx, reload.TriggerWatch)
		}
	}
}

// relevant reports whether ev may have changed the rules file
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}

// Close stops the underlying fsnotify watcher
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
