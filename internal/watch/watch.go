// Package watch monitors a directory for new JVM crash logs.
//
// The JVM writes hs_err_pid*.log files incrementally while it dies, so a file
// is handed to the handler only after it has stopped changing for a settle
// period. Each file is handled at most once per run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bimmerbailey/crashdoc/internal/config"
)

// DefaultSettle is how long a crash log must stay unchanged before it is
// handled.
const DefaultSettle = 2 * time.Second

// Handler is called once for each settled crash log.
type Handler func(ctx context.Context, path string) error

// Options configures the watcher behavior.
type Options struct {
	Dir      string        // Directory to watch (not recursive)
	Existing bool          // Whether to handle crash logs already present at start
	Settle   time.Duration // Quiet period before a file is handled
	Handler  Handler       // Called for each settled crash log
}

// Watcher hands new crash logs in a directory to a Handler.
type Watcher struct {
	opts    Options
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	pending map[string]time.Time
	done    map[string]struct{}
}

// New creates a Watcher. The logger must not be nil.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", opts.Dir)
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	return &Watcher{
		opts:    opts,
		logger:  logger,
		pending: make(map[string]time.Time),
		done:    make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is canceled, which is not an error. Handler errors
// are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to setup watcher: %w", err)
	}
	w.watcher = watcher
	defer watcher.Close()

	if err := watcher.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.opts.Dir, err)
	}

	if w.opts.Existing {
		if err := w.queueExisting(); err != nil {
			return err
		}
	} else if err := w.markExisting(); err != nil {
		return err
	}

	w.logger.Info("watching for crash logs", "dir", w.opts.Dir, "settle", w.opts.Settle)

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			return fmt.Errorf("watcher error: %w", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) tick() time.Duration {
	t := w.opts.Settle / 4
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

// handleEvent records activity on crash log files.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !config.IsCrashLogName(filepath.Base(event.Name)) {
		return
	}
	if _, ok := w.done[event.Name]; ok {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.pending[event.Name] = time.Now()
		w.logger.Debug("crash log activity", "path", event.Name, "op", event.Op.String())

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	}
}

// flush hands every settled pending file to the handler in name order.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.opts.Settle {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() == 0 {
			continue
		}

		delete(w.pending, path)
		w.done[path] = struct{}{}
		w.logger.Info("new crash log", "path", path, "bytes", info.Size())
		if err := w.opts.Handler(ctx, path); err != nil {
			w.logger.Error("crash log handler failed", "path", path, "error", err)
		}
	}
}

// queueExisting marks crash logs already in the directory as pending.
func (w *Watcher) queueExisting() error {
	return w.scan(func(path string) {
		w.pending[path] = time.Time{}
	})
}

// markExisting records crash logs already in the directory as handled.
func (w *Watcher) markExisting() error {
	return w.scan(func(path string) {
		w.done[path] = struct{}{}
	})
}

func (w *Watcher) scan(fn func(path string)) error {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !config.IsCrashLogName(e.Name()) {
			continue
		}
		fn(filepath.Join(w.opts.Dir, e.Name()))
	}
	return nil
}
