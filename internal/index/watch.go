package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch tuning.
const (
	DefaultDebounce = 500 * time.Millisecond

	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
)

// FsWatcher is the subset of *fsnotify.Watcher the watch loop uses.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type notifyWatcher struct {
	*fsnotify.Watcher
}

func (w notifyWatcher) Events() <-chan fsnotify.Event { return w.Watcher.Events }
func (w notifyWatcher) Errors() <-chan error          { return w.Watcher.Errors }

// NewFsWatcher returns an fsnotify-backed watcher.
func NewFsWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("index: creating watcher: %w", err)
	}

	return notifyWatcher{w}, nil
}

// LocalWatcher regenerates a local index whenever the watched tree changes.
// Bursts of events are collapsed into one regeneration after Debounce.
type LocalWatcher struct {
	Root       string
	Debounce   time.Duration
	Regenerate func(ctx context.Context) error

	// Ignore reports paths whose events must not trigger a rebuild, such
	// as the generated output itself.
	Ignore func(path string) bool

	Logger *slog.Logger
}

// Run watches Root with w until ctx is canceled. It closes w on return.
func (lw *LocalWatcher) Run(ctx context.Context, w FsWatcher) error {
	defer w.Close()

	if err := lw.addTree(w, lw.Root); err != nil {
		return err
	}

	logger := lw.logger()
	logger.Info("watching for changes", slog.String("root", lw.Root))

	debounce := lw.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}

			if lw.skip(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := lw.addTree(w, ev.Name); err != nil {
						logger.Warn("cannot watch new directory",
							slog.String("path", ev.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}

			logger.Debug("change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(debounce)
			errBackoff = watchErrInitBackoff

		case werr, ok := <-w.Errors():
			if !ok {
				return nil
			}

			logger.Warn("filesystem watcher error",
				slog.String("error", werr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff = min(errBackoff*2, watchErrMaxBackoff)

		case <-timer.C:
			if err := lw.Regenerate(ctx); err != nil {
				logger.Error("regenerating index failed", slog.String("error", err.Error()))
				continue
			}

			logger.Info("index regenerated", slog.String("root", lw.Root))
		}
	}
}

// addTree adds dir and every non-hidden subdirectory; fsnotify watches are
// not recursive.
func (lw *LocalWatcher) addTree(w FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("index: walking %s: %w", p, err)
		}

		if !d.IsDir() {
			return nil
		}

		if p != dir && (strings.HasPrefix(d.Name(), ".") || lw.skip(p)) {
			return filepath.SkipDir
		}

		if err := w.Add(p); err != nil {
			return fmt.Errorf("index: watching %s: %w", p, err)
		}

		return nil
	})
}

func (lw *LocalWatcher) skip(p string) bool {
	if strings.HasPrefix(filepath.Base(p), ".") {
		return true
	}

	return lw.Ignore != nil && lw.Ignore(p)
}

func (lw *LocalWatcher) logger() *slog.Logger {
	if lw.Logger == nil {
		return slog.Default()
	}

	return lw.Logger
}
