package capture

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// ErrWatcherClosed is returned by Next after Close.
var ErrWatcherClosed = errors.New("capture watcher closed")

// Watcher reports new captures arriving in a directory.
type Watcher struct {
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher
	logger  *logging.Logger
}

// NewWatcher starts watching dir, creating it if needed. A capture is only
// reported once no write to the directory has happened for settle, so
// half-written files are never handed out.
func NewWatcher(dir string, settle time.Duration, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create captures directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start file watcher")
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", dir)
	}

	return &Watcher{
		dir:     dir,
		settle:  settle,
		watcher: watcher,
		logger:  logger.With("captures_dir", dir),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Next blocks until a new capture has settled and returns its path. Only
// files created or written after the call count.
func (w *Watcher) Next(ctx context.Context) (string, error) {
	// Debounce: cameras and copy tools write in several chunks
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	var pending string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return "", ErrWatcherClosed
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsCapture(event.Name) {
				continue
			}
			pending = event.Name
			debounce.Reset(w.settle)

		case <-debounce.C:
			if pending == "" {
				continue
			}
			if _, err := os.Stat(pending); err != nil {
				w.logger.Debug("capture vanished before settling", "path", pending)
				pending = ""
				continue
			}
			w.logger.Info("new capture", "path", pending)
			return pending, nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return "", ErrWatcherClosed
			}
			w.logger.Warn("capture watcher error", "error", err)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
