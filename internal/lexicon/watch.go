package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a keyword file when it changes on disk. A file that fails
// to parse is reported and the previous lexicon stays in effect.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Keywords)
	debounce time.Duration
	logger   *slog.Logger

	// OnReloadError, when set, is called with each failed reload.
	OnReloadError func(error)
}

// NewWatcher watches the directory containing path so that editors that
// replace the file atomically are still picked up.
func NewWatcher(path string, onChange func(*Keywords), logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch lexicon: empty path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				stop()
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, w.reload)
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				stop()
				return nil
			}
			w.logger.Warn("lexicon watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	k, err := LoadKeywords(w.path)
	if err != nil {
		w.logger.Error("lexicon reload failed, keeping previous keywords", "path", w.path, "error", err)
		if w.OnReloadError != nil {
			w.OnReloadError(err)
		}
		return
	}
	w.onChange(k)
	w.logger.Info("lexicon reloaded", "path", w.path, "tiers", len(k.Tiers), "phrases", k.PhraseCount())
}
