package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// ChangeFunc is called once per settled burst of taxonomy file changes.
type ChangeFunc func(ctx context.Context, paths []string)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Patterns are the same globs given to the FileSource.
	Patterns []string

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher reports changes to taxonomy files. It watches the directories of
// the patterns rather than the files, because editors often replace a file
// by renaming a temporary one over it.
type Watcher struct {
	patterns []string
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	dirs    []string

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher on the pattern directories. It does not
// deliver events until Start is called.
func NewWatcher(cfg WatcherConfig, onChange ChangeFunc) (*Watcher, error) {
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns to watch", ErrNoFiles)
	}
	if onChange == nil {
		return nil, fmt.Errorf("taxonomy: watcher needs a change callback")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("taxonomy: create watcher: %w", err)
	}

	w := &Watcher{
		patterns: append([]string(nil), cfg.Patterns...),
		debounce: cfg.Debounce,
		onChange: onChange,
		logger:   cfg.Logger,
		watcher:  fw,
	}
	for _, dir := range patternDirs(cfg.Patterns) {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("taxonomy: watch %s: %w", dir, err)
		}
		w.dirs = append(w.dirs, dir)
	}
	return w, nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Start begins delivering changes until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.done = make(chan struct{})

	changes := make(chan string, 64)
	w.wg.Add(2)
	go w.readEvents(ctx, changes)
	go w.debounceLoop(ctx, changes)

	w.logger.Info("taxonomy watcher started", "dirs", w.dirs, "debounce", w.debounce.String())
}

// Stop ends delivery and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.running {
		close(w.done)
		w.running = false
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) readEvents(ctx context.Context, changes chan<- string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			select {
			case changes <- event.Name:
			default:
				// A full buffer already guarantees a pending reload.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("taxonomy watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context, changes <-chan string) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			w.logger.Debug("taxonomy files changed", "paths", paths)
			w.onChange(ctx, paths)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(filepath.Clean(p), filepath.Clean(name)); ok {
			return true
		}
	}
	return false
}

// patternDirs returns the distinct directories of the glob patterns.
func patternDirs(patterns []string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, p := range patterns {
		dir := filepath.Dir(p)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
