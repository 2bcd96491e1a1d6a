package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a plugin file must stay quiet before a reload.
const DefaultDebounce = 500 * time.Millisecond

// Reloader is the part of Loader the watcher drives.
type Reloader interface {
	Reload(ctx context.Context, name string) (*Pass, error)
	Unload(ctx context.Context, name string) error
}

// Watcher reloads configured plugins when their files change on disk.
type Watcher struct {
	dir      string
	names    map[string]bool
	reloader Reloader
	logger   *slog.Logger
	debounce time.Duration

	watcher     *fsnotify.Watcher
	watchCtx    context.Context
	watchCancel context.CancelFunc
	watchMu     sync.Mutex
	timers      map[string]*time.Timer // Debounce rapid file changes
	wg          sync.WaitGroup
}

// NewWatcher creates a watcher for the named plugins in dir.
func NewWatcher(dir string, names []string, reloader Reloader, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		dir:      dir,
		names:    make(map[string]bool, len(names)),
		reloader: reloader,
		logger:   logger,
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, n := range names {
		w.names[n] = true
	}
	return w
}

// SetDebounce changes the quiet period. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching the plugin directory.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch plugin dir: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watchMu.Lock()
	w.watcher = watcher
	w.watchCtx, w.watchCancel = watchCtx, cancel
	w.watchMu.Unlock()

	w.logger.Info("Plugin hot reload enabled", "path", w.dir)

	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)
	return nil
}

// Stop stops watching and waits for the event loop to exit. Pending
// debounced reloads are dropped.
func (w *Watcher) Stop() {
	w.watchMu.Lock()
	if w.watchCancel != nil {
		w.watchCancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.watchMu.Unlock()

	w.wg.Wait()
}

// watchLoop owns watcher and ctx; Stop may clear the fields at any time.
func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// pluginName maps a changed path to a configured plugin name.
func (w *Watcher) pluginName(path string) (string, bool) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if w.names[name] {
		return name, true
	}
	// Executable modules may have no extension and a dotted name.
	if w.names[base] {
		return base, true
	}
	return "", false
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	name, ok := w.pluginName(event.Name)
	if !ok {
		return
	}

	w.watchMu.Lock()
	defer w.watchMu.Unlock()
	if t, exists := w.timers[name]; exists {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.processFileChange(name, event)
	})
}

func (w *Watcher) processFileChange(name string, event fsnotify.Event) {
	w.watchMu.Lock()
	delete(w.timers, name)
	ctx := w.watchCtx
	w.watchMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.logger.Info("Plugin file changed, reloading", "plugin", name)
		pass, err := w.reloader.Reload(ctx, name)
		if err != nil {
			w.logger.Error("Plugin reload failed", "plugin", name, "error", err)
			return
		}
		w.logger.Info("Plugin reloaded", "plugin", name, "plugins", len(pass.Activated))

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.logger.Info("Plugin file removed, unloading", "plugin", name)
		if err := w.reloader.Unload(ctx, name); err != nil {
			w.logger.Warn("Plugin unload failed", "plugin", name, "error", err)
		}
	}
}
