package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/voltship/pkg/log"
)

// DefaultDebounceDelay is the quiet period after a file change before reload.
const DefaultDebounceDelay = 100 * time.Millisecond

// ReloadFunc receives the configuration rebuilt after the file changed.
type ReloadFunc func(Config)

// Watcher reloads the config file when it changes. Each reload starts from
// base (defaults plus flags) and reapplies the file and environment, so
// flag values keep their precedence.
type Watcher struct {
	mu sync.Mutex

	path     string
	base     Config
	changed  map[string]bool
	delay    time.Duration
	onReload ReloadFunc
	logger   log.Logger

	debounce *time.Timer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, base Config, changed map[string]bool, onReload ReloadFunc, logger log.Logger) *Watcher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Watcher{
		path:     path,
		base:     base,
		changed:  changed,
		delay:    DefaultDebounceDelay,
		onReload: onReload,
		logger:   logger,
	}
}

// Start begins watching the file's directory. Editors often replace a file
// rather than write it, so the directory is watched and events are filtered
// by name.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(watchCtx, watcher)

	w.logger.Info("config watcher started", log.Path(w.path))
	return nil
}

// Stop ends the watch loop and waits for it.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

// reload rebuilds the configuration. A file that fails to parse or validate
// is logged and ignored; the previous values stay in effect.
func (w *Watcher) reload() {
	cfg, err := Reload(w.path, w.base, w.changed)
	if err != nil {
		w.logger.Warn("config reload rejected", log.Path(w.path), log.Err(err))
		return
	}
	w.logger.Info("config reloaded", log.Path(w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Reload applies the file at path and the environment on top of base, then
// validates the result.
func Reload(path string, base Config, changed map[string]bool) (Config, error) {
	cfg := base
	fc, err := LoadFileConfig(path)
	if err != nil {
		return Config{}, err
	}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		return Config{}, err
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
