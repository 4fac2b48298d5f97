package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrConfigRemoved is reported when the watched file disappears.
var ErrConfigRemoved = errors.New("config removed")

// ConfigEvent represents a configuration change event.
type ConfigEvent struct {
	Path   string
	Config *Config
	Error  error
}

// Watcher monitors one config file for changes. It watches the parent
// directory so editors that replace the file on save are still seen.
type Watcher struct {
	loader   *Loader
	path     string
	watcher  *fsnotify.Watcher
	events   chan ConfigEvent
	debounce time.Duration
	mu       sync.RWMutex
	current  *Config
}

// NewWatcher creates a new config file watcher.
func NewWatcher(loader *Loader, path string) (*Watcher, error) {
	if !IsConfigFile(path) {
		return nil, fmt.Errorf("unsupported config file %s", path)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		loader:   loader,
		path:     filepath.Clean(path),
		watcher:  fsWatcher,
		events:   make(chan ConfigEvent, 10),
		debounce: 100 * time.Millisecond,
	}, nil
}

// SetDebounce changes how long writes must settle before a reload. Call
// before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Events returns the channel that receives config change events. It is
// closed once the watcher stops.
func (w *Watcher) Events() <-chan ConfigEvent {
	return w.events
}

// Start loads the file and begins watching it.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := w.loader.LoadAndValidate(w.path)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop closes the watcher and cleans up resources.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

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

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				pending = time.Now()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// A rename-over save is followed by a Create, which reloads.
				pending = time.Time{}
				w.emit(ctx, ConfigEvent{Path: w.path, Error: fmt.Errorf("%w: %s", ErrConfigRemoved, w.path)})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emit(ctx, ConfigEvent{Path: w.path, Error: err})

		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) >= w.debounce {
				pending = time.Time{}
				w.emit(ctx, w.reload())
			}
		}
	}
}

func (w *Watcher) reload() ConfigEvent {
	cfg, err := w.loader.LoadAndValidate(w.path)
	if err != nil {
		return ConfigEvent{
			Path:  w.path,
			Error: fmt.Errorf("failed to load config %s: %w", w.path, err),
		}
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	return ConfigEvent{Path: w.path, Config: cfg}
}

func (w *Watcher) emit(ctx context.Context, ev ConfigEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
