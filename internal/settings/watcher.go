package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loganrf/OpenGridGen/internal/logging"
)

// Watcher reloads a settings file into a Store whenever it changes.
// It watches the file's directory so editors that replace the file on save
// are seen too.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	store       *Store
	path        string
	debounceDur time.Duration
	pendingAt   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	// onReload is called after every reload attempt, with its error.
	onReload func(error)
}

// NewWatcher creates a watcher for path feeding store.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	if path == "" {
		return nil, ErrNoSettingsFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		store:       store,
		path:        abs,
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// OnReload registers a callback for reload results. Call before Start.
func (w *Watcher) OnReload(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start loads the file once and begins watching it. Non-blocking. If the
// directory cannot be watched the watcher is closed and Stop is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		if cerr := w.watcher.Close(); cerr != nil {
			logging.SettingsWarn("closing settings watcher: %v", cerr)
		}
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.running = true
	w.mu.Unlock()
	logging.Settings("watching settings file %s", w.path)
	w.reload()

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its loop to exit. Safe to call
// after the context passed to Start is done.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.SettingsWarn("closing settings watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(50 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.SettingsWarn("settings watcher: %v", err)

		case <-debounceTicker.C:
			w.mu.Lock()
			due := !w.pendingAt.IsZero() && time.Since(w.pendingAt) >= w.debounceDur
			if due {
				w.pendingAt = time.Time{}
			}
			w.mu.Unlock()
			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pendingAt = time.Now()
	w.mu.Unlock()
}

// reload applies the file to the store. A bad file leaves the current
// settings in place.
func (w *Watcher) reload() {
	u, err := LoadFile(w.path, w.store.Current())
	if err == nil {
		err = w.store.Update(u)
	}
	if err != nil {
		logging.SettingsWarn("settings file not applied: %v", err)
	}

	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
