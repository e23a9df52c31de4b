// Package watcher reports changes to individual dataset sheets.
//
// fsnotify watches each sheet's parent directory so editors that save by
// writing a temporary file and renaming it over the original are still seen.
// Bursts of events for one file are debounced: the change is delivered once
// the file's size and modification time stop moving.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "github.com/siftrapp/siftr-server/internal/logger"
)

// ErrStopped is returned by Start and Track after Stop.
var ErrStopped = errors.New("watcher stopped")

// Handler receives settled events. Handlers run one at a time on the
// watcher's dispatch goroutine.
type Handler func(ctx context.Context, ev Event)

// Watcher monitors a set of tracked files.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	handler Handler
	fs      *fsnotify.Watcher

	mu      sync.Mutex
	tracked map[string]struct{}
	dirs    map[string]struct{}
	pending map[string]*pendingEvent

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingEvent tracks a file that may still be changing.
type pendingEvent struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher that delivers settled events to handler.
func New(logger *slog.Logger, opts Options, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	logger = applog.OrDiscard(logger)
	opts.setDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		opts:    opts,
		handler: handler,
		fs:      fsw,
		tracked: make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}, nil
}

// Track adds a file to the watched set. The file does not have to exist yet,
// but its directory does.
func (w *Watcher) Track(path string) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
		w.logger.Debug("added watch", "dir", dir)
	}
	w.tracked[abs] = struct{}{}
	return nil
}

// Tracked returns the number of tracked files.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Start processes events until ctx is cancelled or Stop is called.
// It blocks; run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	w.wg.Go(func() { w.processEvents(ctx) })
	w.wg.Go(func() { w.dispatch(ctx) })

	select {
	case <-ctx.Done():
	case <-w.done:
	}
	return nil
}

// Stop stops the watcher and waits for its goroutines. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev := <-w.events:
			w.handler(ctx, ev)
		}
	}
}

func (w *Watcher) isTracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tracked[path]
	return ok
}

// handleFsnotifyEvent filters raw events down to tracked files.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.opts.shouldIgnore(path) || !w.isTracked(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancelPending(path)
		w.emit(Event{Type: EventRemoved, Path: path})
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.startSettling(path)
	}
}

// startSettling (re)arms the debounce timer for path.
func (w *Watcher) startSettling(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	p := &pendingEvent{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.opts.Debounce, func() { w.checkSettled(path) })
	w.pending[path] = p
}

// checkSettled emits the change once the file stopped changing, or rearms
// the timer when it is still being written.
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.opts.Debounce, func() { w.checkSettled(path) })
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	w.emit(Event{
		Type:    EventChanged,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// emit hands an event to the dispatcher unless the watcher is stopping.
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
