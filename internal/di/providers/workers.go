package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/siftrapp/siftr-server/internal/config"
	"github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/service"
	"github.com/siftrapp/siftr-server/internal/sse"
	"github.com/siftrapp/siftr-server/internal/watcher"
)

// FileWatcherHandle wraps the sheet watcher with shutdown capability.
// Watcher is nil when watching is disabled.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideFileWatcher watches every manifest sheet and reloads a dataset when
// its file changes.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bootstrap := do.MustInvoke[*Bootstrap](i)
	datasets := do.MustInvoke[*service.DatasetService](i)
	events := do.MustInvoke[*SSEManagerHandle](i)

	if !cfg.Datasets.Watch || bootstrap.Manifest == nil {
		return &FileWatcherHandle{}, nil
	}

	watchLog := log.Component("watcher")
	m := bootstrap.Manifest

	handler := func(ctx context.Context, ev watcher.Event) {
		switch ev.Type {
		case watcher.EventChanged:
			result, err := datasets.ReloadFile(ctx, m, ev.Path)
			if err != nil {
				watchLog.Error("Dataset reload failed", "path", ev.Path, "error", err)
				entry, _ := m.Lookup(ev.Path)
				events.Emit(sse.NewReloadFailedEvent(entry.Slug, ev.Path, err))
				return
			}
			watchLog.Info("Dataset reloaded",
				"slug", result.Dataset.Slug,
				"species", result.Dataset.SpeciesCount,
			)
		case watcher.EventRemoved:
			watchLog.Warn("Dataset sheet removed; keeping last loaded version", "path", ev.Path)
		}
	}

	w, err := watcher.New(watchLog, watcher.Options{Debounce: cfg.Datasets.Debounce}, handler)
	if err != nil {
		return nil, err
	}

	for _, path := range m.Paths() {
		if err := w.Track(path); err != nil {
			_ = w.Stop() //nolint:errcheck // Already failing
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, watcher.ErrStopped) {
			watchLog.Error("Watcher stopped", "error", err)
		}
	}()

	log.Info("Watching dataset sheets", "files", w.Tracked())

	return &FileWatcherHandle{Watcher: w, cancel: cancel}, nil
}
