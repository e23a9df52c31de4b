package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/siftrapp/siftr-server/internal/config"
	"github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/store"
	"github.com/siftrapp/siftr-server/internal/store/kv"
	"github.com/siftrapp/siftr-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured store backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := cfg.StorePath()
	storeLog := log.Component("store")

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		st, err = sqlite.Open(path, storeLog)
	default:
		st, err = kv.Open(path, storeLog)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	log.Info("Database initialized", "backend", cfg.Store.Backend, "path", path)

	return &StoreHandle{Store: st}, nil
}
