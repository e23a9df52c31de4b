package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with shutdown capability.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ProvideSSEHandler provides the HTTP handler for event streams.
func ProvideSSEHandler(i do.Injector) (*sse.Handler, error) {
	managerHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return sse.NewHandler(managerHandle.Manager, log.Component("sse")), nil
}
