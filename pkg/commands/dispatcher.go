package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/logging"
	"nova_bridge/pkg/processor"
)

// Handler is the interface for command handlers. Every handler reports its
// outcome as a bridge.Response.
type Handler interface {
	Execute(ctx context.Context, input string) bridge.Response
	Name() string
	Description() string
}

// Dispatcher routes commands to their handlers
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty command dispatcher. A nil logger discards.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a handler to the dispatcher, replacing any handler with the
// same name.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.Name()] = h
}

// Dispatch executes a command by name. Unknown commands and panicking
// handlers become failures.
func (d *Dispatcher) Dispatch(ctx context.Context, cmdName string, input string) (resp bridge.Response) {
	handler, ok := d.GetHandler(cmdName)
	if !ok {
		d.logger.Debug("command_unknown", "request_id", logging.RequestID(ctx), "command", cmdName)
		return bridge.Fail(processor.KindInvalidInput, "unknown command: "+cmdName)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("command_panic", "request_id", logging.RequestID(ctx), "command", cmdName, "panic", fmt.Sprint(r))
			resp = bridge.Fail(processor.KindProcessorError, fmt.Sprintf("command %s failed: %v", cmdName, r))
		}
	}()

	d.logger.Debug("command_dispatch", "request_id", logging.RequestID(ctx), "command", cmdName)
	return handler.Execute(ctx, input)
}

// GetHandler returns a handler by name
func (d *Dispatcher) GetHandler(cmdName string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[cmdName]
	return h, ok
}

// Handlers returns every registered handler sorted by name.
func (d *Dispatcher) Handlers() []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		list = append(list, h)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
