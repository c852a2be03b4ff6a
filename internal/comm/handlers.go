package comm

import (
	"log/slog"
	"sync"
)

// Handler serves a named message pushed by the host, or a request from a
// child window. A non-nil result answers a child request; a []any result is
// sent as the response args, anything else as a single arg.
type Handler func(args ...any) any

// Registry holds at most one handler per name. Registering a name again
// replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		log:      logger.With("component", "handlers"),
	}
}

// Register stores h under name. A nil h removes the slot.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.handlers, name)
		return
	}
	r.handlers[name] = h
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Reset drops every handler.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Handler)
}

// Call invokes the handler for name. It reports false, and does nothing, when
// no handler is registered.
func (r *Registry) Call(name string, args []any) (bool, any) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("handler not found", "func", name)
		return false, nil
	}
	r.log.Debug("invoking handler", "func", name, "args", len(args))
	return true, h(args...)
}
