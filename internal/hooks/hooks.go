// Package hooks dispatches task and gateway lifecycle events to registered
// handlers.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/taskweaver/internal/logging"
)

// Event names.
const (
	EventTaskSubmitted = "task_submitted"
	EventTaskStarted   = "task_started"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventGatewayStart  = "gateway_start"
	EventGatewayStop   = "gateway_stop"
)

// AllEvents lists every event the system emits.
var AllEvents = []string{
	EventTaskSubmitted,
	EventTaskStarted,
	EventTaskCompleted,
	EventTaskFailed,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager keeps handler registrations and dispatches events to them.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler failed")
	}
}

// Emit runs the handlers for event one after another, in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, p)
	}
}

// EmitAsync starts every handler for event in its own goroutine and
// returns. The handlers see a context that is not cancelled with ctx.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	ctx = context.WithoutCancel(ctx)
	for _, h := range m.snapshot(event) {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.call(ctx, h, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
