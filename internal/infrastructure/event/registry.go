package event

import (
	"slices"
	"sync"

	"github.com/ams/backend/internal/domain/shared"
)

// subscription binds a handler to the event types it receives
type subscription struct {
	handler shared.EventHandler
	all     bool
	types   map[string]struct{}
}

func (s subscription) matches(eventType string) bool {
	if s.all {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// HandlerRegistry keeps handlers in subscription order so dispatch order is
// stable across runs.
type HandlerRegistry struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

// Register adds event types to a handler, subscribing it if it is new.
// Registering with no types makes the handler receive all events.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(handler)
	if i < 0 {
		r.subs = append(r.subs, subscription{handler: handler, types: map[string]struct{}{}})
		i = len(r.subs) - 1
	}
	if len(eventTypes) == 0 {
		r.subs[i].all = true
		return
	}
	for _, t := range eventTypes {
		r.subs[i].types[t] = struct{}{}
	}
}

// Unregister drops the handler entirely
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(handler); i >= 0 {
		r.subs = slices.Delete(r.subs, i, i+1)
	}
}

// GetHandlers returns the handlers that receive eventType
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []shared.EventHandler
	for _, s := range r.subs {
		if s.matches(eventType) {
			out = append(out, s.handler)
		}
	}
	return out
}

// Len is the number of subscribed handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *HandlerRegistry) indexOf(handler shared.EventHandler) int {
	return slices.IndexFunc(r.subs, func(s subscription) bool { return s.handler == handler })
}
