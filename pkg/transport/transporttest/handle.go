// Package transporttest provides a recording connection handle for tests.
package transporttest

import (
	"sync"

	"github.com/mahaj/chatstra/pkg/model"
)

// Emitted is one recorded Emit call.
type Emitted struct {
	Event   model.EventType
	Payload any
}

// Handle records everything emitted to it. Safe for concurrent use.
type Handle struct {
	mu     sync.Mutex
	key    string
	events []Emitted

	// EmitErr, when set, is returned by every Emit call after recording.
	EmitErr error
}

func NewHandle(key string) *Handle {
	return &Handle{key: key}
}

func (h *Handle) Key() string {
	return h.key
}

func (h *Handle) Emit(event model.EventType, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, Emitted{Event: event, Payload: payload})
	return h.EmitErr
}

// Events returns a snapshot of everything emitted so far.
func (h *Handle) Events() []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Emitted(nil), h.events...)
}

// EventsOf returns only the recorded calls for one event type.
func (h *Handle) EventsOf(event model.EventType) []Emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Emitted
	for _, e := range h.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
