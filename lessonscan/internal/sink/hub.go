package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/a11ywatch/finding"
)

// Hub fans events out to dynamic subscribers (SSE streams, MCP clients).
// A subscriber whose buffer is full misses the event; the emitter never
// blocks on a slow reader.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan finding.Event
	next   uint64
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[uint64]chan finding.Event), logger: logger}
}

// Subscribe registers a reader with the given buffer. The channel is
// closed by cancel or Close.
func (h *Hub) Subscribe(buffer int) (<-chan finding.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan finding.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Send(_ context.Context, ev finding.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("sink: subscriber lagging, event dropped", "subscriber", id, "type", ev.Type)
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	return nil
}
