package provider

import (
	"sync"

	"github.com/getkayan/mentorship/core/logger"
	"go.uber.org/zap"
)

// Hub fans session-change notifications out to subscribers. Emissions are
// serialised, so every subscriber sees events in the order they were
// emitted. Callbacks must not call Emit.
type Hub struct {
	emitMu sync.Mutex

	mu   sync.RWMutex
	subs map[uint64]Callback
	next uint64

	log *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]Callback),
		log:  logger.Named("provider.hub"),
	}
}

// Subscribe registers cb. The returned func removes it and is safe to call
// more than once.
func (h *Hub) Subscribe(cb Callback) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = cb
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit delivers the event to every subscriber, each with its own copy of s.
// A panicking subscriber is logged and skipped.
func (h *Hub) Emit(kind EventKind, s *Session) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.RLock()
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.mu.RLock()
		cb, ok := h.subs[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		h.deliver(cb, kind, s.clone())
	}
}

func (h *Hub) deliver(cb Callback, kind EventKind, s *Session) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("session subscriber panicked", zap.String("event", string(kind)), zap.Any("panic", r))
		}
	}()
	cb(kind, s)
}
