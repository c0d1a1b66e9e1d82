package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is a single post-processing notification published to clients.
// Events carry a room so listeners can scope to one session; an empty
// room marks a broadcast visible to every listener.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Room      string          `json:"room,omitempty"`
	Name      string          `json:"name"`
	SessionID int64           `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// IsBroadcast reports whether the event targets every room.
func (e Event) IsBroadcast() bool {
	return e.Room == ""
}

// Sink receives every published event (for persistence, etc.).
type Sink interface {
	Append(Event)
}

// Hub stores recent events in a bounded buffer and wakes waiters when new
// events arrive. Sequence numbers are global and strictly increasing, so
// per-room ordering follows publish order.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	sinks    []Sink
}

// NewHub constructs a bounded in-memory event fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires an additional sink that receives every published event.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends a new event to the hub, assigning its sequence number.
// The assigned sequence is returned.
func (h *Hub) Publish(evt Event) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	sinks := append([]Sink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
	return evt.Sequence
}

// Fetch returns events with sequence greater than since, filtered to the
// given room (broadcasts always match; an empty room matches everything).
// When wait is true, Fetch blocks until at least one matching event is
// available or the context ends.
func (h *Hub) Fetch(ctx context.Context, room string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(room, since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events for a room without blocking.
func (h *Hub) Tail(room string, limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var matched []Event
	for i := len(h.buffer) - 1; i >= 0 && len(matched) < limit; i-- {
		if roomMatches(room, h.buffer[i]) {
			matched = append(matched, h.buffer[i])
		}
	}
	// Restore publish order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *Hub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *Hub) snapshotLocked(room string, since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	var out []Event
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		if !roomMatches(room, evt) {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			// A truncated batch resumes from the last delivered event so
			// callers paging with the returned cursor never skip events
			// published between it and the head of the buffer.
			return out, evt.Sequence
		}
	}
	return out, h.nextSeq
}

func roomMatches(room string, evt Event) bool {
	if room == "" || evt.IsBroadcast() {
		return true
	}
	return evt.Room == room
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
