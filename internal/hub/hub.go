package hub

import (
	"log"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 32

// Subscriber is one connected display client. Out is drained by the
// connection's writer goroutine; when the hub evicts a subscriber it closes
// Out so the transport tears the connection down. The per-subscriber lock
// orders sends against close: a disconnect racing a broadcast must never
// close a channel a sender is about to use.
type Subscriber struct {
	id  uint64
	out chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *Subscriber) Out() <-chan []byte { return s.out }

// trySend reports false only when the buffer is full on a live subscriber.
// A closed subscriber swallows the payload.
func (s *Subscriber) trySend(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.out <- payload:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// Hub tracks connected subscribers and fans change events out to them. It
// never blocks a writer: delivery goes into each subscriber's buffered
// channel, and a subscriber whose buffer is full (stalled peer) is evicted
// instead of awaited. The connection writer enforces the network-side write
// deadline.
type Hub struct {
	log       *log.Logger
	queueSize int

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64

	broadcastTotal atomic.Uint64
	evictTotal     atomic.Uint64
}

func New(logger *log.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		log:       logger,
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscriber),
	}
}

func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscriber{id: h.nextID, out: make(chan []byte, h.queueSize)}
	h.subs[s.id] = s
	return s
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once (normal disconnect races with eviction).
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, present := h.subs[s.id]
	delete(h.subs, s.id)
	h.mu.Unlock()
	if present {
		s.close()
	}
}

// Broadcast delivers payload to every subscriber present when it is called.
// Iteration happens over a snapshot of the set; a failed delivery evicts that
// one subscriber and never surfaces to the caller.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	h.broadcastTotal.Add(1)
	for _, s := range targets {
		h.send(s, payload)
	}
}

// Send delivers to a single subscriber with the same eviction semantics as
// Broadcast. Used for the per-connection hello frame queueing.
func (h *Hub) Send(s *Subscriber, payload []byte) {
	h.send(s, payload)
}

func (h *Hub) send(s *Subscriber, payload []byte) {
	if s.trySend(payload) {
		return
	}
	// Buffer full: the peer stopped draining. Evict rather than wait so one
	// stalled display cannot delay the rest.
	h.evict(s)
}

func (h *Hub) evict(s *Subscriber) {
	h.mu.Lock()
	_, present := h.subs[s.id]
	delete(h.subs, s.id)
	h.mu.Unlock()
	if present {
		h.evictTotal.Add(1)
		if h.log != nil {
			h.log.Printf("evicted slow subscriber %d", s.id)
		}
		s.close()
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type Stats struct {
	Subscribers    int
	BroadcastTotal uint64
	EvictTotal     uint64
}

func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers:    h.Count(),
		BroadcastTotal: h.broadcastTotal.Load(),
		EvictTotal:     h.evictTotal.Load(),
	}
}
