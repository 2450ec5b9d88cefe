// Package stream feeds the event history plus the live tail to attached
// observers (TUIs, wire adapters). The bus stays synchronous; the hub is
// the decoupling layer, giving every subscriber its own bounded queue so
// a slow or dead consumer never stalls the publisher or its peers.
package stream

import (
	"fmt"
	"sync"

	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/events"
)

// DefaultQueueSize bounds each subscriber's outbound queue.
const DefaultQueueSize = 256

// Hub bridges the synchronous bus and any number of subscribers. Each
// subscriber attached through the hub first receives the full event
// history from the log, then the live tail, with no duplicates and no
// gaps in between.
type Hub struct {
	bus       *events.Bus
	log       store.EventLog
	queueSize int

	mu   sync.Mutex
	subs map[string]*Subscriber
	seq  int
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithQueueSize overrides the per-subscriber queue bound.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) { h.queueSize = n }
}

// NewHub creates a hub and registers it on the bus.
func NewHub(bus *events.Bus, log store.EventLog, opts ...HubOption) (*Hub, error) {
	h := &Hub{
		bus:       bus,
		log:       log,
		queueSize: DefaultQueueSize,
		subs:      make(map[string]*Subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := bus.Subscribe(h); err != nil {
		return nil, fmt.Errorf("register stream hub: %w", err)
	}
	return h, nil
}

// ListenerID implements events.Listener.
func (h *Hub) ListenerID() string { return "stream-hub" }

// Order implements events.Listener. The hub runs after mutation and
// default listeners so subscribers only see durable facts.
func (h *Hub) Order() int { return events.OrderStream }

// InterestedIn implements events.Listener.
func (h *Hub) InterestedIn(events.Type) bool { return true }

// OnEvent fans the event out to every attached subscriber. Delivery never
// blocks the publisher: a full queue drops its oldest entry, and a
// subscriber that stays stalled for a full queue window is disconnected.
func (h *Hub) OnEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subs {
		s.deliverLocked(e)
	}
	return nil
}

// Attach creates a subscriber that receives the full history followed by
// the live tail. An empty type filter means all events.
func (h *Hub) Attach(id string, types ...events.Type) (*Subscriber, error) {
	s := &Subscriber{
		id:    id,
		hub:   h,
		types: types,
		ch:    make(chan events.Event, h.queueSize),
	}

	// Register first, buffering the live feed, so nothing published
	// between the history snapshot and going live can be missed.
	h.mu.Lock()
	if _, ok := h.subs[id]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("subscriber %q already attached", id)
	}
	s.catchingUp = true
	h.subs[id] = s
	h.mu.Unlock()

	history, err := h.log.List()
	if err != nil {
		h.detach(id)
		return nil, fmt.Errorf("load event history: %w", err)
	}

	// Events buffered during the snapshot may already be in it; the
	// history IDs are the dedupe cursor.
	replayed := make(map[string]struct{}, len(history))
	for _, e := range history {
		replayed[e.EventID()] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Catch-up is lossless: drop-oldest is a live-tail policy only. When
	// the history outsizes the queue, grow the queue to fit it. Nothing
	// has been sent on the channel yet, so it is safe to swap.
	pending := 0
	for _, e := range history {
		if s.interested(e.Type()) {
			pending++
		}
	}
	for _, e := range s.buffer {
		if _, dup := replayed[e.EventID()]; !dup && s.interested(e.Type()) {
			pending++
		}
	}
	if pending > cap(s.ch) {
		s.ch = make(chan events.Event, pending)
	}

	for _, e := range history {
		s.enqueueLocked(e)
	}
	for _, e := range s.buffer {
		if _, dup := replayed[e.EventID()]; dup {
			continue
		}
		s.enqueueLocked(e)
	}
	s.buffer = nil
	s.catchingUp = false
	if s.closed {
		delete(h.subs, id)
		return nil, fmt.Errorf("subscriber %q detached during catch-up", id)
	}
	return s, nil
}

// Subscribers returns the IDs of currently attached subscribers.
func (h *Hub) Subscribers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		s.closeLocked()
	}
}

// Subscriber is one attached observer with its own bounded queue.
type Subscriber struct {
	id    string
	hub   *Hub
	types []events.Type
	ch    chan events.Event

	// guarded by hub.mu
	catchingUp bool
	buffer     []events.Event
	dropped    int
	closed     bool
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string { return s.id }

// Events is the subscriber's receive channel. It is closed when the
// subscriber detaches or is disconnected for falling behind.
func (s *Subscriber) Events() <-chan events.Event { return s.ch }

// Dropped reports how many events were discarded because the consumer
// fell behind.
func (s *Subscriber) Dropped() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// Close detaches the subscriber from the hub and closes its channel.
func (s *Subscriber) Close() {
	s.hub.detach(s.id)
}

func (s *Subscriber) interested(t events.Type) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}

// deliverLocked routes a live event. During catch-up the event is parked
// in the buffer; afterwards it goes straight to the queue. Callers hold
// hub.mu.
func (s *Subscriber) deliverLocked(e events.Event) {
	if s.closed || !s.interested(e.Type()) {
		return
	}
	if s.catchingUp {
		s.buffer = append(s.buffer, e)
		return
	}
	s.enqueueLocked(e)
}

// enqueueLocked pushes an event onto the bounded queue. On overflow the
// oldest queued event is dropped to make room; a consumer that stays
// stalled for an entire queue window is disconnected. Callers hold hub.mu.
func (s *Subscriber) enqueueLocked(e events.Event) {
	if s.closed || !s.interested(e.Type()) {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		if s.dropped++; s.dropped > cap(s.ch) {
			delete(s.hub.subs, s.id)
			s.closeLocked()
			return
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscriber) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
