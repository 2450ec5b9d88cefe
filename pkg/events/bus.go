package events

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Listener order bands. Lower orders run first. Listeners registered at
// OrderMutation are the graph's write path: their failure aborts the
// publish. Everything else is isolated.
const (
	OrderMutation = -1000
	OrderDefault  = 0
	OrderStream   = 1000
)

var (
	// ErrDuplicateListener is returned by Subscribe when a listener with
	// the same ID is already registered.
	ErrDuplicateListener = errors.New("listener id already registered")
	// ErrNoSuchListener is returned by Unsubscribe for an unknown ID.
	ErrNoSuchListener = errors.New("no such listener")
)

// Listener receives events from a Bus. OnEvent runs on the publisher's
// goroutine; listeners that need asynchrony hand off internally.
type Listener interface {
	// ListenerID uniquely names the listener within a bus.
	ListenerID() string
	// Order places the listener in the dispatch sequence. Ties break by
	// registration order.
	Order() int
	// InterestedIn filters the event types delivered to OnEvent.
	InterestedIn(t Type) bool
	// OnEvent handles one event. Errors from mutation-order listeners
	// abort the publish; all other errors are logged and swallowed.
	OnEvent(e Event) error
}

type registration struct {
	listener Listener
	order    int
	seq      int
}

// Bus dispatches events synchronously to registered listeners in ascending
// order. A Bus is safe for concurrent use; publishes are serialized so
// every listener observes the same total event order.
type Bus struct {
	mu    sync.Mutex
	regs  []registration
	byID  map[string]struct{}
	seq   int
	errFn func(listenerID string, e Event, err error)
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithErrorHandler installs a callback for isolated listener failures.
func WithErrorHandler(fn func(listenerID string, e Event, err error)) BusOption {
	return func(b *Bus) { b.errFn = fn }
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{byID: make(map[string]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener. Registration order is stable within an
// order band.
func (b *Bus) Subscribe(l Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := l.ListenerID()
	if _, ok := b.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateListener, id)
	}
	b.byID[id] = struct{}{}
	b.seq++
	b.regs = append(b.regs, registration{listener: l, order: l.Order(), seq: b.seq})
	sort.SliceStable(b.regs, func(i, j int) bool {
		if b.regs[i].order != b.regs[j].order {
			return b.regs[i].order < b.regs[j].order
		}
		return b.regs[i].seq < b.regs[j].seq
	})
	return nil
}

// Unsubscribe removes a listener by ID.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchListener, id)
	}
	delete(b.byID, id)
	for i, reg := range b.regs {
		if reg.listener.ListenerID() == id {
			b.regs = append(b.regs[:i], b.regs[i+1:]...)
			break
		}
	}
	return nil
}

// Listeners returns the registered listener IDs in dispatch order.
func (b *Bus) Listeners() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, len(b.regs))
	for i, reg := range b.regs {
		ids[i] = reg.listener.ListenerID()
	}
	return ids
}

// Publish delivers e to every interested listener, at most once each, in
// ascending order. A failure from a listener at or below OrderMutation
// aborts the publish and is returned; later listeners never see the
// event. Failures from other listeners are reported to the error handler
// and dispatch continues.
func (b *Bus) Publish(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, reg := range b.regs {
		if !reg.listener.InterestedIn(e.Type()) {
			continue
		}
		err := invoke(reg.listener, e)
		if err == nil {
			continue
		}
		if reg.order <= OrderMutation {
			return fmt.Errorf("mutation listener %s failed on %s: %w", reg.listener.ListenerID(), e.Type(), err)
		}
		if b.errFn != nil {
			b.errFn(reg.listener.ListenerID(), e, err)
		}
	}
	return nil
}

func invoke(l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnEvent(e)
}

// FuncListener adapts a plain function into a Listener.
type FuncListener struct {
	ID     string
	Band   int
	Types  []Type
	Handle func(e Event) error
}

func (f *FuncListener) ListenerID() string { return f.ID }
func (f *FuncListener) Order() int         { return f.Band }

// InterestedIn matches any type when Types is empty.
func (f *FuncListener) InterestedIn(t Type) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

func (f *FuncListener) OnEvent(e Event) error { return f.Handle(e) }
