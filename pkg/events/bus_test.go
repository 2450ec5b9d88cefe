package events

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

func statusEvent() *NodeStatusChanged {
	return &NodeStatusChanged{
		Header:    NewHeader(),
		NodeID:    keys.NewRoot(),
		OldStatus: models.StatusPending,
		NewStatus: models.StatusRunning,
	}
}

func recordingListener(id string, order int, log *[]string) *FuncListener {
	return &FuncListener{
		ID:   id,
		Band: order,
		Handle: func(Event) error {
			*log = append(*log, id)
			return nil
		},
	}
}

func TestSubscribeRejectsDuplicateID(t *testing.T) {
	bus := NewBus()
	var log []string
	if err := bus.Subscribe(recordingListener("a", 0, &log)); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	err := bus.Subscribe(recordingListener("a", 5, &log))
	if !errors.Is(err, ErrDuplicateListener) {
		t.Fatalf("duplicate Subscribe err = %v, want ErrDuplicateListener", err)
	}
}

func TestPublishDispatchOrder(t *testing.T) {
	bus := NewBus()
	var log []string
	// Registered out of order on purpose; ties break by registration.
	for _, l := range []*FuncListener{
		recordingListener("late", OrderStream, &log),
		recordingListener("first-tie", OrderDefault, &log),
		recordingListener("mutation", OrderMutation, &log),
		recordingListener("second-tie", OrderDefault, &log),
	} {
		if err := bus.Subscribe(l); err != nil {
			t.Fatalf("Subscribe(%s): %v", l.ID, err)
		}
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []string{"mutation", "first-tie", "second-tie", "late"}
	if len(log) != len(want) {
		t.Fatalf("dispatched to %d listeners, want %d (%v)", len(log), len(want), log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("dispatch[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestPublishFiltersByType(t *testing.T) {
	bus := NewBus()
	var log []string
	statusOnly := recordingListener("status-only", 0, &log)
	statusOnly.Types = []Type{TypeNodeStatusChanged}
	errorOnly := recordingListener("error-only", 0, &log)
	errorOnly.Types = []Type{TypeNodeError}
	for _, l := range []*FuncListener{statusOnly, errorOnly} {
		if err := bus.Subscribe(l); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(log) != 1 || log[0] != "status-only" {
		t.Errorf("dispatch log = %v, want [status-only]", log)
	}
}

func TestPublishWithNoInterestedListeners(t *testing.T) {
	bus := NewBus()
	var log []string
	l := recordingListener("picky", 0, &log)
	l.Types = []Type{TypeToolCall}
	if err := bus.Subscribe(l); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish with no interested listeners: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("listener was invoked: %v", log)
	}
}

func TestIsolatedListenerFailureDoesNotStopDispatch(t *testing.T) {
	bus := NewBus(WithErrorHandler(func(id string, _ Event, _ error) {}))
	var log []string
	failing := &FuncListener{
		ID: "boom",
		Handle: func(Event) error {
			return errors.New("listener broke")
		},
	}
	if err := bus.Subscribe(failing); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Subscribe(recordingListener("after", 0, &log)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish should isolate non-mutation failures, got %v", err)
	}
	if len(log) != 1 || log[0] != "after" {
		t.Errorf("later listener not reached: %v", log)
	}
}

func TestMutationListenerFailureAbortsPublish(t *testing.T) {
	bus := NewBus()
	var log []string
	failing := &FuncListener{
		ID:   "writer",
		Band: OrderMutation,
		Handle: func(Event) error {
			return errors.New("disk full")
		},
	}
	if err := bus.Subscribe(failing); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Subscribe(recordingListener("reader", 0, &log)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err := bus.Publish(statusEvent())
	if err == nil {
		t.Fatal("Publish should fail when the mutation listener fails")
	}
	if len(log) != 0 {
		t.Errorf("listeners after the failed mutation still ran: %v", log)
	}
}

func TestPanickingListenerIsContained(t *testing.T) {
	var reported error
	bus := NewBus(WithErrorHandler(func(_ string, _ Event, err error) { reported = err }))
	panicking := &FuncListener{
		ID:     "panicky",
		Handle: func(Event) error { panic("unexpected state") },
	}
	if err := bus.Subscribe(panicking); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if reported == nil {
		t.Fatal("panic was not surfaced to the error handler")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	var log []string
	if err := bus.Subscribe(recordingListener("gone", 0, &log)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Unsubscribe("gone"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe("gone"); !errors.Is(err, ErrNoSuchListener) {
		t.Errorf("second Unsubscribe err = %v, want ErrNoSuchListener", err)
	}

	if err := bus.Publish(statusEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("unsubscribed listener still invoked: %v", log)
	}
}
