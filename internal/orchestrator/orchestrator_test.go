package orchestrator

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

type fixture struct {
	orch      *Orchestrator
	graph     *store.MemoryGraph
	worktrees *store.MemoryWorktrees
	artifacts *store.MemoryArtifacts
	log       *store.MemoryEventLog
	seen      *[]events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	graph := store.NewMemoryGraph()
	worktrees := store.NewMemoryWorktrees()
	artifacts := store.NewMemoryArtifacts()
	log := store.NewMemoryEventLog()
	bus := events.NewBus()

	if err := bus.Subscribe(NewEventLogListener(log)); err != nil {
		t.Fatalf("subscribe event log: %v", err)
	}
	var seen []events.Event
	err := bus.Subscribe(&events.FuncListener{
		ID: "test-recorder",
		Handle: func(e events.Event) error {
			seen = append(seen, e)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("subscribe recorder: %v", err)
	}

	return &fixture{
		orch:      New(graph, worktrees, bus, WithArtifacts(artifacts)),
		graph:     graph,
		worktrees: worktrees,
		artifacts: artifacts,
		log:       log,
		seen:      &seen,
	}
}

func (f *fixture) eventsOfType(tp events.Type) []events.Event {
	var out []events.Event
	for _, e := range *f.seen {
		if e.Type() == tp {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) startRun(t *testing.T) models.OrchestratorNode {
	t.Helper()
	root, err := f.orch.StartRun("ship the feature")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	return root
}

func (f *fixture) addTicket(t *testing.T, parent keys.Key, title string) models.TicketNode {
	t.Helper()
	ticket := models.TicketNode{Core: models.NewCore(parent.Child(), title, "", parent)}
	added, err := f.orch.AddChild(parent, ticket)
	if err != nil {
		t.Fatalf("AddChild(%s): %v", title, err)
	}
	return added.(models.TicketNode)
}

func TestStartRunPersistsAndAnnouncesRoot(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)

	stored, err := f.graph.FindByID(root.ID)
	if err != nil {
		t.Fatalf("root not stored: %v", err)
	}
	if stored.Base().Status != models.StatusPending {
		t.Errorf("root status = %s, want PENDING", stored.Base().Status)
	}
	if added := f.eventsOfType(events.TypeNodeAdded); len(added) != 1 {
		t.Errorf("NodeAdded events = %d, want 1", len(added))
	}
	if n, _ := f.log.Count(); n != 1 {
		t.Errorf("event log entries = %d, want 1", n)
	}
}

func TestAddChildUnknownParent(t *testing.T) {
	f := newFixture(t)
	f.startRun(t)
	before, _ := f.graph.Count()

	orphan := keys.NewRoot()
	ticket := models.TicketNode{Core: models.NewCore(orphan.Child(), "orphan", "", orphan)}
	_, err := f.orch.AddChild(orphan, ticket)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddChild err = %v, want ErrNotFound", err)
	}

	after, _ := f.graph.Count()
	if after != before {
		t.Errorf("store modified on failed AddChild: %d -> %d nodes", before, after)
	}
}

func TestAddChildPreservesOrderAndEmits(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)

	a := f.addTicket(t, root.ID, "a")
	b := f.addTicket(t, root.ID, "b")
	c := f.addTicket(t, root.ID, "c")

	parent, err := f.graph.FindByID(root.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	got := parent.Base().ChildIDs
	want := []keys.Key{a.ID, b.ID, c.ID}
	if len(got) != len(want) {
		t.Fatalf("children = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("child[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if attached := f.eventsOfType(events.TypeChildAttached); len(attached) != 3 {
		t.Errorf("ChildAttached events = %d, want 3", len(attached))
	}
	// One per child plus the root announcement.
	if added := f.eventsOfType(events.TypeNodeAdded); len(added) != 4 {
		t.Errorf("NodeAdded events = %d, want 4", len(added))
	}
}

func TestIsGoalCompleteFailsClosedOnAbsentRoot(t *testing.T) {
	f := newFixture(t)
	done, err := f.orch.IsGoalComplete(keys.NewRoot())
	if err != nil {
		t.Fatalf("IsGoalComplete: %v", err)
	}
	if done {
		t.Error("absent root reported complete")
	}
}

func TestIsGoalCompleteScansAllStatuses(t *testing.T) {
	blocking := []models.Status{
		models.StatusPending, models.StatusRunning,
		models.StatusWaitingReview, models.StatusWaitingInput,
	}
	terminal := []models.Status{
		models.StatusCompleted, models.StatusFailed, models.StatusPruned,
	}

	for _, bs := range blocking {
		f := newFixture(t)
		root := f.startRun(t)
		ticket := f.addTicket(t, root.ID, "work")
		mustSetStatus(t, f, root.ID, models.StatusCompleted)
		mustSetStatus(t, f, ticket.ID, bs)

		done, err := f.orch.IsGoalComplete(root.ID)
		if err != nil {
			t.Fatalf("IsGoalComplete: %v", err)
		}
		if done {
			t.Errorf("goal complete with a %s node", bs)
		}
	}

	for _, ts := range terminal {
		f := newFixture(t)
		root := f.startRun(t)
		ticket := f.addTicket(t, root.ID, "work")
		mustSetStatus(t, f, root.ID, models.StatusCompleted)
		mustSetStatus(t, f, ticket.ID, ts)

		done, err := f.orch.IsGoalComplete(root.ID)
		if err != nil {
			t.Fatalf("IsGoalComplete: %v", err)
		}
		if !done {
			t.Errorf("goal incomplete with only terminal statuses (%s)", ts)
		}
	}
}

func mustSetStatus(t *testing.T, f *fixture, id keys.Key, s models.Status) {
	t.Helper()
	if _, err := f.orch.SetStatus(id, s, "test"); err != nil {
		t.Fatalf("SetStatus(%s, %s): %v", id, s, err)
	}
}

func TestSetStatusPairsEventWithMutation(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")

	if _, err := f.orch.MarkRunning(ticket.ID, "agent picked up"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	changes := f.eventsOfType(events.TypeNodeStatusChanged)
	if len(changes) != 1 {
		t.Fatalf("NodeStatusChanged events = %d, want 1", len(changes))
	}
	sc := changes[0].(*events.NodeStatusChanged)
	if sc.OldStatus != models.StatusPending || sc.NewStatus != models.StatusRunning {
		t.Errorf("transition = %s -> %s", sc.OldStatus, sc.NewStatus)
	}
	if sc.Reason != "agent picked up" {
		t.Errorf("reason = %q", sc.Reason)
	}

	// Same status again: no mutation, no event.
	if _, err := f.orch.MarkRunning(ticket.ID, "again"); err != nil {
		t.Fatalf("repeat MarkRunning: %v", err)
	}
	if changes := f.eventsOfType(events.TypeNodeStatusChanged); len(changes) != 1 {
		t.Errorf("no-op transition emitted an event")
	}
}

func TestSetStatusRejectsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")
	mustSetStatus(t, f, ticket.ID, models.StatusCompleted)

	_, err := f.orch.SetStatus(ticket.ID, models.StatusRunning, "revive")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	n, _ := f.graph.FindByID(ticket.ID)
	if n.Base().Status != models.StatusCompleted {
		t.Errorf("node changed on rejected transition: %s", n.Base().Status)
	}
}

func TestMarkDescendantsCompleted(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	a := f.addTicket(t, root.ID, "a")
	b := f.addTicket(t, root.ID, "b")
	mustSetStatus(t, f, b.ID, models.StatusFailed)

	if err := f.orch.MarkDescendantsCompleted(root.ID, "shutdown"); err != nil {
		t.Fatalf("MarkDescendantsCompleted: %v", err)
	}

	got, _ := f.graph.FindByID(a.ID)
	if got.Base().Status != models.StatusCompleted {
		t.Errorf("pending descendant = %s, want COMPLETED", got.Base().Status)
	}
	got, _ = f.graph.FindByID(b.ID)
	if got.Base().Status != models.StatusFailed {
		t.Errorf("terminal descendant changed: %s", got.Base().Status)
	}
	got, _ = f.graph.FindByID(root.ID)
	if got.Base().Status != models.StatusPending {
		t.Errorf("root itself changed: %s", got.Base().Status)
	}
}

func TestEmitNodeErrorCarriesNodeContext(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")

	if err := f.orch.EmitNodeError(ticket.ID, "exec failed"); err != nil {
		t.Fatalf("EmitNodeError: %v", err)
	}

	errs := f.eventsOfType(events.TypeNodeError)
	if len(errs) != 1 {
		t.Fatalf("NodeError events = %d, want 1", len(errs))
	}
	ne := errs[0].(*events.NodeError)
	if ne.Title != "work" || ne.Kind != models.KindTicket {
		t.Errorf("error context = %q/%s", ne.Title, ne.Kind)
	}
}

func TestCheckGoalEmitsGoalCompleted(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	mustSetStatus(t, f, root.ID, models.StatusCompleted)

	done, err := f.orch.CheckGoal(root.ID)
	if err != nil {
		t.Fatalf("CheckGoal: %v", err)
	}
	if !done {
		t.Fatal("goal not complete")
	}
	if completed := f.eventsOfType(events.TypeGoalCompleted); len(completed) != 1 {
		t.Errorf("GoalCompleted events = %d, want 1", len(completed))
	}
}

type failingLog struct{}

func (failingLog) Append(events.Event) error                 { return errors.New("disk full") }
func (failingLog) List() ([]events.Event, error)             { return nil, nil }
func (failingLog) ListForNode(keys.Key) ([]events.Event, error) { return nil, nil }
func (failingLog) Replay(func(events.Event) error) error     { return nil }
func (failingLog) Count() (int, error)                       { return 0, nil }

func TestFailingEventLogAbortsPublish(t *testing.T) {
	graph := store.NewMemoryGraph()
	bus := events.NewBus()
	if err := bus.Subscribe(NewEventLogListener(failingLog{})); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	orch := New(graph, store.NewMemoryWorktrees(), bus)

	_, err := orch.StartRun("doomed")
	if err == nil {
		t.Fatal("StartRun should surface the event log failure")
	}
}

func TestRecordArtifactStoresAndAnnounces(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)

	a := models.NewArtifact(root.ID.Child(), root.ID, root.ID, "rendered_prompt", []byte("do the work"))
	if err := f.orch.RecordArtifact(a); err != nil {
		t.Fatalf("RecordArtifact: %v", err)
	}

	stored, err := f.artifacts.FindByKey(a.Key)
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if stored.ContentHash != models.HashContent([]byte("do the work")) {
		t.Errorf("stored hash = %s, want hash of payload", stored.ContentHash)
	}

	emitted := f.eventsOfType(events.TypeArtifactEmitted)
	if len(emitted) != 1 {
		t.Fatalf("ArtifactEmitted events = %d, want 1", len(emitted))
	}
	ev := emitted[0].(*events.ArtifactEmitted)
	if !ev.ArtifactKey.Equal(a.Key) {
		t.Errorf("event artifact key = %s, want %s", ev.ArtifactKey, a.Key)
	}
}

func TestRecordArtifactWithoutStoreFails(t *testing.T) {
	bus := events.NewBus()
	orch := New(store.NewMemoryGraph(), store.NewMemoryWorktrees(), bus)

	a := models.NewArtifact(keys.NewRoot(), keys.Key{}, keys.NewRoot(), "outcome", []byte("x"))
	if err := orch.RecordArtifact(a); err == nil {
		t.Fatal("expected error without an artifact store")
	}
}
