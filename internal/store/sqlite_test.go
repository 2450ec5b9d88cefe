package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSQLiteGraphRoundTrip(t *testing.T) {
	g := NewSQLiteGraph(openTestDB(t))
	root := keys.NewRoot()
	child := root.Child()

	orch := models.OrchestratorNode{Core: models.NewCore(root, "goal", "the objective", keys.Key{}), Goal: "the objective"}
	ticket := models.TicketNode{Core: models.NewCore(child, "ticket", "", root), TicketDetails: "do the thing"}
	for _, n := range []models.Node{orch, ticket} {
		if err := g.Save(n); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := g.FindByID(child)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	tk, ok := got.(models.TicketNode)
	if !ok {
		t.Fatalf("decoded type = %T, want TicketNode", got)
	}
	if tk.TicketDetails != "do the thing" {
		t.Errorf("ticket details = %q", tk.TicketDetails)
	}
	if !tk.ParentID.Equal(root) {
		t.Errorf("parent = %s, want %s", tk.ParentID, root)
	}

	// Upsert replaces the stored value.
	tk.Title = "renamed"
	if err := g.Save(tk); err != nil {
		t.Fatalf("Save upsert: %v", err)
	}
	got, err = g.FindByID(child)
	if err != nil {
		t.Fatalf("FindByID after upsert: %v", err)
	}
	if got.Base().Title != "renamed" {
		t.Errorf("title after upsert = %q", got.Base().Title)
	}

	count, err := g.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestSQLiteGraphQueries(t *testing.T) {
	g := NewSQLiteGraph(openTestDB(t))
	root := keys.NewRoot()
	other := keys.NewRoot()

	ticketA := models.TicketNode{Core: models.NewCore(root.Child(), "a", "", root)}
	ticketB := models.TicketNode{Core: models.NewCore(root.Child(), "b", "", root)}
	deep := models.ReviewNode{Core: models.NewCore(ticketA.ID.Child(), "review a", "", ticketA.ID), ReviewedNodeID: ticketA.ID}
	stranger := models.TicketNode{Core: models.NewCore(other.Child(), "elsewhere", "", other)}
	for _, n := range []models.Node{
		models.OrchestratorNode{Core: models.NewCore(root, "goal", "", keys.Key{})},
		models.OrchestratorNode{Core: models.NewCore(other, "other", "", keys.Key{})},
		ticketA, ticketB, deep, stranger,
	} {
		if err := g.Save(n); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	byParent, err := g.FindByParentID(root)
	if err != nil {
		t.Fatalf("FindByParentID: %v", err)
	}
	if len(byParent) != 2 {
		t.Errorf("children of root = %d, want 2", len(byParent))
	}

	subtree, err := g.FindByKeyPrefix(root)
	if err != nil {
		t.Fatalf("FindByKeyPrefix: %v", err)
	}
	if len(subtree) != 4 {
		t.Errorf("subtree of root = %d nodes, want 4", len(subtree))
	}

	reviews, err := g.FindByKind(models.KindReview)
	if err != nil {
		t.Fatalf("FindByKind: %v", err)
	}
	if len(reviews) != 1 {
		t.Errorf("reviews = %d, want 1", len(reviews))
	}

	if err := g.Delete(stranger.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := g.Delete(stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing err = %v, want ErrNotFound", err)
	}
	exists, err := g.Exists(stranger.ID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("deleted node still exists")
	}
}

func TestSQLiteEventLogAppendOrder(t *testing.T) {
	l := NewSQLiteEventLog(openTestDB(t))
	root := keys.NewRoot()
	child := root.Child()

	var ids []string
	for _, e := range []events.Event{
		&events.NodeAdded{Header: events.NewHeader(), NodeID: root, Kind: models.KindOrchestrator},
		&events.NodeAdded{Header: events.NewHeader(), NodeID: child, Kind: models.KindTicket, ParentID: root},
		&events.NodeStatusChanged{Header: events.NewHeader(), NodeID: child, OldStatus: models.StatusPending, NewStatus: models.StatusRunning},
	} {
		ids = append(ids, e.EventID())
		if err := l.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("List = %d events, want %d", len(got), len(ids))
	}
	for i, e := range got {
		if e.EventID() != ids[i] {
			t.Errorf("event[%d] = %s, want %s", i, e.EventID(), ids[i])
		}
	}

	forChild, err := l.ListForNode(child)
	if err != nil {
		t.Fatalf("ListForNode: %v", err)
	}
	if len(forChild) != 2 {
		t.Errorf("events for child = %d, want 2", len(forChild))
	}

	count, err := l.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestSQLiteEventLogRejectsDuplicateEventID(t *testing.T) {
	l := NewSQLiteEventLog(openTestDB(t))
	e := &events.Pause{Header: events.NewHeader(), NodeID: keys.NewRoot()}
	if err := l.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(e); err == nil {
		t.Fatal("appending the same event twice should fail")
	}
}

func TestSQLiteWorktreesRoundTrip(t *testing.T) {
	s := NewSQLiteWorktrees(openTestDB(t))
	node := keys.NewRoot().Child()
	w := models.Worktree{
		ID:     "wt-1",
		NodeID: node,
		Path:   "/tmp/wt-1",
		Branch: "loom/wt-1",
		Status: models.WorktreeActive,
	}
	w.CreatedAt = w.UpdatedAt
	if err := s.Save(w); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.FindByID("wt-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !got.NodeID.Equal(node) || got.Branch != "loom/wt-1" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := s.Save(got.WithStatus(models.WorktreeDiscarded)); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	discarded, err := s.FindByStatus(models.WorktreeDiscarded)
	if err != nil {
		t.Fatalf("FindByStatus: %v", err)
	}
	if len(discarded) != 1 {
		t.Errorf("discarded = %d, want 1", len(discarded))
	}

	byNode, err := s.FindByNodeID(node)
	if err != nil {
		t.Fatalf("FindByNodeID: %v", err)
	}
	if len(byNode) != 1 {
		t.Errorf("worktrees for node = %d, want 1", len(byNode))
	}
}

func TestSQLiteArtifactsDedup(t *testing.T) {
	s := NewSQLiteArtifacts(openTestDB(t))
	execution := keys.NewRoot()
	key := execution.Child()
	a := models.NewArtifact(key, execution, execution, "prompt", []byte("rendered prompt"))
	a.Metadata["template"] = "planning-v2"

	if err := s.Save(a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(a); err != nil {
		t.Fatalf("idempotent Save: %v", err)
	}

	got, err := s.FindByKey(key)
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if got.ContentHash != a.ContentHash {
		t.Errorf("hash = %s, want %s", got.ContentHash, a.ContentHash)
	}
	if got.Metadata["template"] != "planning-v2" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if string(got.Payload) != "rendered prompt" {
		t.Errorf("payload = %q", got.Payload)
	}

	under, err := s.FindByKeyPrefix(execution)
	if err != nil {
		t.Fatalf("FindByKeyPrefix: %v", err)
	}
	if len(under) != 1 {
		t.Errorf("artifacts under execution = %d, want 1", len(under))
	}

	_, err = s.FindByKey(execution.Child())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing artifact err = %v, want ErrNotFound", err)
	}
}
