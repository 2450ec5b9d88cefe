package orchestrator

import (
	"testing"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

func (f *fixture) addReview(t *testing.T, reviewed models.TicketNode) models.ReviewNode {
	t.Helper()
	review := models.ReviewNode{
		Core:           models.NewCore(reviewed.ID.Child(), "Review "+reviewed.Title, "", reviewed.ID),
		ReviewedNodeID: reviewed.ID,
		ReviewType:     models.ReviewTypeAgent,
		Content:        reviewed.Output,
	}
	added, err := f.orch.AddChild(reviewed.ID, review)
	if err != nil {
		t.Fatalf("AddChild review: %v", err)
	}
	return added.(models.ReviewNode)
}

func TestParseReviewOutcome(t *testing.T) {
	tests := []struct {
		result     string
		approved   bool
		needsHuman bool
	}{
		{"Approved: looks good", true, false},
		{"changes approved after second pass", true, false},
		{"rejected: tests missing", false, false},
		{"needs human judgment here", false, true},
		{"", false, false},
	}
	for _, tt := range tests {
		got := ParseReviewOutcome(tt.result)
		if got.Approved != tt.approved || got.NeedsHuman != tt.needsHuman {
			t.Errorf("ParseReviewOutcome(%q) = %+v", tt.result, got)
		}
	}
}

func TestCompleteReviewApproved(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "implement parser")
	review := f.addReview(t, ticket)

	updated, err := f.orch.CompleteReview(review.ID, ReviewOutcome{Approved: true, Feedback: "approved"})
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if updated.Base().Status != models.StatusCompleted {
		t.Errorf("review status = %s, want COMPLETED", updated.Base().Status)
	}

	merges, err := f.graph.FindByKind(models.KindMerge)
	if err != nil {
		t.Fatalf("FindByKind: %v", err)
	}
	if len(merges) != 1 {
		t.Fatalf("merge nodes = %d, want exactly 1", len(merges))
	}
	merge := merges[0].(models.MergeNode)
	if !merge.ParentID.Equal(review.ID) {
		t.Errorf("merge parent = %s, want review %s", merge.ParentID, review.ID)
	}
	if merge.Status != models.StatusReady {
		t.Errorf("merge status = %s, want READY", merge.Status)
	}
	if !merge.MergedNodeID.Equal(ticket.ID) {
		t.Errorf("merge references %s, want reviewed node %s", merge.MergedNodeID, ticket.ID)
	}

	stored, _ := f.graph.FindByID(review.ID)
	if got := stored.(models.ReviewNode); !got.Approved {
		t.Error("stored review not marked approved")
	}
}

func TestCompleteReviewCarriesWorktreeRefs(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := models.TicketNode{
		Core:             models.NewCore(root.ID.Child(), "work", "", root.ID),
		WorktreeID:       "wt-child",
		TargetWorktreeID: "wt-main",
	}
	added, err := f.orch.AddChild(root.ID, ticket)
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	review := f.addReview(t, added.(models.TicketNode))

	if _, err := f.orch.CompleteReview(review.ID, ReviewOutcome{Approved: true}); err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}

	merges, _ := f.graph.FindByKind(models.KindMerge)
	if len(merges) != 1 {
		t.Fatalf("merge nodes = %d", len(merges))
	}
	merge := merges[0].(models.MergeNode)
	if merge.ChildWorktreeID != "wt-child" || merge.TargetWorktreeID != "wt-main" {
		t.Errorf("worktree refs = %q -> %q", merge.ChildWorktreeID, merge.TargetWorktreeID)
	}
}

func TestCompleteReviewRejected(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "implement parser")
	review := f.addReview(t, ticket)

	updated, err := f.orch.CompleteReview(review.ID, ParseReviewOutcome("rejected: tests missing"))
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if updated.Base().Status != models.StatusWaitingInput {
		t.Errorf("review status = %s, want WAITING_INPUT", updated.Base().Status)
	}

	merges, _ := f.graph.FindByKind(models.KindMerge)
	if len(merges) != 0 {
		t.Errorf("merge nodes = %d, want 0 on rejection", len(merges))
	}

	requested := f.eventsOfType(events.TypeNodeReviewRequested)
	if len(requested) != 1 {
		t.Fatalf("NodeReviewRequested events = %d, want 1", len(requested))
	}
	rr := requested[0].(*events.NodeReviewRequested)
	if rr.ReviewType != models.ReviewTypeHuman {
		t.Errorf("review type = %s, want human", rr.ReviewType)
	}

	stored, _ := f.graph.FindByID(review.ID)
	if got := stored.(models.ReviewNode); !got.Rejected {
		t.Error("stored review not marked rejected")
	}
}

func TestCompleteReviewNeedsHuman(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "implement parser")
	review := f.addReview(t, ticket)

	updated, err := f.orch.CompleteReview(review.ID, ReviewOutcome{Approved: true, NeedsHuman: true, Feedback: "needs human eyes"})
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if updated.Base().Status != models.StatusWaitingInput {
		t.Errorf("review status = %s, want WAITING_INPUT", updated.Base().Status)
	}
	if merges, _ := f.graph.FindByKind(models.KindMerge); len(merges) != 0 {
		t.Errorf("merge created despite human escalation")
	}
	stored, _ := f.graph.FindByID(review.ID)
	if got := stored.(models.ReviewNode); got.Rejected {
		t.Error("human escalation marked as rejection")
	}
}

func TestCompleteReviewWrongKind(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "not a review")

	if _, err := f.orch.CompleteReview(ticket.ID, ReviewOutcome{Approved: true}); err == nil {
		t.Fatal("CompleteReview on a ticket should fail")
	}
}

func TestCompleteReviewMissingNode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.CompleteReview(keys.NewRoot(), ReviewOutcome{}); err == nil {
		t.Fatal("CompleteReview on a missing node should fail")
	}
}
