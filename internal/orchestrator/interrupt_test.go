package orchestrator

import (
	"testing"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/models"
)

func TestHandleRoutingInterruptStatusMapping(t *testing.T) {
	tests := []struct {
		itype      models.InterruptType
		wantStatus models.Status
		spawnsKind models.Kind
	}{
		{models.InterruptPause, models.StatusWaitingInput, models.KindInterrupt},
		{models.InterruptBranch, models.StatusWaitingInput, models.KindInterrupt},
		{models.InterruptHumanReview, models.StatusWaitingInput, models.KindReview},
		{models.InterruptAgentReview, models.StatusWaitingReview, models.KindReview},
		{models.InterruptStop, models.StatusCanceled, ""},
		{models.InterruptPrune, models.StatusPruned, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.itype), func(t *testing.T) {
			f := newFixture(t)
			root := f.startRun(t)
			ticket := f.addTicket(t, root.ID, "work")
			mustSetStatus(t, f, ticket.ID, models.StatusRunning)

			updated, err := f.orch.HandleRoutingInterrupt(ticket.ID, tt.itype, "because")
			if err != nil {
				t.Fatalf("HandleRoutingInterrupt: %v", err)
			}
			if updated.Base().Status != tt.wantStatus {
				t.Errorf("origin status = %s, want %s", updated.Base().Status, tt.wantStatus)
			}

			children, err := f.graph.FindByParentID(ticket.ID)
			if err != nil {
				t.Fatalf("FindByParentID: %v", err)
			}
			if tt.spawnsKind == "" {
				if len(children) != 0 {
					t.Errorf("terminal interrupt spawned %d children", len(children))
				}
			} else {
				if len(children) != 1 {
					t.Fatalf("spawned children = %d, want 1", len(children))
				}
				if children[0].Kind() != tt.spawnsKind {
					t.Errorf("spawned kind = %s, want %s", children[0].Kind(), tt.spawnsKind)
				}
			}

			statuses := f.eventsOfType(events.TypeInterruptStatus)
			if len(statuses) != 1 {
				t.Fatalf("InterruptStatus events = %d, want 1", len(statuses))
			}
			is := statuses[0].(*events.InterruptStatus)
			if is.InterruptStatus != models.InterruptRequested {
				t.Errorf("interrupt status = %s, want requested", is.InterruptStatus)
			}
		})
	}
}

func TestHandleRoutingInterruptKeepsChildListOnOrigin(t *testing.T) {
	tests := []models.InterruptType{
		models.InterruptPause,
		models.InterruptHumanReview,
		models.InterruptAgentReview,
		models.InterruptBranch,
	}
	for _, itype := range tests {
		t.Run(string(itype), func(t *testing.T) {
			f := newFixture(t)
			root := f.startRun(t)
			ticket := f.addTicket(t, root.ID, "work")
			mustSetStatus(t, f, ticket.ID, models.StatusRunning)

			if _, err := f.orch.HandleRoutingInterrupt(ticket.ID, itype, "because"); err != nil {
				t.Fatalf("HandleRoutingInterrupt: %v", err)
			}

			children, err := f.graph.FindByParentID(ticket.ID)
			if err != nil {
				t.Fatalf("FindByParentID: %v", err)
			}
			if len(children) != 1 {
				t.Fatalf("spawned children = %d, want 1", len(children))
			}
			childID := children[0].Base().ID

			stored, err := f.graph.FindByID(ticket.ID)
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			ids := stored.Base().ChildIDs
			if len(ids) != 1 || !ids[0].Equal(childID) {
				t.Errorf("origin ChildIDs = %v, want [%s]; child list lost on status write", ids, childID)
			}
		})
	}
}

func TestHandleRoutingInterruptUnknownType(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	if _, err := f.orch.HandleRoutingInterrupt(root.ID, models.InterruptType("reboot"), ""); err == nil {
		t.Fatal("unknown interrupt type should fail")
	}
}

func TestResolveInterruptResumesOrigin(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")
	mustSetStatus(t, f, ticket.ID, models.StatusRunning)

	if _, err := f.orch.HandleRoutingInterrupt(ticket.ID, models.InterruptPause, "user asked"); err != nil {
		t.Fatalf("HandleRoutingInterrupt: %v", err)
	}
	children, _ := f.graph.FindByParentID(ticket.ID)
	if len(children) != 1 {
		t.Fatalf("spawned children = %d", len(children))
	}
	interruptID := children[0].Base().ID

	resumed, err := f.orch.ResolveInterrupt(interruptID, "carry on")
	if err != nil {
		t.Fatalf("ResolveInterrupt: %v", err)
	}
	if resumed == nil || resumed.Base().Status != models.StatusPending {
		t.Errorf("origin not returned to PENDING: %+v", resumed)
	}

	stored, _ := f.graph.FindByID(interruptID)
	if stored.Base().Status != models.StatusCompleted {
		t.Errorf("interrupt node status = %s, want COMPLETED", stored.Base().Status)
	}
	in := stored.(models.InterruptNode)
	if in.Interrupt.Status != models.InterruptResolved {
		t.Errorf("interrupt context status = %s, want resolved", in.Interrupt.Status)
	}
	if in.Interrupt.Payload != "carry on" {
		t.Errorf("interrupt payload = %q", in.Interrupt.Payload)
	}

	if resolved := f.eventsOfType(events.TypeInterruptResolved); len(resolved) != 1 {
		t.Errorf("InterruptResolved events = %d, want 1", len(resolved))
	}
	statuses := f.eventsOfType(events.TypeInterruptStatus)
	if len(statuses) != 2 {
		t.Fatalf("InterruptStatus events = %d, want 2 (requested + resolved)", len(statuses))
	}
	if last := statuses[1].(*events.InterruptStatus); last.InterruptStatus != models.InterruptResolved {
		t.Errorf("final interrupt status = %s, want resolved", last.InterruptStatus)
	}
}

func TestResolveInterruptOnReviewChild(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")
	mustSetStatus(t, f, ticket.ID, models.StatusRunning)

	if _, err := f.orch.HandleRoutingInterrupt(ticket.ID, models.InterruptAgentReview, "please check"); err != nil {
		t.Fatalf("HandleRoutingInterrupt: %v", err)
	}
	children, _ := f.graph.FindByParentID(ticket.ID)
	if len(children) != 1 || children[0].Kind() != models.KindReview {
		t.Fatalf("expected one review child, got %d", len(children))
	}

	if _, err := f.orch.ResolveInterrupt(children[0].Base().ID, "looks fine"); err != nil {
		t.Fatalf("ResolveInterrupt: %v", err)
	}

	origin, _ := f.graph.FindByID(ticket.ID)
	if origin.Base().Status != models.StatusPending {
		t.Errorf("origin status = %s, want PENDING", origin.Base().Status)
	}
}

func TestResolveInterruptOnPlainNodeFails(t *testing.T) {
	f := newFixture(t)
	root := f.startRun(t)
	ticket := f.addTicket(t, root.ID, "work")

	if _, err := f.orch.ResolveInterrupt(ticket.ID, ""); err == nil {
		t.Fatal("resolving a non-interrupt node should fail")
	}
}
