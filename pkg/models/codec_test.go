package models

import (
	"testing"

	"github.com/ShayCichocki/loom/pkg/keys"
)

func TestNodeCodec_RoundTrip(t *testing.T) {
	root := keys.NewRoot()
	reviewed := root.Child()

	review := ReviewNode{
		Core:           NewCore(root.Child(), "Review: ticket", "review the diff", root),
		ReviewedNodeID: reviewed,
		ReviewType:     ReviewTypeAgent,
		Approved:       true,
		Feedback:       "approved, looks correct",
	}

	data, err := MarshalNode(review)
	if err != nil {
		t.Fatalf("MarshalNode() error = %v", err)
	}

	decoded, err := UnmarshalNode(data)
	if err != nil {
		t.Fatalf("UnmarshalNode() error = %v", err)
	}

	got, ok := decoded.(ReviewNode)
	if !ok {
		t.Fatalf("decoded variant = %T, want ReviewNode", decoded)
	}
	if !got.ReviewedNodeID.Equal(reviewed) {
		t.Errorf("ReviewedNodeID lost in round trip")
	}
	if !got.Approved || got.ReviewType != ReviewTypeAgent {
		t.Errorf("review fields lost: %+v", got)
	}
	if !got.Base().ID.Equal(review.ID) {
		t.Errorf("node ID lost in round trip")
	}
}

func TestNodeCodec_EveryKind(t *testing.T) {
	root := keys.NewRoot()
	core := NewCore(root, "n", "", keys.Key{})

	variants := []Node{
		OrchestratorNode{Core: core, Goal: "ship it"},
		PlanningNode{Core: core, PlanContent: "plan"},
		TicketNode{Core: core, TicketDetails: "details"},
		ReviewNode{Core: core, ReviewType: ReviewTypeHuman},
		MergeNode{Core: core, Scope: MergeScopeIntegrate},
		DiscoveryNode{Core: core, Focus: "storage layer"},
		CollectorNode{Core: core, Goal: "collect"},
		InterruptNode{Core: core, Interrupt: InterruptContext{Type: InterruptPause, Status: InterruptRequested}},
		SummaryNode{Core: core, Summary: "done"},
		AskPermissionNode{Core: core, Action: "rm -rf build"},
		DiscoveryOrchestratorNode{Core: core},
		DiscoveryCollectorNode{Core: core},
		PlanningOrchestratorNode{Core: core},
		PlanningCollectorNode{Core: core},
		TicketOrchestratorNode{Core: core},
		TicketCollectorNode{Core: core},
	}
	if len(variants) != len(Kinds()) {
		t.Fatalf("test covers %d variants, kind set has %d", len(variants), len(Kinds()))
	}

	for _, v := range variants {
		t.Run(string(v.Kind()), func(t *testing.T) {
			data, err := MarshalNode(v)
			if err != nil {
				t.Fatalf("MarshalNode() error = %v", err)
			}
			decoded, err := UnmarshalNode(data)
			if err != nil {
				t.Fatalf("UnmarshalNode() error = %v", err)
			}
			if decoded.Kind() != v.Kind() {
				t.Errorf("round trip kind = %q, want %q", decoded.Kind(), v.Kind())
			}
		})
	}
}

func TestUnmarshalNode_UnknownKind(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{"kind":"bogus","node":{}}`))
	if err == nil {
		t.Fatalf("unknown kind must fail, not silently no-op")
	}
}
