package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// ReviewOutcome carries the routed result of a review agent or human.
type ReviewOutcome struct {
	// Approved signals the reviewed work may proceed to merge.
	Approved bool
	// NeedsHuman signals the agent could not decide and a person must.
	NeedsHuman bool
	// Feedback is the reviewer's result text.
	Feedback string
}

// ParseReviewOutcome derives an outcome from a reviewer's result text.
// Approval is signaled by the word "approved" in the result.
func ParseReviewOutcome(result string) ReviewOutcome {
	lower := strings.ToLower(result)
	return ReviewOutcome{
		Approved:   strings.Contains(lower, "approved"),
		NeedsHuman: strings.Contains(lower, "human"),
		Feedback:   result,
	}
}

// CompleteReview applies a review result to a review node.
//
// Approval completes the review and creates exactly one Merge node as a
// child of the review node, status READY, referencing the reviewed node.
// Rejection or an undecided agent moves the review to WAITING_INPUT, no
// merge node, and asks for a human review.
func (o *Orchestrator) CompleteReview(id keys.Key, outcome ReviewOutcome) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.graph.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("complete review: %w", err)
	}
	review, ok := n.(models.ReviewNode)
	if !ok {
		return nil, fmt.Errorf("complete review: node %s is a %s, not a review", id, n.Kind())
	}

	review.Feedback = outcome.Feedback

	if !outcome.Approved || outcome.NeedsHuman {
		review.Rejected = !outcome.Approved
		updated, err := o.setStatusLocked(review, models.StatusWaitingInput, "review needs revision")
		if err != nil {
			return nil, err
		}
		err = o.publish(&events.NodeReviewRequested{
			Header:       events.NewHeader(),
			NodeID:       review.ReviewedNodeID,
			ReviewNodeID: review.ID,
			ReviewType:   models.ReviewTypeHuman,
			Content:      outcome.Feedback,
		})
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	review.Approved = true
	updated, err := o.setStatusLocked(review, models.StatusCompleted, "review approved")
	if err != nil {
		return nil, err
	}

	merge := o.buildMergeNode(review)
	if _, err := o.addChildLocked(review.ID, merge); err != nil {
		return nil, fmt.Errorf("create merge node: %w", err)
	}
	return updated, nil
}

// buildMergeNode prepares the READY merge node that follows an approved
// review, carrying over the reviewed node's worktree references when the
// reviewed node has them.
func (o *Orchestrator) buildMergeNode(review models.ReviewNode) models.MergeNode {
	core := models.NewCore(review.ID.Child(), "Merge "+review.Title, "", review.ID)
	core.Status = models.StatusReady
	merge := models.MergeNode{
		Core:         core,
		MergedNodeID: review.ReviewedNodeID,
		Scope:        models.MergeScopeIntegrate,
	}

	if reviewed, err := o.graph.FindByID(review.ReviewedNodeID); err == nil {
		switch rn := reviewed.(type) {
		case models.TicketNode:
			merge.ChildWorktreeID = rn.WorktreeID
			merge.TargetWorktreeID = rn.TargetWorktreeID
		case models.TicketOrchestratorNode:
			merge.ChildWorktreeID = rn.WorktreeID
			merge.TargetWorktreeID = rn.TargetWorktreeID
		}
	}
	return merge
}
