package orchestrator

import (
	"fmt"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// MergeOutcome carries the routed result of a merge attempt.
type MergeOutcome struct {
	// Conflict signals conflicting changes were detected; resolution is
	// deferred to a human or agent follow-up, never auto-resolved.
	Conflict bool
	// Detail describes the conflict or the merge result.
	Detail string
}

// CompleteMerge applies a merge result to a merge node.
//
// A conflict moves the merge node to WAITING_INPUT and leaves the child
// worktree's status untouched. A clean merge completes the node and marks
// the child worktree merged or discarded per the node's scope.
func (o *Orchestrator) CompleteMerge(id keys.Key, outcome MergeOutcome) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.graph.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("complete merge: %w", err)
	}
	merge, ok := n.(models.MergeNode)
	if !ok {
		return nil, fmt.Errorf("complete merge: node %s is a %s, not a merge", id, n.Kind())
	}

	if outcome.Conflict {
		return o.stallMergeOnConflict(merge, outcome.Detail)
	}

	updated, err := o.setStatusLocked(merge, models.StatusCompleted, "merge completed")
	if err != nil {
		return nil, err
	}
	if err := o.settleWorktree(merge); err != nil {
		return nil, err
	}
	err = o.publish(&events.MergePhaseCompleted{
		Header:  events.NewHeader(),
		NodeID:  merge.ID,
		Phase:   "integrate",
		Success: true,
		Detail:  outcome.Detail,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) stallMergeOnConflict(merge models.MergeNode, detail string) (models.Node, error) {
	merge.ConflictDetail = detail
	merge.Interrupt = &models.InterruptContext{
		Type:         models.InterruptHumanReview,
		Status:       models.InterruptRequested,
		Reason:       detail,
		OriginNodeID: merge.ID,
	}

	updated, err := o.setStatusLocked(merge, models.StatusWaitingInput, "merge conflict")
	if err != nil {
		return nil, err
	}
	err = o.publish(&events.InterruptRequested{
		Header:        events.NewHeader(),
		NodeID:        merge.ID,
		InterruptType: models.InterruptHumanReview,
		Reason:        detail,
	})
	if err != nil {
		return nil, err
	}
	err = o.publish(&events.MergePhaseCompleted{
		Header:  events.NewHeader(),
		NodeID:  merge.ID,
		Phase:   "integrate",
		Success: false,
		Detail:  detail,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// settleWorktree marks the merged child worktree per the merge scope. A
// merge node without a worktree reference settles nothing.
func (o *Orchestrator) settleWorktree(merge models.MergeNode) error {
	if merge.ChildWorktreeID == "" {
		return nil
	}
	wt, err := o.worktrees.FindByID(merge.ChildWorktreeID)
	if err != nil {
		return fmt.Errorf("settle worktree %s: %w", merge.ChildWorktreeID, err)
	}

	switch merge.Scope {
	case models.MergeScopeDiscard:
		if err := o.worktrees.Save(wt.WithStatus(models.WorktreeDiscarded)); err != nil {
			return fmt.Errorf("discard worktree %s: %w", wt.ID, err)
		}
		return o.publish(&events.WorktreeDiscarded{
			Header:     events.NewHeader(),
			WorktreeID: wt.ID,
			NodeID:     merge.ID,
			Reason:     "merge scope discard",
		})
	default:
		if err := o.worktrees.Save(wt.WithStatus(models.WorktreeMerged)); err != nil {
			return fmt.Errorf("mark worktree %s merged: %w", wt.ID, err)
		}
		return o.publish(&events.WorktreeMerged{
			Header:           events.NewHeader(),
			WorktreeID:       wt.ID,
			TargetWorktreeID: merge.TargetWorktreeID,
			NodeID:           merge.ID,
		})
	}
}

// RegisterWorktree records a new worktree for a node and announces it.
func (o *Orchestrator) RegisterWorktree(w models.Worktree) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.worktrees.Save(w); err != nil {
		return fmt.Errorf("register worktree: %w", err)
	}
	if w.ParentID != "" {
		return o.publish(&events.WorktreeBranched{
			Header:           events.NewHeader(),
			WorktreeID:       w.ID,
			ParentWorktreeID: w.ParentID,
			NodeID:           w.NodeID,
			Branch:           w.Branch,
		})
	}
	return o.publish(&events.WorktreeCreated{
		Header:     events.NewHeader(),
		WorktreeID: w.ID,
		NodeID:     w.NodeID,
		Path:       w.Path,
		Branch:     w.Branch,
	})
}
