package orchestrator

import (
	"fmt"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// interruptTarget maps an interrupt type to the status its origin node
// takes while the interrupt is outstanding.
func interruptTarget(t models.InterruptType) (models.Status, error) {
	switch t {
	case models.InterruptPause, models.InterruptHumanReview, models.InterruptBranch:
		return models.StatusWaitingInput, nil
	case models.InterruptAgentReview:
		return models.StatusWaitingReview, nil
	case models.InterruptStop:
		return models.StatusCanceled, nil
	case models.InterruptPrune:
		return models.StatusPruned, nil
	}
	return "", fmt.Errorf("unknown interrupt type %q", t)
}

// HandleRoutingInterrupt reacts to an agent raising an interrupt on a
// node. Pause, human-review, and branch requests park the origin in
// WAITING_INPUT; agent reviews park it in WAITING_REVIEW; stop cancels it
// and prune removes it from active work. Review interrupts spawn a Review
// child node, pause and branch spawn an Interrupt child node; stop and
// prune are terminal and spawn nothing.
func (o *Orchestrator) HandleRoutingInterrupt(origin keys.Key, itype models.InterruptType, reason string) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	target, err := interruptTarget(itype)
	if err != nil {
		return nil, err
	}
	n, err := o.graph.FindByID(origin)
	if err != nil {
		return nil, fmt.Errorf("handle interrupt: %w", err)
	}

	ctx := models.InterruptContext{
		Type:         itype,
		Status:       models.InterruptRequested,
		Reason:       reason,
		OriginNodeID: origin,
	}

	var child models.Node
	switch itype {
	case models.InterruptHumanReview, models.InterruptAgentReview:
		reviewType := models.ReviewTypeAgent
		if itype == models.InterruptHumanReview {
			reviewType = models.ReviewTypeHuman
		}
		childID := origin.Child()
		ctx.InterruptNodeID = childID
		child = models.ReviewNode{
			Core:           models.NewCore(childID, "Review "+n.Base().Title, reason, origin),
			ReviewedNodeID: origin,
			ReviewType:     reviewType,
			Content:        reason,
			Interrupt:      &ctx,
		}
	case models.InterruptPause, models.InterruptBranch:
		childID := origin.Child()
		ctx.InterruptNodeID = childID
		child = models.InterruptNode{
			Core:      models.NewCore(childID, "Interrupt: "+string(itype), reason, origin),
			Interrupt: ctx,
		}
	}

	if child != nil {
		if _, err := o.addChildLocked(origin, child); err != nil {
			return nil, fmt.Errorf("spawn interrupt child: %w", err)
		}
		// Re-read: the attach appended the child to the origin's child
		// list, and the status write below must not save a stale copy.
		n, err = o.graph.FindByID(origin)
		if err != nil {
			return nil, fmt.Errorf("handle interrupt: %w", err)
		}
	}

	updated, err := o.setStatusLocked(n, target, "interrupt: "+string(itype))
	if err != nil {
		return nil, err
	}

	err = o.publish(&events.InterruptStatus{
		Header:          events.NewHeader(),
		NodeID:          origin,
		InterruptType:   itype,
		InterruptStatus: models.InterruptRequested,
		OriginNodeID:    origin,
	})
	if err != nil {
		return nil, err
	}

	switch itype {
	case models.InterruptHumanReview, models.InterruptAgentReview:
		reviewType := models.ReviewTypeAgent
		if itype == models.InterruptHumanReview {
			reviewType = models.ReviewTypeHuman
		}
		err = o.publish(&events.NodeReviewRequested{
			Header:       events.NewHeader(),
			NodeID:       origin,
			ReviewNodeID: ctx.InterruptNodeID,
			ReviewType:   reviewType,
			Content:      reason,
		})
	case models.InterruptBranch:
		err = o.publish(&events.NodeBranchRequested{
			Header: events.NewHeader(),
			NodeID: origin,
			Reason: reason,
		})
	case models.InterruptPrune:
		err = o.publish(&events.NodePruned{
			Header: events.NewHeader(),
			NodeID: origin,
			Reason: reason,
		})
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ResolveInterrupt answers an outstanding interrupt. The interrupt (or
// review) child node completes and the origin node returns to PENDING so
// routing can pick it up again.
func (o *Orchestrator) ResolveInterrupt(interruptID keys.Key, content string) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.graph.FindByID(interruptID)
	if err != nil {
		return nil, fmt.Errorf("resolve interrupt: %w", err)
	}

	var ctx models.InterruptContext
	switch in := n.(type) {
	case models.InterruptNode:
		ctx = in.Interrupt
		ctx.Status = models.InterruptResolved
		ctx.Payload = content
		in.Interrupt = ctx
		n = in
	case models.ReviewNode:
		if in.Interrupt == nil {
			return nil, fmt.Errorf("resolve interrupt: review %s has no pending interrupt", interruptID)
		}
		ctx = *in.Interrupt
		ctx.Status = models.InterruptResolved
		ctx.Payload = content
		in.Interrupt = &ctx
		n = in
	default:
		return nil, fmt.Errorf("resolve interrupt: node %s is a %s", interruptID, n.Kind())
	}

	if _, err := o.setStatusLocked(n, models.StatusCompleted, "interrupt resolved"); err != nil {
		return nil, err
	}

	var resumed models.Node
	if !ctx.OriginNodeID.IsZero() {
		origin, err := o.graph.FindByID(ctx.OriginNodeID)
		if err == nil && !origin.Base().Status.Terminal() {
			resumed, err = o.setStatusLocked(origin, models.StatusPending, "interrupt resolved")
			if err != nil {
				return nil, err
			}
		}
	}

	err = o.publish(&events.InterruptResolved{
		Header:          events.NewHeader(),
		NodeID:          ctx.OriginNodeID,
		InterruptNodeID: interruptID,
		InterruptType:   ctx.Type,
		Content:         content,
	})
	if err != nil {
		return nil, err
	}
	err = o.publish(&events.InterruptStatus{
		Header:          events.NewHeader(),
		NodeID:          ctx.OriginNodeID,
		InterruptType:   ctx.Type,
		InterruptStatus: models.InterruptResolved,
		OriginNodeID:    ctx.OriginNodeID,
		ResumeNodeID:    ctx.ResumeNodeID,
	})
	if err != nil {
		return nil, err
	}
	return resumed, nil
}
