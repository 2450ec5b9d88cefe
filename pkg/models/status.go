package models

// Status represents the lifecycle state of a node.
type Status string

const (
	// StatusPending indicates the node is not yet ready to execute.
	StatusPending Status = "PENDING"
	// StatusReady indicates the node is ready to execute.
	StatusReady Status = "READY"
	// StatusRunning indicates the node is currently executing.
	StatusRunning Status = "RUNNING"
	// StatusWaitingReview indicates the node awaits an agent or human review.
	StatusWaitingReview Status = "WAITING_REVIEW"
	// StatusWaitingInput indicates the node awaits user input.
	StatusWaitingInput Status = "WAITING_INPUT"
	// StatusCompleted indicates the node finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates execution failed.
	StatusFailed Status = "FAILED"
	// StatusCanceled indicates the node was manually canceled.
	StatusCanceled Status = "CANCELED"
	// StatusPruned indicates the node was removed from the graph.
	StatusPruned Status = "PRUNED"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusRunning, StatusWaitingReview,
		StatusWaitingInput, StatusCompleted, StatusFailed, StatusCanceled,
		StatusPruned:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further work happens on a node in this status.
// WAITING_REVIEW and WAITING_INPUT are paused, not terminal; they may loop
// back to RUNNING.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusPruned:
		return true
	default:
		return false
	}
}

// Blocking returns true if a node in this status blocks goal completion.
func (s Status) Blocking() bool {
	switch s {
	case StatusPending, StatusRunning, StatusWaitingReview, StatusWaitingInput:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// Terminal statuses never revert to non-terminal ones; any terminal node may
// still be pruned. Setting the same status again is a permitted no-op.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s == StatusPruned {
		return false
	}
	if s.Terminal() {
		return next == StatusPruned
	}
	return true
}
