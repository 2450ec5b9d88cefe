package models

import (
	"time"

	"github.com/ShayCichocki/loom/pkg/keys"
)

// WorktreeStatus tracks the lifecycle of an isolated worktree.
type WorktreeStatus string

const (
	// WorktreeActive indicates the worktree holds unmerged work.
	WorktreeActive WorktreeStatus = "active"
	// WorktreeMerged indicates the worktree's changes landed in its target.
	WorktreeMerged WorktreeStatus = "merged"
	// WorktreeDiscarded indicates the worktree was dropped without merging.
	WorktreeDiscarded WorktreeStatus = "discarded"
)

// Valid returns true if the status is a known value.
func (s WorktreeStatus) Valid() bool {
	switch s {
	case WorktreeActive, WorktreeMerged, WorktreeDiscarded:
		return true
	default:
		return false
	}
}

// Worktree describes an isolated working copy owned by a node. The engine
// tracks worktree state only; the mechanics of creating and merging real
// worktrees belong to an external collaborator.
type Worktree struct {
	// ID is the unique worktree identifier.
	ID string `json:"id"`
	// NodeID is the graph node that owns this worktree.
	NodeID keys.Key `json:"node_id"`
	// ParentID is the worktree this one was branched from, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Path is the filesystem location.
	Path string `json:"path,omitempty"`
	// Branch is the VCS branch name.
	Branch string `json:"branch,omitempty"`
	// Status is the current lifecycle state.
	Status WorktreeStatus `json:"status"`
	// CreatedAt is when the worktree was registered.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the worktree record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// WithStatus returns a copy of the worktree with the status replaced.
func (w Worktree) WithStatus(s WorktreeStatus) Worktree {
	w.Status = s
	w.UpdatedAt = time.Now().UTC()
	return w
}
