// Package models defines the closed set of workflow graph node variants,
// their shared status lifecycle, and the worktree and artifact value types.
// Nodes are immutable values: every mutation goes through whole-value
// replacement, never in-place modification.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/loom/pkg/keys"
)

// ErrInvalidTransition indicates a status change the node lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// Kind classifies a node variant. The set is closed: every Kind listed here
// has exactly one Node implementation, and UnmarshalNode dispatches total
// over this set.
type Kind string

const (
	KindOrchestrator          Kind = "orchestrator"
	KindPlanning              Kind = "planning"
	KindTicket                Kind = "ticket"
	KindReview                Kind = "review"
	KindMerge                 Kind = "merge"
	KindDiscovery             Kind = "discovery"
	KindCollector             Kind = "collector"
	KindInterrupt             Kind = "interrupt"
	KindSummary               Kind = "summary"
	KindAskPermission         Kind = "ask_permission"
	KindDiscoveryOrchestrator Kind = "discovery_orchestrator"
	KindDiscoveryCollector    Kind = "discovery_collector"
	KindPlanningOrchestrator  Kind = "planning_orchestrator"
	KindPlanningCollector     Kind = "planning_collector"
	KindTicketOrchestrator    Kind = "ticket_orchestrator"
	KindTicketCollector       Kind = "ticket_collector"
)

// Kinds returns every known node kind.
func Kinds() []Kind {
	return []Kind{
		KindOrchestrator, KindPlanning, KindTicket, KindReview, KindMerge,
		KindDiscovery, KindCollector, KindInterrupt, KindSummary,
		KindAskPermission, KindDiscoveryOrchestrator, KindDiscoveryCollector,
		KindPlanningOrchestrator, KindPlanningCollector,
		KindTicketOrchestrator, KindTicketCollector,
	}
}

// Valid returns true if the kind is a known value.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Core holds the attributes shared by every node variant.
type Core struct {
	// ID is the hierarchical key addressing this node.
	ID keys.Key `json:"node_id"`
	// Title is the short human-readable name.
	Title string `json:"title"`
	// Description provides detail about the node's work.
	Description string `json:"description,omitempty"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// ParentID is the key of the parent node; zero for roots.
	ParentID keys.Key `json:"parent_node_id,omitempty"`
	// ChildIDs lists child node keys in insertion order.
	ChildIDs []keys.Key `json:"child_node_ids,omitempty"`
	// Metadata holds free-form string annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the node was last replaced.
	UpdatedAt time.Time `json:"last_updated_at"`
}

// Base returns the common attributes. Variants embed Core, so the method is
// promoted to every Node implementation.
func (c Core) Base() Core { return c }

func (c Core) sealed() {}

// Node is the closed polymorphic set of workflow graph node variants.
// Implementations live in this package only; each variant embeds Core and
// provides Kind and WithBase, so adding a variant forces every dispatch site
// to be revisited at compile time.
type Node interface {
	// Base returns the common node attributes.
	Base() Core
	// Kind returns the variant discriminant.
	Kind() Kind
	// WithBase returns a copy of the node with the common attributes
	// replaced. This is the single generic copy-on-write operation every
	// variant supports identically.
	WithBase(Core) Node

	sealed()
}

// WithStatus returns a new node with the given status and a refreshed
// UpdatedAt. It fails with ErrInvalidTransition when the lifecycle forbids
// the change; the input node is never modified.
func WithStatus(n Node, s Status) (Node, error) {
	core := n.Base()
	if !core.Status.CanTransition(s) {
		return nil, fmt.Errorf("%w: %s -> %s on node %s",
			ErrInvalidTransition, core.Status, s, core.ID)
	}
	core.Status = s
	core.UpdatedAt = time.Now().UTC()
	return n.WithBase(core), nil
}

// WithChildren returns a new node with ChildIDs replaced, preserving the
// given order, and a refreshed UpdatedAt. Every variant supports this
// operation identically.
func WithChildren(n Node, ids []keys.Key) Node {
	core := n.Base()
	core.ChildIDs = make([]keys.Key, len(ids))
	copy(core.ChildIDs, ids)
	core.UpdatedAt = time.Now().UTC()
	return n.WithBase(core)
}

// AppendChild returns a new node with the child key appended, skipping keys
// already present.
func AppendChild(n Node, child keys.Key) Node {
	core := n.Base()
	for _, existing := range core.ChildIDs {
		if existing.Equal(child) {
			return n
		}
	}
	ids := make([]keys.Key, len(core.ChildIDs), len(core.ChildIDs)+1)
	copy(ids, core.ChildIDs)
	return WithChildren(n, append(ids, child))
}

// NewCore builds the common attributes for a fresh node.
func NewCore(id keys.Key, title, description string, parent keys.Key) Core {
	now := time.Now().UTC()
	return Core{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		ParentID:    parent,
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
