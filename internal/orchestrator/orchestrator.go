package orchestrator

import (
	"fmt"
	"sync"

	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Orchestrator serializes all graph mutation for one workflow namespace.
// Reads can happen anywhere; writes go through here, and every write that
// changes a node's status publishes a paired NodeStatusChanged event.
type Orchestrator struct {
	mu        sync.Mutex
	graph     store.Graph
	worktrees store.Worktrees
	artifacts store.Artifacts
	bus       *events.Bus
	logger    *DebugLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger installs a debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithArtifacts installs an artifact store for RecordArtifact.
func WithArtifacts(a store.Artifacts) Option {
	return func(o *Orchestrator) { o.artifacts = a }
}

// New creates an orchestrator over the given stores and bus.
func New(graph store.Graph, worktrees store.Worktrees, bus *events.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:     graph,
		worktrees: worktrees,
		bus:       bus,
		logger:    NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bus exposes the event bus for wiring additional listeners.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Graph exposes the node repository for read-only consumers.
func (o *Orchestrator) Graph() store.Graph { return o.graph }

// StartRun creates and stores the root orchestrator node for a new
// workflow and announces it.
func (o *Orchestrator) StartRun(goal string) (models.OrchestratorNode, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	root := keys.NewRoot()
	node := models.OrchestratorNode{
		Core: models.NewCore(root, goal, goal, keys.Key{}),
		Goal: goal,
	}
	if err := o.graph.Save(node); err != nil {
		return models.OrchestratorNode{}, fmt.Errorf("save root node: %w", err)
	}
	o.logger.Log("run started: root=%s goal=%q", root, goal)

	err := o.publish(&events.NodeAdded{
		Header: events.NewHeader(),
		NodeID: root,
		Title:  node.Title,
		Kind:   node.Kind(),
		Node:   events.NodePayload{Node: node},
	})
	if err != nil {
		return models.OrchestratorNode{}, err
	}
	return node, nil
}

// AddChild stores childNode under parent and appends it to the parent's
// child list, preserving order. Fails with store.ErrNotFound when the
// parent is absent, leaving the store unmodified. Emits ChildAttached and
// NodeAdded.
func (o *Orchestrator) AddChild(parent keys.Key, childNode models.Node) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addChildLocked(parent, childNode)
}

func (o *Orchestrator) addChildLocked(parent keys.Key, childNode models.Node) (models.Node, error) {
	parentNode, err := o.graph.FindByID(parent)
	if err != nil {
		return nil, fmt.Errorf("add child: %w", err)
	}

	child := childNode.Base()
	if !child.ParentID.Equal(parent) {
		base := child
		base.ParentID = parent
		childNode = childNode.WithBase(base)
	}

	// Child first: the reconciliation pass rebuilds a parent's child list
	// from back-references, so an orphaned back-reference is recoverable
	// while a dangling child id is not.
	if err := o.graph.Save(childNode); err != nil {
		return nil, fmt.Errorf("save child %s: %w", child.ID, err)
	}
	updatedParent := models.AppendChild(parentNode, child.ID)
	if err := o.graph.Save(updatedParent); err != nil {
		return nil, fmt.Errorf("save parent %s: %w", parent, err)
	}
	o.logger.Log("child added: parent=%s child=%s kind=%s", parent, child.ID, childNode.Kind())

	err = o.publish(&events.ChildAttached{
		Header:   events.NewHeader(),
		ParentID: parent,
		ChildID:  child.ID,
		Parent:   events.NodePayload{Node: updatedParent},
		Child:    events.NodePayload{Node: childNode},
	})
	if err != nil {
		return nil, err
	}
	err = o.publish(&events.NodeAdded{
		Header:   events.NewHeader(),
		NodeID:   child.ID,
		Title:    child.Title,
		Kind:     childNode.Kind(),
		ParentID: parent,
		Node:     events.NodePayload{Node: childNode},
	})
	if err != nil {
		return nil, err
	}
	return childNode, nil
}

// IsGoalComplete reports whether the workflow rooted at root has no node
// left in a blocking status. It fails closed: an absent root is false, and
// the scan covers every node in the store, not just the subtree. One
// engine instance manages one workflow namespace at a time.
func (o *Orchestrator) IsGoalComplete(root keys.Key) (bool, error) {
	exists, err := o.graph.Exists(root)
	if err != nil {
		return false, fmt.Errorf("check root %s: %w", root, err)
	}
	if !exists {
		return false, nil
	}

	all, err := o.graph.FindAll()
	if err != nil {
		return false, fmt.Errorf("scan nodes: %w", err)
	}
	for _, n := range all {
		if n.Base().Status.Blocking() {
			return false, nil
		}
	}
	return true, nil
}

// CheckGoal evaluates IsGoalComplete and, when the goal just completed,
// emits GoalCompleted with the root's output as summary.
func (o *Orchestrator) CheckGoal(root keys.Key) (bool, error) {
	done, err := o.IsGoalComplete(root)
	if err != nil || !done {
		return done, err
	}

	summary := ""
	if n, err := o.graph.FindByID(root); err == nil {
		if orch, ok := n.(models.OrchestratorNode); ok {
			summary = orch.Output
		}
	}
	err = o.publish(&events.GoalCompleted{
		Header:  events.NewHeader(),
		RootID:  root,
		Summary: summary,
	})
	return true, err
}

// MarkReady transitions a node to READY.
func (o *Orchestrator) MarkReady(id keys.Key, reason string) (models.Node, error) {
	return o.SetStatus(id, models.StatusReady, reason)
}

// MarkPending transitions a node back to PENDING.
func (o *Orchestrator) MarkPending(id keys.Key, reason string) (models.Node, error) {
	return o.SetStatus(id, models.StatusPending, reason)
}

// MarkRunning transitions a node to RUNNING.
func (o *Orchestrator) MarkRunning(id keys.Key, reason string) (models.Node, error) {
	return o.SetStatus(id, models.StatusRunning, reason)
}

// MarkCompleted transitions a node to COMPLETED.
func (o *Orchestrator) MarkCompleted(id keys.Key, reason string) (models.Node, error) {
	return o.SetStatus(id, models.StatusCompleted, reason)
}

// MarkFailed transitions a node to FAILED.
func (o *Orchestrator) MarkFailed(id keys.Key, reason string) (models.Node, error) {
	return o.SetStatus(id, models.StatusFailed, reason)
}

// SetStatus transitions a node's status, validating the move against the
// lifecycle. The mutation and its NodeStatusChanged event are paired: a
// no-op transition (same status) emits nothing.
func (o *Orchestrator) SetStatus(id keys.Key, status models.Status, reason string) (models.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.graph.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	return o.setStatusLocked(n, status, reason)
}

func (o *Orchestrator) setStatusLocked(n models.Node, status models.Status, reason string) (models.Node, error) {
	old := n.Base().Status
	if old == status {
		return n, nil
	}

	updated, err := models.WithStatus(n, status)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.Base().ID, err)
	}
	if err := o.graph.Save(updated); err != nil {
		return nil, fmt.Errorf("save node %s: %w", n.Base().ID, err)
	}
	o.logger.Log("status: node=%s %s -> %s (%s)", n.Base().ID, old, status, reason)

	err = o.publish(&events.NodeStatusChanged{
		Header:    events.NewHeader(),
		NodeID:    n.Base().ID,
		OldStatus: old,
		NewStatus: status,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateNode replaces a node's stored value without touching its status
// and emits NodeUpdated. Status changes must go through SetStatus.
func (o *Orchestrator) UpdateNode(n models.Node) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updateNodeLocked(n)
}

func (o *Orchestrator) updateNodeLocked(n models.Node) error {
	id := n.Base().ID
	current, err := o.graph.FindByID(id)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if current.Base().Status != n.Base().Status {
		return fmt.Errorf("update node %s: status changes go through SetStatus", id)
	}
	if err := o.graph.Save(n); err != nil {
		return fmt.Errorf("save node %s: %w", id, err)
	}
	return o.publish(&events.NodeUpdated{
		Header: events.NewHeader(),
		NodeID: id,
		Node:   events.NodePayload{Node: n},
	})
}

// MarkDescendantsCompleted finishes every unfinished node strictly below
// root. Nodes already in a terminal status are left alone.
func (o *Orchestrator) MarkDescendantsCompleted(root keys.Key, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	subtree, err := o.graph.FindByKeyPrefix(root)
	if err != nil {
		return fmt.Errorf("list subtree of %s: %w", root, err)
	}
	for _, n := range subtree {
		if n.Base().ID.Equal(root) || n.Base().Status.Terminal() {
			continue
		}
		if _, err := o.setStatusLocked(n, models.StatusCompleted, reason); err != nil {
			return err
		}
	}
	return nil
}

// EmitNodeError records a failure attributed to a node. The node itself
// is left unchanged; callers decide whether the failure is terminal.
func (o *Orchestrator) EmitNodeError(id keys.Key, message string) error {
	ev := &events.NodeError{
		Header:  events.NewHeader(),
		NodeID:  id,
		Message: message,
	}
	if n, err := o.graph.FindByID(id); err == nil {
		ev.Title = n.Base().Title
		ev.Kind = n.Kind()
	}
	o.logger.Log("node error: node=%s %s", id, message)
	return o.publish(ev)
}

// RecordArtifact stores a content-addressed artifact under a node's
// execution tree and announces it. Requires an artifact store; see
// WithArtifacts.
func (o *Orchestrator) RecordArtifact(a models.Artifact) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.artifacts == nil {
		return fmt.Errorf("record artifact %s: no artifact store configured", a.Key)
	}
	if a.ContentHash == "" {
		a.ContentHash = models.HashContent(a.Payload)
	}
	if err := o.artifacts.Save(a); err != nil {
		return fmt.Errorf("record artifact %s: %w", a.Key, err)
	}
	o.logger.Log("artifact recorded: key=%s type=%s hash=%s", a.Key, a.Type, a.ContentHash)

	return o.publish(&events.ArtifactEmitted{
		Header:       events.NewHeader(),
		NodeID:       a.ExecutionKey,
		ArtifactKey:  a.Key,
		ArtifactType: a.Type,
		ContentHash:  a.ContentHash,
	})
}

// publish sends an event on the bus. A failure here means a mutation-order
// listener (the durable event log) rejected the fact, which must not be
// silently dropped.
func (o *Orchestrator) publish(e events.Event) error {
	if err := o.bus.Publish(e); err != nil {
		o.logger.Log("publish %s failed: %v", e.Type(), err)
		return fmt.Errorf("publish %s: %w", e.Type(), err)
	}
	return nil
}
