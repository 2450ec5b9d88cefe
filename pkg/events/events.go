// Package events defines the typed event model for the workflow graph and
// the ordered, filterable bus that dispatches events to listeners. Events
// are immutable, timestamped facts: write-once, append-only, never mutated
// after emission.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Type is the event discriminant carried on the wire as the eventType tag.
type Type string

const (
	// Node lifecycle
	TypeNodeAdded           Type = "node.added"
	TypeChildAttached       Type = "node.child_attached"
	TypeNodeUpdated         Type = "node.updated"
	TypeNodeDeleted         Type = "node.deleted"
	TypeNodeStatusChanged   Type = "node.status_changed"
	TypeNodeError           Type = "node.error"
	TypeNodePruned          Type = "node.pruned"
	TypeNodeBranched        Type = "node.branched"
	TypeNodeBranchRequested Type = "node.branch_requested"
	TypeNodeReviewRequested Type = "node.review_requested"
	TypeGoalCompleted       Type = "goal.completed"

	// Agent actions
	TypeActionStarted   Type = "action.started"
	TypeActionCompleted Type = "action.completed"
	TypeStopAgent       Type = "agent.stop"
	TypePause           Type = "agent.pause"
	TypeResume          Type = "agent.resume"

	// Interrupts
	TypeInterruptRequested Type = "interrupt.requested"
	TypeInterruptStatus    Type = "interrupt.status"
	TypeInterruptResolved  Type = "interrupt.resolved"

	// Permissions
	TypePermissionRequested Type = "permission.requested"
	TypePermissionResolved  Type = "permission.resolved"

	// Worktrees
	TypeWorktreeCreated   Type = "worktree.created"
	TypeWorktreeBranched  Type = "worktree.branched"
	TypeWorktreeMerged    Type = "worktree.merged"
	TypeWorktreeDiscarded Type = "worktree.discarded"

	// Merge phases
	TypeMergePhaseStarted   Type = "merge.phase_started"
	TypeMergePhaseCompleted Type = "merge.phase_completed"

	// Chat and sessions
	TypeChatSessionCreated Type = "chat.session_created"
	TypeChatSessionClosed  Type = "chat.session_closed"
	TypeMessageAdded       Type = "chat.message_added"

	// Streaming deltas
	TypeStreamDelta      Type = "stream.delta"
	TypeThoughtDelta     Type = "stream.thought_delta"
	TypeUserMessageChunk Type = "stream.user_message_chunk"

	// Tools
	TypeToolCall Type = "tool.call"

	// UI
	TypeUIDiffApplied  Type = "ui.diff_applied"
	TypeUIDiffRejected Type = "ui.diff_rejected"
	TypeUIDiffReverted Type = "ui.diff_reverted"
	TypeUIFeedback     Type = "ui.feedback"
	TypeModeUpdated    Type = "ui.mode_updated"

	// Plans and artifacts
	TypePlanUpdated     Type = "plan.updated"
	TypeArtifactEmitted Type = "artifact.emitted"
)

// Event is the closed tagged union of observable facts. Implementations
// live in this package only. Every event carries an ID, an emission
// timestamp, and a discriminant.
type Event interface {
	// EventID is the unique identifier of this fact.
	EventID() string
	// OccurredAt is when the fact was recorded.
	OccurredAt() time.Time
	// Type is the discriminant used for filtering and wire encoding.
	Type() Type

	sealedEvent()
}

// Header holds the attributes common to every event variant.
type Header struct {
	ID string    `json:"event_id"`
	At time.Time `json:"occurred_at"`
}

// NewHeader stamps a fresh event identity.
func NewHeader() Header {
	return Header{ID: uuid.New().String(), At: time.Now().UTC()}
}

func (h Header) EventID() string       { return h.ID }
func (h Header) OccurredAt() time.Time { return h.At }
func (h Header) sealedEvent()          {}

// NodePayload wraps a node for wire encoding with its kind discriminant.
type NodePayload struct {
	models.Node
}

// MarshalJSON encodes the wrapped node with its kind tag.
func (p NodePayload) MarshalJSON() ([]byte, error) {
	if p.Node == nil {
		return []byte("null"), nil
	}
	return models.MarshalNode(p.Node)
}

// UnmarshalJSON decodes a tagged node back into the correct variant.
func (p *NodePayload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.Node = nil
		return nil
	}
	n, err := models.UnmarshalNode(data)
	if err != nil {
		return fmt.Errorf("decode node payload: %w", err)
	}
	p.Node = n
	return nil
}

// NodeAdded records a node entering the graph.
type NodeAdded struct {
	Header
	NodeID   keys.Key    `json:"node_id"`
	Title    string      `json:"title"`
	Kind     models.Kind `json:"kind"`
	ParentID keys.Key    `json:"parent_node_id,omitempty"`
	Node     NodePayload `json:"node,omitempty"`
}

func (NodeAdded) Type() Type { return TypeNodeAdded }

// ChildAttached records a parent's child list gaining a node. It carries
// both the updated parent and the child so that persistence listeners can
// apply the mutation without a store read.
type ChildAttached struct {
	Header
	ParentID keys.Key    `json:"parent_node_id"`
	ChildID  keys.Key    `json:"child_node_id"`
	Parent   NodePayload `json:"parent,omitempty"`
	Child    NodePayload `json:"child,omitempty"`
}

func (ChildAttached) Type() Type { return TypeChildAttached }

// NodeUpdated records a whole-value node replacement.
type NodeUpdated struct {
	Header
	NodeID  keys.Key          `json:"node_id"`
	Updates map[string]string `json:"updates,omitempty"`
	Node    NodePayload       `json:"node,omitempty"`
}

func (NodeUpdated) Type() Type { return TypeNodeUpdated }

// NodeDeleted records explicit removal of a node.
type NodeDeleted struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (NodeDeleted) Type() Type { return TypeNodeDeleted }

// NodeStatusChanged records a lifecycle transition with its reason. Every
// status mutation pairs with exactly one of these.
type NodeStatusChanged struct {
	Header
	NodeID    keys.Key      `json:"node_id"`
	OldStatus models.Status `json:"old_status"`
	NewStatus models.Status `json:"new_status"`
	Reason    string        `json:"reason,omitempty"`
}

func (NodeStatusChanged) Type() Type { return TypeNodeStatusChanged }

// NodeError records a failure attributed to a node.
type NodeError struct {
	Header
	NodeID  keys.Key    `json:"node_id"`
	Title   string      `json:"title,omitempty"`
	Kind    models.Kind `json:"kind,omitempty"`
	Message string      `json:"message"`
}

func (NodeError) Type() Type { return TypeNodeError }

// NodePruned records removal of a node (and its subtree) from active work.
type NodePruned struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (NodePruned) Type() Type { return TypeNodePruned }

// NodeBranched records a node forked into an alternative line of work.
type NodeBranched struct {
	Header
	NodeID       keys.Key `json:"node_id"`
	BranchNodeID keys.Key `json:"branch_node_id"`
	Reason       string   `json:"reason,omitempty"`
}

func (NodeBranched) Type() Type { return TypeNodeBranched }

// NodeBranchRequested records a request to branch that has not yet been
// acted on.
type NodeBranchRequested struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (NodeBranchRequested) Type() Type { return TypeNodeBranchRequested }

// NodeReviewRequested records that a node's output awaits review.
type NodeReviewRequested struct {
	Header
	NodeID       keys.Key          `json:"node_id"`
	ReviewNodeID keys.Key          `json:"review_node_id"`
	ReviewType   models.ReviewType `json:"review_type"`
	Content      string            `json:"content,omitempty"`
}

func (NodeReviewRequested) Type() Type { return TypeNodeReviewRequested }

// GoalCompleted records that no node in the graph remains in a blocking
// status.
type GoalCompleted struct {
	Header
	RootID  keys.Key `json:"root_node_id"`
	Summary string   `json:"summary,omitempty"`
}

func (GoalCompleted) Type() Type { return TypeGoalCompleted }

// ActionStarted records an agent beginning a unit of work on a node.
type ActionStarted struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Action string   `json:"action"`
}

func (ActionStarted) Type() Type { return TypeActionStarted }

// ActionCompleted records an agent finishing a unit of work.
type ActionCompleted struct {
	Header
	NodeID  keys.Key `json:"node_id"`
	Action  string   `json:"action"`
	Success bool     `json:"success"`
	Output  string   `json:"output,omitempty"`
}

func (ActionCompleted) Type() Type { return TypeActionCompleted }

// StopAgent records a request to stop the agent working a node.
type StopAgent struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (StopAgent) Type() Type { return TypeStopAgent }

// Pause records a workflow pause request.
type Pause struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (Pause) Type() Type { return TypePause }

// Resume records a workflow resume request.
type Resume struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Reason string   `json:"reason,omitempty"`
}

func (Resume) Type() Type { return TypeResume }

// InterruptRequested records an agent raising an interrupt on a node.
type InterruptRequested struct {
	Header
	NodeID        keys.Key             `json:"node_id"`
	InterruptType models.InterruptType `json:"interrupt_type"`
	Reason        string               `json:"reason,omitempty"`
}

func (InterruptRequested) Type() Type { return TypeInterruptRequested }

// InterruptStatus records an interrupt's state machine advancing.
type InterruptStatus struct {
	Header
	NodeID          keys.Key               `json:"node_id"`
	InterruptType   models.InterruptType   `json:"interrupt_type"`
	InterruptStatus models.InterruptStatus `json:"interrupt_status"`
	OriginNodeID    keys.Key               `json:"origin_node_id,omitempty"`
	ResumeNodeID    keys.Key               `json:"resume_node_id,omitempty"`
}

func (InterruptStatus) Type() Type { return TypeInterruptStatus }

// InterruptResolved records an interrupt being answered, unblocking its
// origin node.
type InterruptResolved struct {
	Header
	NodeID          keys.Key             `json:"node_id"`
	InterruptNodeID keys.Key             `json:"interrupt_node_id"`
	InterruptType   models.InterruptType `json:"interrupt_type"`
	Content         string               `json:"content,omitempty"`
}

func (InterruptResolved) Type() Type { return TypeInterruptResolved }

// PermissionRequested records a node blocking on a privileged-action grant.
type PermissionRequested struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Action string   `json:"action"`
	Detail string   `json:"detail,omitempty"`
}

func (PermissionRequested) Type() Type { return TypePermissionRequested }

// PermissionResolved records the user's grant/deny decision.
type PermissionResolved struct {
	Header
	NodeID  keys.Key `json:"node_id"`
	Action  string   `json:"action"`
	Granted bool     `json:"granted"`
}

func (PermissionResolved) Type() Type { return TypePermissionResolved }

// WorktreeCreated records a fresh isolated worktree.
type WorktreeCreated struct {
	Header
	WorktreeID string   `json:"worktree_id"`
	NodeID     keys.Key `json:"node_id"`
	Path       string   `json:"path,omitempty"`
	Branch     string   `json:"branch,omitempty"`
}

func (WorktreeCreated) Type() Type { return TypeWorktreeCreated }

// WorktreeBranched records a worktree forked from a parent worktree.
type WorktreeBranched struct {
	Header
	WorktreeID       string   `json:"worktree_id"`
	ParentWorktreeID string   `json:"parent_worktree_id"`
	NodeID           keys.Key `json:"node_id"`
	Branch           string   `json:"branch,omitempty"`
}

func (WorktreeBranched) Type() Type { return TypeWorktreeBranched }

// WorktreeMerged records a worktree's changes landing in its target.
type WorktreeMerged struct {
	Header
	WorktreeID       string   `json:"worktree_id"`
	TargetWorktreeID string   `json:"target_worktree_id"`
	NodeID           keys.Key `json:"node_id"`
}

func (WorktreeMerged) Type() Type { return TypeWorktreeMerged }

// WorktreeDiscarded records a worktree dropped without merging.
type WorktreeDiscarded struct {
	Header
	WorktreeID string   `json:"worktree_id"`
	NodeID     keys.Key `json:"node_id"`
	Reason     string   `json:"reason,omitempty"`
}

func (WorktreeDiscarded) Type() Type { return TypeWorktreeDiscarded }

// MergePhaseStarted records a merge node beginning a phase of integration.
type MergePhaseStarted struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Phase  string   `json:"phase"`
}

func (MergePhaseStarted) Type() Type { return TypeMergePhaseStarted }

// MergePhaseCompleted records a merge phase finishing, successfully or not.
type MergePhaseCompleted struct {
	Header
	NodeID  keys.Key `json:"node_id"`
	Phase   string   `json:"phase"`
	Success bool     `json:"success"`
	Detail  string   `json:"detail,omitempty"`
}

func (MergePhaseCompleted) Type() Type { return TypeMergePhaseCompleted }

// ChatSessionCreated records an interactive session opening against a node.
type ChatSessionCreated struct {
	Header
	NodeID    keys.Key `json:"node_id"`
	SessionID string   `json:"session_id"`
}

func (ChatSessionCreated) Type() Type { return TypeChatSessionCreated }

// ChatSessionClosed records an interactive session ending.
type ChatSessionClosed struct {
	Header
	NodeID    keys.Key `json:"node_id"`
	SessionID string   `json:"session_id"`
}

func (ChatSessionClosed) Type() Type { return TypeChatSessionClosed }

// MessageAdded records a chat message attached to a node's session.
type MessageAdded struct {
	Header
	NodeID    keys.Key `json:"node_id"`
	SessionID string   `json:"session_id,omitempty"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
}

func (MessageAdded) Type() Type { return TypeMessageAdded }

// StreamDelta records a chunk of streamed agent output.
type StreamDelta struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Delta  string   `json:"delta"`
}

func (StreamDelta) Type() Type { return TypeStreamDelta }

// ThoughtDelta records a chunk of streamed agent reasoning.
type ThoughtDelta struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Delta  string   `json:"delta"`
}

func (ThoughtDelta) Type() Type { return TypeThoughtDelta }

// UserMessageChunk records a chunk of a user's in-progress message.
type UserMessageChunk struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Chunk  string   `json:"chunk"`
}

func (UserMessageChunk) Type() Type { return TypeUserMessageChunk }

// ToolCall records a tool invocation with its input and output.
type ToolCall struct {
	Header
	NodeID     keys.Key `json:"node_id"`
	ToolCallID string   `json:"tool_call_id"`
	ToolName   string   `json:"tool_name"`
	Input      string   `json:"input,omitempty"`
	Output     string   `json:"output,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (ToolCall) Type() Type { return TypeToolCall }

// UIDiffApplied records a proposed diff accepted through the UI.
type UIDiffApplied struct {
	Header
	NodeID keys.Key `json:"node_id"`
	DiffID string   `json:"diff_id"`
	Path   string   `json:"path,omitempty"`
}

func (UIDiffApplied) Type() Type { return TypeUIDiffApplied }

// UIDiffRejected records a proposed diff declined through the UI.
type UIDiffRejected struct {
	Header
	NodeID keys.Key `json:"node_id"`
	DiffID string   `json:"diff_id"`
	Reason string   `json:"reason,omitempty"`
}

func (UIDiffRejected) Type() Type { return TypeUIDiffRejected }

// UIDiffReverted records a previously applied diff being undone.
type UIDiffReverted struct {
	Header
	NodeID keys.Key `json:"node_id"`
	DiffID string   `json:"diff_id"`
}

func (UIDiffReverted) Type() Type { return TypeUIDiffReverted }

// UIFeedback records free-form user feedback on a node.
type UIFeedback struct {
	Header
	NodeID   keys.Key `json:"node_id"`
	Feedback string   `json:"feedback"`
}

func (UIFeedback) Type() Type { return TypeUIFeedback }

// ModeUpdated records the interaction mode changing (for example from
// planning to execution).
type ModeUpdated struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Mode   string   `json:"mode"`
}

func (ModeUpdated) Type() Type { return TypeModeUpdated }

// PlanUpdated records the current plan text changing.
type PlanUpdated struct {
	Header
	NodeID keys.Key `json:"node_id"`
	Plan   string   `json:"plan"`
}

func (PlanUpdated) Type() Type { return TypePlanUpdated }

// ArtifactEmitted records a content-addressed artifact attached to a node
// subtree.
type ArtifactEmitted struct {
	Header
	NodeID       keys.Key `json:"node_id"`
	ArtifactKey  keys.Key `json:"artifact_key"`
	ArtifactType string   `json:"artifact_type"`
	ContentHash  string   `json:"content_hash"`
}

func (ArtifactEmitted) Type() Type { return TypeArtifactEmitted }
