package models

import "github.com/ShayCichocki/loom/pkg/keys"

// ReviewType distinguishes who performs a review.
type ReviewType string

const (
	// ReviewTypeAgent is an automated review by another agent.
	ReviewTypeAgent ReviewType = "agent"
	// ReviewTypeHuman is a review requiring a person's decision.
	ReviewTypeHuman ReviewType = "human"
)

// MergeScope decides what happens to the child worktree after a merge
// completes.
type MergeScope string

const (
	// MergeScopeIntegrate merges the child worktree into the target and
	// marks it merged.
	MergeScopeIntegrate MergeScope = "integrate"
	// MergeScopeDiscard drops the child worktree after the merge node
	// completes.
	MergeScopeDiscard MergeScope = "discard"
)

// InterruptType classifies why a node's execution was interrupted.
type InterruptType string

const (
	InterruptHumanReview InterruptType = "human_review"
	InterruptAgentReview InterruptType = "agent_review"
	InterruptPause       InterruptType = "pause"
	InterruptStop        InterruptType = "stop"
	InterruptBranch      InterruptType = "branch"
	InterruptPrune       InterruptType = "prune"
)

// InterruptStatus tracks the resolution state of an interrupt.
type InterruptStatus string

const (
	InterruptRequested InterruptStatus = "requested"
	InterruptResolved  InterruptStatus = "resolved"
)

// InterruptContext records an in-flight interrupt attached to a node.
type InterruptContext struct {
	// Type is the interrupt classification.
	Type InterruptType `json:"type"`
	// Status is requested or resolved.
	Status InterruptStatus `json:"status"`
	// Reason explains why the interrupt was raised.
	Reason string `json:"reason,omitempty"`
	// OriginNodeID is the node whose execution raised the interrupt.
	OriginNodeID keys.Key `json:"origin_node_id,omitempty"`
	// ResumeNodeID is where execution continues after resolution.
	ResumeNodeID keys.Key `json:"resume_node_id,omitempty"`
	// InterruptNodeID is the Interrupt (or Review) child node spawned for
	// this interrupt, once one exists.
	InterruptNodeID keys.Key `json:"interrupt_node_id,omitempty"`
	// Payload carries the result text captured at interrupt time.
	Payload string `json:"payload,omitempty"`
}

// CollectedStatus is a point-in-time snapshot of a sibling node's state,
// captured by collector variants when they consolidate results.
type CollectedStatus struct {
	NodeID keys.Key `json:"node_id"`
	Title  string   `json:"title"`
	Kind   Kind     `json:"kind"`
	Status Status   `json:"status"`
}

// OrchestratorNode is the root authority of a workflow run.
type OrchestratorNode struct {
	Core
	// Goal is the overall objective of the run.
	Goal string `json:"goal,omitempty"`
	// Output is the latest consolidated result text.
	Output string `json:"output,omitempty"`
	// MainWorktreeID is the worktree all ticket branches fork from.
	MainWorktreeID string `json:"main_worktree_id,omitempty"`
}

func (n OrchestratorNode) Kind() Kind { return KindOrchestrator }
func (n OrchestratorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// PlanningNode carries a single planning agent's segment of the plan.
type PlanningNode struct {
	Core
	PlanContent string `json:"plan_content,omitempty"`
}

func (n PlanningNode) Kind() Kind { return KindPlanning }
func (n PlanningNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// TicketNode is a unit of implementation work executed in its own worktree.
type TicketNode struct {
	Core
	// TicketDetails is the full work description handed to the agent.
	TicketDetails string `json:"ticket_details,omitempty"`
	// WorktreeID is the isolated worktree the ticket executes in.
	WorktreeID string `json:"worktree_id,omitempty"`
	// TargetWorktreeID is the worktree the ticket's changes merge back into.
	TargetWorktreeID string `json:"target_worktree_id,omitempty"`
	// Output is the agent's final result text.
	Output string `json:"output,omitempty"`
}

func (n TicketNode) Kind() Kind { return KindTicket }
func (n TicketNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// ReviewNode gates progress on an approve/reject decision over another
// node's output.
type ReviewNode struct {
	Core
	// ReviewedNodeID is the node whose output is under review.
	ReviewedNodeID keys.Key `json:"reviewed_node_id,omitempty"`
	// ReviewType is agent or human.
	ReviewType ReviewType `json:"review_type"`
	// Approved is set when the review signals approval.
	Approved bool `json:"approved"`
	// Rejected is set when the review signals rejection.
	Rejected bool `json:"rejected"`
	// Feedback is the reviewer's result text.
	Feedback string `json:"feedback,omitempty"`
	// Content is the material placed under review.
	Content string `json:"content,omitempty"`
	// Interrupt is the pending interrupt context, if any.
	Interrupt *InterruptContext `json:"interrupt,omitempty"`
}

func (n ReviewNode) Kind() Kind { return KindReview }
func (n ReviewNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// MergeNode integrates a reviewed child worktree into its target.
type MergeNode struct {
	Core
	// MergedNodeID is the reviewed node whose work is being merged.
	MergedNodeID keys.Key `json:"merged_node_id,omitempty"`
	// ChildWorktreeID is the worktree being merged.
	ChildWorktreeID string `json:"child_worktree_id,omitempty"`
	// TargetWorktreeID is the destination worktree.
	TargetWorktreeID string `json:"target_worktree_id,omitempty"`
	// Scope decides the child worktree's fate on completion.
	Scope MergeScope `json:"merge_scope"`
	// ConflictDetail describes conflicting changes when the merge stalls.
	ConflictDetail string `json:"conflict_detail,omitempty"`
	// Interrupt is the pending interrupt context, if any.
	Interrupt *InterruptContext `json:"interrupt,omitempty"`
}

func (n MergeNode) Kind() Kind { return KindMerge }
func (n MergeNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// DiscoveryNode explores one focus area of the codebase or problem space.
type DiscoveryNode struct {
	Core
	Focus    string `json:"focus,omitempty"`
	Findings string `json:"findings,omitempty"`
}

func (n DiscoveryNode) Kind() Kind { return KindDiscovery }
func (n DiscoveryNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// CollectorNode consolidates the outputs of sibling nodes for the root
// orchestrator.
type CollectorNode struct {
	Core
	Goal         string            `json:"goal,omitempty"`
	Consolidated string            `json:"consolidated,omitempty"`
	Collected    []CollectedStatus `json:"collected,omitempty"`
}

func (n CollectorNode) Kind() Kind { return KindCollector }
func (n CollectorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// InterruptNode is spawned when an interrupt pauses another node; resolving
// it resumes the origin.
type InterruptNode struct {
	Core
	Interrupt InterruptContext `json:"interrupt"`
}

func (n InterruptNode) Kind() Kind { return KindInterrupt }
func (n InterruptNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// SummaryNode holds a condensed account of a subtree's work.
type SummaryNode struct {
	Core
	Summary string `json:"summary,omitempty"`
}

func (n SummaryNode) Kind() Kind { return KindSummary }
func (n SummaryNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// AskPermissionNode blocks on a user's grant/deny decision for a privileged
// action.
type AskPermissionNode struct {
	Core
	Action   string `json:"action,omitempty"`
	Granted  bool   `json:"granted"`
	Resolved bool   `json:"resolved"`
}

func (n AskPermissionNode) Kind() Kind { return KindAskPermission }
func (n AskPermissionNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// DiscoveryOrchestratorNode coordinates a fan-out of discovery agents.
type DiscoveryOrchestratorNode struct {
	Core
	Goal     string `json:"goal,omitempty"`
	Findings string `json:"findings,omitempty"`
}

func (n DiscoveryOrchestratorNode) Kind() Kind { return KindDiscoveryOrchestrator }
func (n DiscoveryOrchestratorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// DiscoveryCollectorNode consolidates discovery agent findings.
type DiscoveryCollectorNode struct {
	Core
	Goal         string            `json:"goal,omitempty"`
	Consolidated string            `json:"consolidated,omitempty"`
	Collected    []CollectedStatus `json:"collected,omitempty"`
}

func (n DiscoveryCollectorNode) Kind() Kind { return KindDiscoveryCollector }
func (n DiscoveryCollectorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// PlanningOrchestratorNode coordinates a fan-out of planning agents.
type PlanningOrchestratorNode struct {
	Core
	Goal        string `json:"goal,omitempty"`
	PlanContent string `json:"plan_content,omitempty"`
}

func (n PlanningOrchestratorNode) Kind() Kind { return KindPlanningOrchestrator }
func (n PlanningOrchestratorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// PlanningCollectorNode consolidates planning agent segments into one plan.
type PlanningCollectorNode struct {
	Core
	Goal         string            `json:"goal,omitempty"`
	Consolidated string            `json:"consolidated,omitempty"`
	Collected    []CollectedStatus `json:"collected,omitempty"`
}

func (n PlanningCollectorNode) Kind() Kind { return KindPlanningCollector }
func (n PlanningCollectorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// TicketOrchestratorNode coordinates ticket agents working on branched
// worktrees.
type TicketOrchestratorNode struct {
	Core
	Goal string `json:"goal,omitempty"`
	// Output is the latest consolidated ticket summary.
	Output string `json:"output,omitempty"`
	// WorktreeID is the branched worktree ticket agents fork from.
	WorktreeID string `json:"worktree_id,omitempty"`
	// TargetWorktreeID is the main worktree results merge back into.
	TargetWorktreeID string `json:"target_worktree_id,omitempty"`
}

func (n TicketOrchestratorNode) Kind() Kind { return KindTicketOrchestrator }
func (n TicketOrchestratorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}

// TicketCollectorNode consolidates ticket agent results.
type TicketCollectorNode struct {
	Core
	Goal      string            `json:"goal,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Collected []CollectedStatus `json:"collected,omitempty"`
}

func (n TicketCollectorNode) Kind() Kind { return KindTicketCollector }
func (n TicketCollectorNode) WithBase(c Core) Node {
	n.Core = c
	return n
}
