package events

import (
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/loom/pkg/keys"
)

// envelope is the wire form of an event: the discriminant plus the body.
type envelope struct {
	EventType Type            `json:"eventType"`
	Event     json.RawMessage `json:"event"`
}

// Marshal encodes an event with its eventType tag.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type(), err)
	}
	return json.Marshal(envelope{EventType: e.Type(), Event: body})
}

// Unmarshal decodes a tagged event back into its concrete variant. An
// unknown eventType is an error, never a silent fallback.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	switch env.EventType {
	case TypeNodeAdded:
		return decodeBody(env, &NodeAdded{})
	case TypeChildAttached:
		return decodeBody(env, &ChildAttached{})
	case TypeNodeUpdated:
		return decodeBody(env, &NodeUpdated{})
	case TypeNodeDeleted:
		return decodeBody(env, &NodeDeleted{})
	case TypeNodeStatusChanged:
		return decodeBody(env, &NodeStatusChanged{})
	case TypeNodeError:
		return decodeBody(env, &NodeError{})
	case TypeNodePruned:
		return decodeBody(env, &NodePruned{})
	case TypeNodeBranched:
		return decodeBody(env, &NodeBranched{})
	case TypeNodeBranchRequested:
		return decodeBody(env, &NodeBranchRequested{})
	case TypeNodeReviewRequested:
		return decodeBody(env, &NodeReviewRequested{})
	case TypeGoalCompleted:
		return decodeBody(env, &GoalCompleted{})
	case TypeActionStarted:
		return decodeBody(env, &ActionStarted{})
	case TypeActionCompleted:
		return decodeBody(env, &ActionCompleted{})
	case TypeStopAgent:
		return decodeBody(env, &StopAgent{})
	case TypePause:
		return decodeBody(env, &Pause{})
	case TypeResume:
		return decodeBody(env, &Resume{})
	case TypeInterruptRequested:
		return decodeBody(env, &InterruptRequested{})
	case TypeInterruptStatus:
		return decodeBody(env, &InterruptStatus{})
	case TypeInterruptResolved:
		return decodeBody(env, &InterruptResolved{})
	case TypePermissionRequested:
		return decodeBody(env, &PermissionRequested{})
	case TypePermissionResolved:
		return decodeBody(env, &PermissionResolved{})
	case TypeWorktreeCreated:
		return decodeBody(env, &WorktreeCreated{})
	case TypeWorktreeBranched:
		return decodeBody(env, &WorktreeBranched{})
	case TypeWorktreeMerged:
		return decodeBody(env, &WorktreeMerged{})
	case TypeWorktreeDiscarded:
		return decodeBody(env, &WorktreeDiscarded{})
	case TypeMergePhaseStarted:
		return decodeBody(env, &MergePhaseStarted{})
	case TypeMergePhaseCompleted:
		return decodeBody(env, &MergePhaseCompleted{})
	case TypeChatSessionCreated:
		return decodeBody(env, &ChatSessionCreated{})
	case TypeChatSessionClosed:
		return decodeBody(env, &ChatSessionClosed{})
	case TypeMessageAdded:
		return decodeBody(env, &MessageAdded{})
	case TypeStreamDelta:
		return decodeBody(env, &StreamDelta{})
	case TypeThoughtDelta:
		return decodeBody(env, &ThoughtDelta{})
	case TypeUserMessageChunk:
		return decodeBody(env, &UserMessageChunk{})
	case TypeToolCall:
		return decodeBody(env, &ToolCall{})
	case TypeUIDiffApplied:
		return decodeBody(env, &UIDiffApplied{})
	case TypeUIDiffRejected:
		return decodeBody(env, &UIDiffRejected{})
	case TypeUIDiffReverted:
		return decodeBody(env, &UIDiffReverted{})
	case TypeUIFeedback:
		return decodeBody(env, &UIFeedback{})
	case TypeModeUpdated:
		return decodeBody(env, &ModeUpdated{})
	case TypePlanUpdated:
		return decodeBody(env, &PlanUpdated{})
	case TypeArtifactEmitted:
		return decodeBody(env, &ArtifactEmitted{})
	}
	return nil, fmt.Errorf("unknown eventType %q", env.EventType)
}

func decodeBody[T Event](env envelope, into T) (Event, error) {
	if err := json.Unmarshal(env.Event, into); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.EventType, err)
	}
	return into, nil
}

// NodeKey reports the graph node an event is about, or a zero key for
// graph-level events. The switch is total over the event set so that new
// variants get an explicit answer here.
func NodeKey(e Event) keys.Key {
	switch ev := e.(type) {
	case *NodeAdded:
		return ev.NodeID
	case *ChildAttached:
		return ev.ParentID
	case *NodeUpdated:
		return ev.NodeID
	case *NodeDeleted:
		return ev.NodeID
	case *NodeStatusChanged:
		return ev.NodeID
	case *NodeError:
		return ev.NodeID
	case *NodePruned:
		return ev.NodeID
	case *NodeBranched:
		return ev.NodeID
	case *NodeBranchRequested:
		return ev.NodeID
	case *NodeReviewRequested:
		return ev.NodeID
	case *GoalCompleted:
		return ev.RootID
	case *ActionStarted:
		return ev.NodeID
	case *ActionCompleted:
		return ev.NodeID
	case *StopAgent:
		return ev.NodeID
	case *Pause:
		return ev.NodeID
	case *Resume:
		return ev.NodeID
	case *InterruptRequested:
		return ev.NodeID
	case *InterruptStatus:
		return ev.NodeID
	case *InterruptResolved:
		return ev.NodeID
	case *PermissionRequested:
		return ev.NodeID
	case *PermissionResolved:
		return ev.NodeID
	case *WorktreeCreated:
		return ev.NodeID
	case *WorktreeBranched:
		return ev.NodeID
	case *WorktreeMerged:
		return ev.NodeID
	case *WorktreeDiscarded:
		return ev.NodeID
	case *MergePhaseStarted:
		return ev.NodeID
	case *MergePhaseCompleted:
		return ev.NodeID
	case *ChatSessionCreated:
		return ev.NodeID
	case *ChatSessionClosed:
		return ev.NodeID
	case *MessageAdded:
		return ev.NodeID
	case *StreamDelta:
		return ev.NodeID
	case *ThoughtDelta:
		return ev.NodeID
	case *UserMessageChunk:
		return ev.NodeID
	case *ToolCall:
		return ev.NodeID
	case *UIDiffApplied:
		return ev.NodeID
	case *UIDiffRejected:
		return ev.NodeID
	case *UIDiffReverted:
		return ev.NodeID
	case *UIFeedback:
		return ev.NodeID
	case *ModeUpdated:
		return ev.NodeID
	case *PlanUpdated:
		return ev.NodeID
	case *ArtifactEmitted:
		return ev.NodeID
	}
	return keys.Key{}
}
