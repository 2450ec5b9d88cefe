package models

import (
	"encoding/json"
	"fmt"
)

// nodeEnvelope is the wire form of a node: the variant discriminant plus the
// variant's own JSON body.
type nodeEnvelope struct {
	Kind Kind            `json:"kind"`
	Node json.RawMessage `json:"node"`
}

// MarshalNode serializes a node with its kind discriminant so it can be
// decoded back into the correct variant.
func MarshalNode(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("marshal node: nil node")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal %s node: %w", n.Kind(), err)
	}
	return json.Marshal(nodeEnvelope{Kind: n.Kind(), Node: body})
}

// UnmarshalNode decodes a node envelope produced by MarshalNode. The kind
// switch is total over the closed variant set; an unknown kind is an error,
// never a silent no-op.
func UnmarshalNode(data []byte) (Node, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal node envelope: %w", err)
	}

	switch env.Kind {
	case KindOrchestrator:
		var n OrchestratorNode
		return decodeNodeBody(env, &n)
	case KindPlanning:
		var n PlanningNode
		return decodeNodeBody(env, &n)
	case KindTicket:
		var n TicketNode
		return decodeNodeBody(env, &n)
	case KindReview:
		var n ReviewNode
		return decodeNodeBody(env, &n)
	case KindMerge:
		var n MergeNode
		return decodeNodeBody(env, &n)
	case KindDiscovery:
		var n DiscoveryNode
		return decodeNodeBody(env, &n)
	case KindCollector:
		var n CollectorNode
		return decodeNodeBody(env, &n)
	case KindInterrupt:
		var n InterruptNode
		return decodeNodeBody(env, &n)
	case KindSummary:
		var n SummaryNode
		return decodeNodeBody(env, &n)
	case KindAskPermission:
		var n AskPermissionNode
		return decodeNodeBody(env, &n)
	case KindDiscoveryOrchestrator:
		var n DiscoveryOrchestratorNode
		return decodeNodeBody(env, &n)
	case KindDiscoveryCollector:
		var n DiscoveryCollectorNode
		return decodeNodeBody(env, &n)
	case KindPlanningOrchestrator:
		var n PlanningOrchestratorNode
		return decodeNodeBody(env, &n)
	case KindPlanningCollector:
		var n PlanningCollectorNode
		return decodeNodeBody(env, &n)
	case KindTicketOrchestrator:
		var n TicketOrchestratorNode
		return decodeNodeBody(env, &n)
	case KindTicketCollector:
		var n TicketCollectorNode
		return decodeNodeBody(env, &n)
	default:
		return nil, fmt.Errorf("unmarshal node: unknown kind %q", env.Kind)
	}
}

func decodeNodeBody[T Node](env nodeEnvelope, into *T) (Node, error) {
	if err := json.Unmarshal(env.Node, into); err != nil {
		return nil, fmt.Errorf("unmarshal %s node: %w", env.Kind, err)
	}
	return *into, nil
}
