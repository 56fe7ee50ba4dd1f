package graph

import "strings"

// NodeType is the closed set of node kinds in the academic graph.
type NodeType string

const (
	NodePaper       NodeType = "Paper"
	NodeAuthor      NodeType = "Author"
	NodeInstitution NodeType = "Institution"
	NodeVenue       NodeType = "Venue"
	NodeEntity      NodeType = "Entity"

	// NodeTypeUnknown marks a type string that did not parse. It never
	// matches a type filter.
	NodeTypeUnknown NodeType = "Unknown"
)

// NodeTypes lists every known node type in declaration order.
var NodeTypes = []NodeType{NodePaper, NodeAuthor, NodeInstitution, NodeVenue, NodeEntity}

// ParseNodeType resolves s case-insensitively. Unrecognized input returns
// NodeTypeUnknown and false.
func ParseNodeType(s string) (NodeType, bool) {
	for _, t := range NodeTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return NodeTypeUnknown, false
}

// Matches reports whether a node of type other satisfies this type filter.
// The empty type is "no filter" and matches everything.
func (t NodeType) Matches(other NodeType) bool {
	if t == "" {
		return true
	}
	if t == NodeTypeUnknown || other == NodeTypeUnknown {
		return false
	}
	return strings.EqualFold(string(t), string(other))
}

// EdgeType is the closed set of directed relations.
type EdgeType string

const (
	EdgeHasAuthor      EdgeType = "HAS_AUTHOR"
	EdgeAffiliatedWith EdgeType = "AFFILIATED_WITH"
	EdgePublishedIn    EdgeType = "PUBLISHED_IN"
	EdgeMentions       EdgeType = "MENTIONS"
	EdgeCites          EdgeType = "CITES"

	EdgeTypeUnknown EdgeType = "UNKNOWN"
)

// EdgeTypes lists every known edge type in declaration order.
var EdgeTypes = []EdgeType{EdgeHasAuthor, EdgeAffiliatedWith, EdgePublishedIn, EdgeMentions, EdgeCites}

// ParseEdgeType resolves s exactly (edge labels are upper snake case in the
// data files). Unrecognized input returns EdgeTypeUnknown and false.
func ParseEdgeType(s string) (EdgeType, bool) {
	for _, t := range EdgeTypes {
		if s == string(t) {
			return t, true
		}
	}
	return EdgeTypeUnknown, false
}

// Action is the graph operation a constraint performs.
type Action string

const (
	ActionFilterCurrentNode Action = "filter_current_node"
	ActionTraverseEdge      Action = "traverse_edge"
	ActionTraverseAndCount  Action = "traverse_and_count"
	ActionMultiHopTraverse  Action = "multi_hop_traverse"
	ActionChainTraverse     Action = "chain_traverse"

	ActionUnknown Action = "unknown"
)

var actions = []Action{
	ActionFilterCurrentNode,
	ActionTraverseEdge,
	ActionTraverseAndCount,
	ActionMultiHopTraverse,
	ActionChainTraverse,
}

// ParseAction resolves an action name. Unrecognized input returns
// ActionUnknown and false.
func ParseAction(s string) (Action, bool) {
	for _, a := range actions {
		if s == string(a) {
			return a, true
		}
	}
	return ActionUnknown, false
}

// IsMultiHop reports whether the action carries a traversal chain.
func (a Action) IsMultiHop() bool {
	return a == ActionMultiHopTraverse || a == ActionChainTraverse
}

// Direction selects which adjacency a hop follows.
type Direction string

const (
	Forward Direction = "forward"
	Reverse Direction = "reverse"
)
