package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrTraversal tags every failure raised while executing a constraint.
	ErrTraversal = errors.New("graph: traversal failed")

	// ErrUnknownAction is returned for a constraint action the engine does
	// not implement.
	ErrUnknownAction = errors.New("graph: unknown action")

	// ErrChainTooDeep is returned when a traversal chain exceeds the
	// configured depth limit.
	ErrChainTooDeep = errors.New("graph: traversal chain too deep")

	// ErrInvalidConstraint is returned by Constraint.Validate.
	ErrInvalidConstraint = errors.New("graph: invalid constraint")
)

// Hop is one step of a traversal chain. EdgeType and TargetNode stay raw
// strings: a hop whose edge type does not parse is skipped at execution time
// and the chain continues with the current node set.
type Hop struct {
	EdgeType   string               `json:"edge_type"`
	TargetNode string               `json:"target_node,omitempty"`
	Direction  Direction            `json:"direction,omitempty"`
	NodeFilter map[string]Condition `json:"node_filter,omitempty"`
	EdgeFilter map[string]any       `json:"edge_filter,omitempty"`
}

// Constraint is the unit of filtering. It has one of two shapes:
//
//   - simple: Action is filter_current_node, traverse_edge or
//     traverse_and_count and Chain is empty;
//   - multi-hop: Action is multi_hop_traverse (or chain_traverse) and Chain
//     holds at least one hop. Condition is kept for description only.
//
// Two constraints with the same ID are considered identical.
type Constraint struct {
	ID                string         `json:"constraint_id"`
	Type              string         `json:"constraint_type"`
	Action            Action         `json:"action"`
	TargetNode        NodeType       `json:"target_node,omitempty"`
	EdgeType          EdgeType       `json:"edge_type,omitempty"`
	FilterAttribute   string         `json:"filter_attribute,omitempty"`
	Condition         Condition      `json:"filter_condition"`
	EdgeFilter        map[string]any `json:"edge_filter,omitempty"`
	Chain             []Hop          `json:"traversal_chain,omitempty"`
	RequiresBacktrack bool           `json:"requires_backtrack,omitempty"`
	Description       string         `json:"description,omitempty"`
}

// Validate checks the shape invariant.
func (c *Constraint) Validate() error {
	switch c.Action {
	case ActionFilterCurrentNode, ActionTraverseEdge, ActionTraverseAndCount:
		if len(c.Chain) > 0 {
			return fmt.Errorf("%w: %s: simple action %s carries a chain", ErrInvalidConstraint, c.ID, c.Action)
		}
		if c.Action != ActionFilterCurrentNode && c.EdgeType == "" {
			return fmt.Errorf("%w: %s: action %s needs an edge type", ErrInvalidConstraint, c.ID, c.Action)
		}
	case ActionMultiHopTraverse, ActionChainTraverse:
		if len(c.Chain) == 0 {
			return fmt.Errorf("%w: %s: %s without a chain", ErrInvalidConstraint, c.ID, c.Action)
		}
	default:
		return fmt.Errorf("%w: %s: %w %q", ErrInvalidConstraint, c.ID, ErrUnknownAction, c.Action)
	}
	return nil
}

// IsMultiHop reports whether the constraint is the multi-hop shape.
func (c *Constraint) IsMultiHop() bool { return c.Action.IsMultiHop() }

// Step records the outcome of executing one constraint.
type Step struct {
	StepID      int       `json:"step_id"`
	Action      Action    `json:"action"`
	TargetNode  NodeType  `json:"target_node,omitempty"`
	EdgeType    EdgeType  `json:"edge_type,omitempty"`
	Condition   Condition `json:"filter_condition"`
	ResultCount int       `json:"result_count"`
	Description string    `json:"description,omitempty"`
}

// StepError wraps a failure inside one constraint's execution with the
// 1-based index of the failing step.
type StepError struct {
	Index  int
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("graph: step %d (%s) failed: %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is makes every StepError match ErrTraversal.
func (e *StepError) Is(target error) bool { return target == ErrTraversal }
