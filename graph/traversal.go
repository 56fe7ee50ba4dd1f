package graph

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// DefaultMaxChainDepth bounds multi-hop chains. The longest built-in chain
// (coauthor) has five hops.
const DefaultMaxChainDepth = 6

// Traverser executes constraints against a read-only Store. It holds no
// state besides the store reference and its limits, so every operation is a
// pure function of (node set, constraint).
type Traverser struct {
	store Store

	// MaxStartNodes truncates the start set of Traverse. Zero means no limit.
	MaxStartNodes int
	// MaxChainDepth rejects longer chains. Zero means DefaultMaxChainDepth.
	MaxChainDepth int
}

// NewTraverser creates a traverser over s.
func NewTraverser(s Store) *Traverser {
	return &Traverser{store: s, MaxChainDepth: DefaultMaxChainDepth}
}

// Store returns the underlying graph store.
func (t *Traverser) Store() Store { return t.store }

// Traverse applies constraints to start in order. It records one Step per
// executed constraint and stops as soon as the candidate set is empty, so
// the returned steps may be shorter than constraints. A failure inside a
// step is returned as a *StepError carrying the step index; the steps
// recorded before it are returned alongside.
func (t *Traverser) Traverse(start []string, constraints []Constraint) ([]string, []Step, error) {
	current := append([]string(nil), start...)
	if t.MaxStartNodes > 0 && len(current) > t.MaxStartNodes {
		slog.Debug("truncating start set", "size", len(current), "limit", t.MaxStartNodes)
		current = current[:t.MaxStartNodes]
	}

	steps := make([]Step, 0, len(constraints))
	for i := range constraints {
		c := &constraints[i]
		next, err := t.runStep(c)(current)
		if err != nil {
			return current, steps, &StepError{Index: i + 1, Action: c.Action, Err: err}
		}
		current = next
		steps = append(steps, Step{
			StepID:      i + 1,
			Action:      c.Action,
			TargetNode:  c.TargetNode,
			EdgeType:    c.EdgeType,
			Condition:   c.Condition,
			ResultCount: len(current),
			Description: c.Description,
		})
		if len(current) == 0 {
			break
		}
	}
	return current, steps, nil
}

// runStep returns the operation for c. Panics raised while evaluating are
// converted into errors so the caller still learns which step failed.
func (t *Traverser) runStep(c *Constraint) func([]string) ([]string, error) {
	return func(nodes []string) (out []string, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()

		switch c.Action {
		case ActionFilterCurrentNode:
			return t.FilterCurrentNode(nodes, c.FilterAttribute, c.Condition), nil
		case ActionTraverseEdge:
			return t.TraverseEdge(nodes, c.EdgeType, c.TargetNode, c.EdgeFilter), nil
		case ActionTraverseAndCount:
			return t.TraverseAndCount(nodes, c.EdgeType, c.Condition), nil
		case ActionMultiHopTraverse:
			return t.MultiHopTraverse(nodes, c.Chain, c.RequiresBacktrack)
		case ActionChainTraverse:
			if err := t.checkDepth(c.Chain); err != nil {
				return nil, err
			}
			return t.ChainTraverse(nodes, c.Chain), nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
}

// FilterCurrentNode keeps the nodes whose attribute satisfies cond. An empty
// attribute keeps every node.
func (t *Traverser) FilterCurrentNode(nodes []string, attribute string, cond Condition) []string {
	if len(nodes) == 0 {
		return nil
	}
	if attribute == "" {
		return nodes
	}
	var out []string
	for _, id := range nodes {
		if Evaluate(t.Attribute(id, attribute), cond) {
			out = append(out, id)
		}
	}
	return out
}

// TraverseEdge follows edges of edgeType in both directions from every node
// and returns the de-duplicated union of matching neighbors. It does not keep
// track of which start node produced which neighbor, so it must not be used
// where backtracking needs provenance.
func (t *Traverser) TraverseEdge(nodes []string, edgeType EdgeType, target NodeType, edgeFilter map[string]any) []string {
	if len(nodes) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, id := range nodes {
		for _, nb := range t.neighbors(id) {
			if seen[nb] {
				continue
			}
			e, ok := t.store.EdgeBetween(id, nb)
			if !ok || e.Type != edgeType {
				continue
			}
			if !matchEdgeFilter(e, edgeFilter) {
				continue
			}
			if !target.Matches(t.nodeType(nb)) {
				continue
			}
			seen[nb] = true
			out = append(out, nb)
		}
	}
	return out
}

// TraverseAndCount keeps each node whose number of edgeType edges (in both
// directions) satisfies countCond. It returns the nodes themselves, not
// their neighbors.
func (t *Traverser) TraverseAndCount(nodes []string, edgeType EdgeType, countCond Condition) []string {
	if len(nodes) == 0 {
		return nil
	}
	var out []string
	for _, id := range nodes {
		if Evaluate(t.CountEdges(id, edgeType), countCond) {
			out = append(out, id)
		}
	}
	return out
}

// TraverseWithFilter follows outgoing edges of edgeType only. A neighbor is
// kept when its type matches target, every nodeFilter condition holds on its
// resolved attributes and every edgeFilter attribute equals the edge's.
func (t *Traverser) TraverseWithFilter(nodes []string, edgeType EdgeType, target NodeType, nodeFilter map[string]Condition, edgeFilter map[string]any) []string {
	if len(nodes) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, id := range nodes {
		for _, nb := range t.store.Successors(id) {
			if seen[nb] {
				continue
			}
			e, ok := t.store.EdgeFromTo(id, nb)
			if !ok || e.Type != edgeType {
				continue
			}
			if !matchEdgeFilter(e, edgeFilter) {
				continue
			}
			if !target.Matches(t.nodeType(nb)) {
				continue
			}
			if !t.matchNodeFilter(nb, nodeFilter) {
				continue
			}
			seen[nb] = true
			out = append(out, nb)
		}
	}
	return out
}

// TraverseReverse follows incoming edges of edgeType only, returning the
// predecessors whose type matches target.
func (t *Traverser) TraverseReverse(nodes []string, edgeType EdgeType, target NodeType) []string {
	if len(nodes) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, id := range nodes {
		for _, pred := range t.store.Predecessors(id) {
			if seen[pred] {
				continue
			}
			e, ok := t.store.EdgeFromTo(pred, id)
			if !ok || e.Type != edgeType {
				continue
			}
			if !target.Matches(t.nodeType(pred)) {
				continue
			}
			seen[pred] = true
			out = append(out, pred)
		}
	}
	return out
}

// ChainTraverse folds start through chain. Each hop is forward
// (TraverseWithFilter) or reverse (TraverseReverse). A hop whose edge type
// does not parse is skipped and the chain continues unchanged. The fold stops
// early and returns the empty set as soon as a hop yields nothing.
func (t *Traverser) ChainTraverse(start []string, chain []Hop) []string {
	if len(chain) == 0 || len(start) == 0 {
		return start
	}
	current := start
	for i, hop := range chain {
		edgeType, ok := ParseEdgeType(hop.EdgeType)
		if !ok {
			slog.Debug("skipping hop with unrecognized edge type", "hop", i, "edge_type", hop.EdgeType)
			continue
		}
		var target NodeType
		if hop.TargetNode != "" {
			if nt, ok := ParseNodeType(hop.TargetNode); ok {
				target = nt
			}
		}
		if hop.Direction == Reverse {
			current = t.TraverseReverse(current, edgeType, target)
		} else {
			current = t.TraverseWithFilter(current, edgeType, target, hop.NodeFilter, hop.EdgeFilter)
		}
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

// MultiHopTraverse runs chain from start. Without backtracking it returns the
// final hop's nodes. With backtracking it returns the subset of start whose
// own single-node chain run reaches the overall result set, so the caller
// gets nodes of the original type (e.g. papers) rather than the last hop's
// type (e.g. authors).
//
// Backtracking re-runs the chain once per start node: O(|start| x chain
// cost). That is acceptable for graphs of hundreds to low thousands of
// nodes and is bounded by MaxStartNodes and MaxChainDepth.
func (t *Traverser) MultiHopTraverse(start []string, chain []Hop, requiresBacktrack bool) ([]string, error) {
	if len(chain) == 0 {
		return start, nil
	}
	if err := t.checkDepth(chain); err != nil {
		return nil, err
	}

	result := t.ChainTraverse(start, chain)
	if !requiresBacktrack {
		return result, nil
	}
	if len(result) == 0 {
		return nil, nil
	}

	reached := make(map[string]bool, len(result))
	for _, id := range result {
		reached[id] = true
	}
	var valid []string
	for _, s := range start {
		for _, id := range t.ChainTraverse([]string{s}, chain) {
			if reached[id] {
				valid = append(valid, s)
				break
			}
		}
	}
	return valid, nil
}

func (t *Traverser) checkDepth(chain []Hop) error {
	limit := t.MaxChainDepth
	if limit <= 0 {
		limit = DefaultMaxChainDepth
	}
	if len(chain) > limit {
		return fmt.Errorf("%w: %d hops, limit %d", ErrChainTooDeep, len(chain), limit)
	}
	return nil
}

// Attribute resolves a node attribute, including the derived attributes
// publication_year, title_word_count and reference_count. Absent attributes
// resolve to nil.
func (t *Traverser) Attribute(id, name string) any {
	n, ok := t.store.Node(id)
	if !ok {
		return nil
	}
	if v, ok := n.Attrs[name]; ok {
		return v
	}

	switch name {
	case "publication_year":
		return PublicationYear(n)
	case "title_word_count":
		title, _ := n.Attr("title").(string)
		return len(strings.Fields(title))
	case "reference_count":
		count := 0
		for _, dst := range t.store.Successors(id) {
			if e, ok := t.store.EdgeFromTo(id, dst); ok && e.Type == EdgeCites {
				count++
			}
		}
		return count
	}
	return nil
}

// PublicationYear parses the leading four digits of publication_date. It
// returns nil when the date is missing or malformed.
func PublicationYear(n *Node) any {
	date, ok := n.Attr("publication_date").(string)
	if !ok || len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil
	}
	return year
}

// CountEdges returns how many edges of edgeType touch id in either
// direction.
func (t *Traverser) CountEdges(id string, edgeType EdgeType) int {
	count := 0
	for _, nb := range t.neighbors(id) {
		if e, ok := t.store.EdgeBetween(id, nb); ok && e.Type == edgeType {
			count++
		}
	}
	return count
}

// neighbors returns successors followed by predecessors. A node linked in
// both directions appears twice, matching how counts treat each direction.
func (t *Traverser) neighbors(id string) []string {
	succ := t.store.Successors(id)
	pred := t.store.Predecessors(id)
	out := make([]string, 0, len(succ)+len(pred))
	out = append(out, succ...)
	return append(out, pred...)
}

func (t *Traverser) nodeType(id string) NodeType {
	n, ok := t.store.Node(id)
	if !ok {
		return NodeTypeUnknown
	}
	return n.Type
}

func (t *Traverser) matchNodeFilter(id string, filter map[string]Condition) bool {
	for attr, cond := range filter {
		if !Evaluate(t.Attribute(id, attr), cond) {
			return false
		}
	}
	return true
}

// matchEdgeFilter requires every filter attribute to equal the edge's value.
func matchEdgeFilter(e *Edge, filter map[string]any) bool {
	for attr, want := range filter {
		if !valuesEqual(e.Attr(attr), want) {
			return false
		}
	}
	return true
}
