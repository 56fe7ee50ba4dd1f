package constraint

import (
	"fmt"
	"log/slog"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// multiHopTypes are the constraint types that need more than a single
// attribute filter.
var multiHopTypes = map[string]bool{
	"person_name":             true,
	"author_order":            true,
	"institution_affiliation": true,
	"coauthor":                true,
	"cited_by_author":         true,
	"publication_venue":       true,
}

// IsMultiHopType reports whether constraintType is instantiated as a chain.
func IsMultiHopType(constraintType string) bool { return multiHopTypes[constraintType] }

// Instantiator turns a rule into a concrete constraint.
type Instantiator struct {
	sampler *Sampler
}

// NewInstantiator creates an instantiator drawing values from sampler.
func NewInstantiator(sampler *Sampler) *Instantiator {
	return &Instantiator{sampler: sampler}
}

// Instantiate builds a constraint for rule id. It returns nil when no
// satisfiable constraint could be produced; the caller should try another
// rule.
func (in *Instantiator) Instantiate(id string, rule *Rule) *graph.Constraint {
	if rule == nil {
		return nil
	}
	var c *graph.Constraint
	if multiHopTypes[rule.Type] {
		c = in.multiHop(id, rule)
	} else {
		c = in.simple(id, rule)
	}
	if c == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		slog.Warn("dropping invalid constraint", "constraint_id", id, "error", err)
		return nil
	}
	return c
}

func (in *Instantiator) simple(id string, rule *Rule) *graph.Constraint {
	op := rule.Operation
	action, ok := graph.ParseAction(op.Action)
	if !ok {
		slog.Warn("failed to instantiate constraint", "constraint_id", id, "error", fmt.Sprintf("unknown action %q", op.Action))
		return nil
	}
	var target graph.NodeType
	if op.TargetNode != "" {
		if target, ok = graph.ParseNodeType(op.TargetNode); !ok {
			slog.Warn("failed to instantiate constraint", "constraint_id", id, "error", fmt.Sprintf("unknown node type %q", op.TargetNode))
			return nil
		}
	}
	var edge graph.EdgeType
	if op.EdgeType != "" {
		if edge, ok = graph.ParseEdgeType(op.EdgeType); !ok {
			slog.Warn("failed to instantiate constraint", "constraint_id", id, "error", fmt.Sprintf("unknown edge type %q", op.EdgeType))
			return nil
		}
	}

	cond := in.sampler.Value(rule, target)
	if IsUnknown(cond) {
		slog.Debug("no graph data for constraint", "constraint_id", id, "type", rule.Type)
		return nil
	}
	return &graph.Constraint{
		ID:              id,
		Type:            rule.Type,
		Action:          action,
		TargetNode:      target,
		EdgeType:        edge,
		FilterAttribute: op.FilterAttribute,
		Condition:       cond,
		Description:     Describe(rule.Name, cond),
	}
}

func (in *Instantiator) multiHop(id string, rule *Rule) *graph.Constraint {
	c := &graph.Constraint{
		ID:                id,
		Type:              rule.Type,
		Action:            graph.ActionMultiHopTraverse,
		RequiresBacktrack: true,
	}

	var value any
	switch rule.Type {
	case "person_name":
		name := in.sampler.PersonName()
		value = name
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward,
				NodeFilter: map[string]graph.Condition{"name": graph.Eq(name)}},
		}
		c.Description = fmt.Sprintf("written by %s", name)

	case "author_order":
		order := in.sampler.AuthorOrder()
		value = order
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward,
				EdgeFilter: map[string]any{"author_order": order}},
		}
		c.Description = fmt.Sprintf("author at position %d", order)

	case "institution_affiliation":
		name := in.sampler.InstitutionName()
		value = name
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward},
			{EdgeType: string(graph.EdgeAffiliatedWith), TargetNode: string(graph.NodeInstitution), Direction: graph.Forward,
				NodeFilter: map[string]graph.Condition{"name": graph.Eq(name)}},
		}
		c.Description = fmt.Sprintf("author affiliated with %s", name)

	case "coauthor":
		name := in.sampler.PersonName()
		value = name
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward},
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodePaper), Direction: graph.Reverse},
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward,
				NodeFilter: map[string]graph.Condition{"name": graph.Where(graph.OpEq, name)}},
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodePaper), Direction: graph.Reverse},
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward},
		}
		c.Description = fmt.Sprintf("author has collaborated with %s", name)

	case "cited_by_author":
		name := in.sampler.PersonName()
		value = name
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgeCites), TargetNode: string(graph.NodePaper), Direction: graph.Reverse},
			{EdgeType: string(graph.EdgeHasAuthor), TargetNode: string(graph.NodeAuthor), Direction: graph.Forward,
				NodeFilter: map[string]graph.Condition{"name": graph.Where(graph.OpEq, name)}},
		}
		c.Description = fmt.Sprintf("cited by a paper of %s", name)

	case "publication_venue":
		name := in.sampler.VenueName()
		value = name
		c.Chain = []graph.Hop{
			{EdgeType: string(graph.EdgePublishedIn), TargetNode: string(graph.NodeVenue), Direction: graph.Forward,
				NodeFilter: map[string]graph.Condition{"name": graph.Eq(name)}},
		}
		c.Description = fmt.Sprintf("published in %s", name)

	default:
		return nil
	}

	if s, ok := value.(string); ok && (s == Unknown || s == "") {
		slog.Debug("no graph data for constraint", "constraint_id", id, "type", rule.Type)
		return nil
	}
	c.Condition = graph.Eq(value)
	return c
}

// Describe renders "name op value" for a condition.
func Describe(name string, cond graph.Condition) string {
	if cond.IsZero() {
		return name
	}
	op, v := cond.First()
	switch op {
	case graph.OpBetween:
		if b, ok := v.([]any); ok && len(b) == 2 {
			return fmt.Sprintf("%s between %v and %v", name, b[0], b[1])
		}
	case graph.OpIn:
		return fmt.Sprintf("%s in %v", name, v)
	case graph.OpContains:
		return fmt.Sprintf("%s contains '%v'", name, v)
	case graph.OpEndsWith:
		return fmt.Sprintf("%s ends with '%v'", name, v)
	case graph.OpStartsWith:
		return fmt.Sprintf("%s starts with '%v'", name, v)
	case graph.OpEq, graph.OpNe, graph.OpGt, graph.OpLt, graph.OpGe, graph.OpLe:
		return fmt.Sprintf("%s %s %v", name, op, v)
	}
	return fmt.Sprintf("%s: %s", name, cond)
}
