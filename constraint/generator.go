package constraint

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// Logical operators of a Set. Only AND is produced.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// DefaultEnabledTypes are the constraint types with a verified
// instantiation path.
var DefaultEnabledTypes = []string{
	"temporal", "author_count", "citation", "title_format",
	"person_name", "author_order", "institution_affiliation",
	"coauthor", "cited_by_author", "publication_venue",
}

// singleValuedTypes may appear at most once per set: two different values of
// the same type under AND would be unsatisfiable.
var singleValuedTypes = map[string]bool{
	"person_name":             true,
	"institution_affiliation": true,
	"location":                true,
	"position_title":          true,
	"award_honor":             true,
	"birth_info":              true,
	"editorial_role":          true,
	"conference_event":        true,
	"research_topic":          true,
	"author_order":            true,
	"coauthor":                true,
	"cited_by_author":         true,
	"publication_venue":       true,
}

// IsSingleValued reports whether a set keeps at most one constraint of
// constraintType.
func IsSingleValued(constraintType string) bool { return singleValuedTypes[constraintType] }

// Set is an ordered conjunction of constraints generated for one template.
type Set struct {
	TemplateID      string             `json:"template_id"`
	Constraints     []graph.Constraint `json:"constraints"`
	LogicalOperator string             `json:"logical_operator"`
}

// Types returns the constraint types in order.
func (s *Set) Types() []string {
	out := make([]string, len(s.Constraints))
	for i, c := range s.Constraints {
		out[i] = c.Type
	}
	return out
}

// Generator builds constraint sets for templates.
type Generator struct {
	catalog      *Catalog
	instantiator *Instantiator
	rng          *rand.Rand
	enabled      map[string]bool
}

// NewGenerator creates a generator. A nil or empty enabledTypes selects
// DefaultEnabledTypes.
func NewGenerator(catalog *Catalog, instantiator *Instantiator, rng *rand.Rand, enabledTypes []string) *Generator {
	if len(enabledTypes) == 0 {
		enabledTypes = DefaultEnabledTypes
	}
	enabled := make(map[string]bool, len(enabledTypes))
	for _, t := range enabledTypes {
		enabled[t] = true
	}
	return &Generator{catalog: catalog, instantiator: instantiator, rng: rng, enabled: enabled}
}

// Enabled reports whether constraintType may be generated.
func (g *Generator) Enabled(constraintType string) bool { return g.enabled[constraintType] }

// Generate builds a constraint set for templateID with between minN and maxN
// sampled rules. Rule ids are drawn with replacement, so the result may hold
// fewer constraints than drawn after de-duplication. ErrNoConstraints means
// nothing survived; the caller should retry.
func (g *Generator) Generate(templateID string, minN, maxN int) (*Set, error) {
	ids, err := g.catalog.ApplicableConstraints(templateID)
	if err != nil {
		return nil, fmt.Errorf("constraint.Generate: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("constraint.Generate: template %s: %w", templateID, ErrNoConstraints)
	}

	valid := g.preFilter(ids)
	if len(valid) == 0 {
		return nil, fmt.Errorf("constraint.Generate: template %s has no enabled constraint types: %w", templateID, ErrNoConstraints)
	}

	if minN < 1 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}
	n := minN + g.rng.Intn(maxN-minN+1)
	k := min(n, 2*len(valid))

	var instantiated []graph.Constraint
	for i := 0; i < k; i++ {
		id := valid[g.rng.Intn(len(valid))]
		rule, err := g.catalog.Rule(id)
		if err != nil {
			continue
		}
		if c := g.instantiator.Instantiate(id, rule); c != nil {
			instantiated = append(instantiated, *c)
		}
	}
	if len(instantiated) == 0 {
		return nil, fmt.Errorf("constraint.Generate: template %s: no rule instantiated: %w", templateID, ErrNoConstraints)
	}

	out := g.filter(dedup(instantiated))
	if len(out) == 0 {
		return nil, fmt.Errorf("constraint.Generate: template %s: all constraints filtered: %w", templateID, ErrNoConstraints)
	}
	slog.Debug("generated constraints", "template", templateID, "count", len(out))

	return &Set{TemplateID: templateID, Constraints: out, LogicalOperator: OperatorAnd}, nil
}

// preFilter keeps the rule ids whose type is enabled. Ids without a rule are
// skipped.
func (g *Generator) preFilter(ids []string) []string {
	var out []string
	for _, id := range ids {
		rule, err := g.catalog.Rule(id)
		if err != nil {
			continue
		}
		if g.enabled[rule.Type] {
			out = append(out, id)
		}
	}
	return out
}

// dedup keeps the first constraint of each single-valued type and the first
// constraint of each id, preserving order.
func dedup(cs []graph.Constraint) []graph.Constraint {
	seenTypes := make(map[string]bool)
	seenIDs := make(map[string]bool)
	var out []graph.Constraint
	for _, c := range cs {
		if singleValuedTypes[c.Type] {
			if seenTypes[c.Type] {
				continue
			}
			seenTypes[c.Type] = true
		}
		if seenIDs[c.ID] {
			continue
		}
		seenIDs[c.ID] = true
		out = append(out, c)
	}
	return out
}

// filter drops constraints that cannot discriminate: disabled types, an
// empty condition, the Unknown sentinel or an exists check.
func (g *Generator) filter(cs []graph.Constraint) []graph.Constraint {
	var out []graph.Constraint
	for _, c := range cs {
		switch {
		case !g.enabled[c.Type]:
			slog.Debug("skipping constraint", "constraint_id", c.ID, "reason", "type not enabled")
		case c.Condition.IsZero():
			slog.Debug("skipping constraint", "constraint_id", c.ID, "reason", "no condition")
		case IsUnknown(c.Condition):
			slog.Debug("skipping constraint", "constraint_id", c.ID, "reason", "unknown value")
		case c.Condition.Has(graph.OpExists):
			slog.Debug("skipping constraint", "constraint_id", c.ID, "reason", "exists check")
		default:
			out = append(out, c)
		}
	}
	return out
}
