// Package reasoning builds and formats the reasoning chain of a generated
// question: the ordered record of which constraint narrowed the candidate set
// to what.
package reasoning

import (
	"fmt"
	"strings"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// Chain is the provenance of one query execution.
type Chain struct {
	TemplateID    string         `json:"template_id"`
	StartNodeType graph.NodeType `json:"start_node_type"`
	Steps         []graph.Step   `json:"steps"`
	TotalHops     int            `json:"total_hops"`
	// Candidates is the terminal node set after the last executed step.
	Candidates  []string `json:"candidates,omitempty"`
	FinalAnswer string   `json:"final_answer,omitempty"`
}

// Build wraps an execution trace into a Chain.
func Build(templateID string, start graph.NodeType, steps []graph.Step, candidates []string) *Chain {
	return &Chain{
		TemplateID:    templateID,
		StartNodeType: start,
		Steps:         steps,
		TotalHops:     len(steps),
		Candidates:    candidates,
	}
}

// Depth counts executed traversal hops: one per simple step and one per hop
// of a multi-hop constraint.
func Depth(steps []graph.Step, constraints []graph.Constraint) int {
	depth := 0
	for i := range steps {
		if i < len(constraints) && len(constraints[i].Chain) > 0 {
			depth += len(constraints[i].Chain)
			continue
		}
		depth++
	}
	return depth
}

var actionLabels = map[graph.Action]string{
	graph.ActionFilterCurrentNode: "Filter",
	graph.ActionTraverseEdge:      "Traverse",
	graph.ActionTraverseAndCount:  "Count",
	graph.ActionMultiHopTraverse:  "Multi-hop",
	graph.ActionChainTraverse:     "Chain",
}

// FormatMarkdown renders the chain as a Markdown section.
func FormatMarkdown(c *Chain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Reasoning chain (template %s)\n\n", c.TemplateID)
	fmt.Fprintf(&b, "**Total hops**: %d\n\n", c.TotalHops)
	b.WriteString("### Steps\n\n")

	for _, s := range c.Steps {
		label, ok := actionLabels[s.Action]
		if !ok {
			label = string(s.Action)
		}
		desc := s.Description
		if desc == "" {
			desc = "N/A"
		}
		fmt.Fprintf(&b, "%d. **[%s]** %s\n", s.StepID, label, desc)
		if !s.Condition.IsZero() {
			fmt.Fprintf(&b, "   - Condition: %s\n", s.Condition)
		}
		fmt.Fprintf(&b, "   - Results: %d\n\n", s.ResultCount)
	}
	if c.FinalAnswer != "" {
		fmt.Fprintf(&b, "**Answer**: %s\n", c.FinalAnswer)
	}
	return b.String()
}

// StepJSON is the flat export form of a step.
type StepJSON struct {
	StepID      int     `json:"step_id"`
	Action      string  `json:"action"`
	TargetNode  *string `json:"target_node"`
	EdgeType    *string `json:"edge_type"`
	Condition   *string `json:"filter_condition"`
	ResultCount int     `json:"result_count"`
	Description string  `json:"description"`
}

// ChainJSON is the flat export form of a chain.
type ChainJSON struct {
	TemplateID    string     `json:"template_id"`
	StartNodeType string     `json:"start_node_type"`
	TotalHops     int        `json:"total_hops"`
	Steps         []StepJSON `json:"steps"`
}

// FormatJSON converts the chain to its export form. Empty optional fields
// become null.
func FormatJSON(c *Chain) ChainJSON {
	out := ChainJSON{
		TemplateID:    c.TemplateID,
		StartNodeType: string(c.StartNodeType),
		TotalHops:     c.TotalHops,
		Steps:         make([]StepJSON, 0, len(c.Steps)),
	}
	for _, s := range c.Steps {
		out.Steps = append(out.Steps, StepJSON{
			StepID:      s.StepID,
			Action:      string(s.Action),
			TargetNode:  optional(string(s.TargetNode)),
			EdgeType:    optional(string(s.EdgeType)),
			Condition:   optional(s.Condition.String()),
			ResultCount: s.ResultCount,
			Description: s.Description,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
