package reasoning

import (
	"fmt"
	"strings"
)

// CheckResult holds the outcome of chain checks.
type CheckResult struct {
	StructureValid  bool     `json:"structure_valid"`
	StructureIssues []string `json:"structure_issues,omitempty"`
	ResultValid     bool     `json:"result_valid"`
	ResultIssues    []string `json:"result_issues,omitempty"`
}

// OK reports whether every check passed.
func (r *CheckResult) OK() bool { return r.StructureValid && r.ResultValid }

// Summary joins the issues into one line per category.
func (r *CheckResult) Summary() string {
	var parts []string
	if !r.StructureValid {
		parts = append(parts, "Structure issues: "+strings.Join(r.StructureIssues, "; "))
	}
	if !r.ResultValid {
		parts = append(parts, "Result issues: "+strings.Join(r.ResultIssues, "; "))
	}
	if len(parts) == 0 {
		return "All checks passed."
	}
	return strings.Join(parts, "\n")
}

// Check verifies that a chain is a faithful execution record: step ids are
// consecutive from 1, only the last step may be empty, and the terminal
// candidate set matches the last step's count.
func Check(c *Chain) *CheckResult {
	r := &CheckResult{StructureValid: true, ResultValid: true}
	checkStructure(c, r)
	checkResults(c, r)
	return r
}

func checkStructure(c *Chain, r *CheckResult) {
	if len(c.Steps) == 0 {
		r.StructureValid = false
		r.StructureIssues = append(r.StructureIssues, "chain has no steps")
		return
	}
	if c.TotalHops != len(c.Steps) {
		r.StructureValid = false
		r.StructureIssues = append(r.StructureIssues,
			fmt.Sprintf("total hops %d does not match %d steps", c.TotalHops, len(c.Steps)))
	}
	for i, s := range c.Steps {
		if s.StepID != i+1 {
			r.StructureValid = false
			r.StructureIssues = append(r.StructureIssues,
				fmt.Sprintf("step %d has id %d", i+1, s.StepID))
		}
	}
}

func checkResults(c *Chain, r *CheckResult) {
	for i, s := range c.Steps {
		if s.ResultCount == 0 && i < len(c.Steps)-1 {
			r.ResultValid = false
			r.ResultIssues = append(r.ResultIssues,
				fmt.Sprintf("step %d is empty but execution continued", s.StepID))
		}
	}
	if n := len(c.Steps); n > 0 && c.Candidates != nil && c.Steps[n-1].ResultCount != len(c.Candidates) {
		r.ResultValid = false
		r.ResultIssues = append(r.ResultIssues,
			fmt.Sprintf("last step reports %d results but %d candidates remain", c.Steps[n-1].ResultCount, len(c.Candidates)))
	}
	if len(c.Candidates) == 0 {
		r.ResultValid = false
		r.ResultIssues = append(r.ResultIssues, "no candidates")
	}
}
