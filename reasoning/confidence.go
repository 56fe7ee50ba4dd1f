package reasoning

import "github.com/lzyq-hntvu/browsecomp-V3/graph"

// ConfidenceWeights controls the relative importance of confidence factors.
type ConfidenceWeights struct {
	Uniqueness float64 `json:"uniqueness" yaml:"uniqueness"` // How close the candidate set is to a single answer
	Narrowing  float64 `json:"narrowing" yaml:"narrowing"`   // How much the constraints shrank the start set
	Diversity  float64 `json:"diversity" yaml:"diversity"`   // How many distinct constraint types were used
	Depth      float64 `json:"depth" yaml:"depth"`           // Share of multi-hop constraints
}

// DefaultConfidenceWeights returns balanced weights.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Uniqueness: 0.4,
		Narrowing:  0.3,
		Diversity:  0.15,
		Depth:      0.15,
	}
}

// ComputeConfidence scores in [0, 1] how well-posed a question built from
// this chain is. startCount is the size of the start set before the first
// step.
func ComputeConfidence(c *Chain, startCount int, constraints []graph.Constraint, weights ConfidenceWeights) float64 {
	confidence := uniquenessScore(c)*weights.Uniqueness +
		narrowingScore(c, startCount)*weights.Narrowing +
		diversityScore(constraints)*weights.Diversity +
		depthScore(constraints)*weights.Depth

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// uniquenessScore is 1 for a single candidate and decays with more.
func uniquenessScore(c *Chain) float64 {
	if len(c.Candidates) == 0 {
		return 0
	}
	return 1 / float64(len(c.Candidates))
}

// narrowingScore measures the fraction of start nodes eliminated.
func narrowingScore(c *Chain, startCount int) float64 {
	if startCount <= 1 || len(c.Candidates) == 0 {
		return 0
	}
	return 1 - float64(len(c.Candidates)-1)/float64(startCount-1)
}

func diversityScore(constraints []graph.Constraint) float64 {
	if len(constraints) == 0 {
		return 0
	}
	types := make(map[string]bool, len(constraints))
	for _, c := range constraints {
		types[c.Type] = true
	}
	return float64(len(types)) / float64(len(constraints))
}

func depthScore(constraints []graph.Constraint) float64 {
	if len(constraints) == 0 {
		return 0
	}
	multi := 0
	for _, c := range constraints {
		if c.IsMultiHop() {
			multi++
		}
	}
	return float64(multi) / float64(len(constraints))
}
