package eval

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lzyq-hntvu/browsecomp-V3/question"
)

// ConstraintStats summarizes constraints per unique question.
type ConstraintStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"avg"`
	StdDev float64 `json:"std_dev"`
}

// DiversityReport describes how varied a batch of questions is.
type DiversityReport struct {
	Total                  int             `json:"total"`
	Duplicates             int             `json:"duplicates"`
	Unique                 int             `json:"unique"`
	DiversityRate          float64         `json:"diversity_rate"`
	TemplateDistribution   map[string]int  `json:"template_distribution"`
	DifficultyDistribution map[string]int  `json:"difficulty_distribution"`
	Constraints            ConstraintStats `json:"constraint_stats"`
	MeanConfidence         float64         `json:"mean_confidence"`
}

// CheckDiversity greedily clusters qs by text similarity: a question at
// least threshold-similar to an earlier unique one is a duplicate. The
// distributions and statistics cover unique questions only.
func CheckDiversity(qs []*question.Question, threshold float64) *DiversityReport {
	r := &DiversityReport{
		Total:                  len(qs),
		TemplateDistribution:   map[string]int{},
		DifficultyDistribution: map[string]int{},
	}
	if len(qs) == 0 {
		return r
	}

	var unique []*question.Question
	for _, q := range qs {
		dup := false
		for _, u := range unique {
			if Similarity(q.Text, u.Text) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			r.Duplicates++
			continue
		}
		unique = append(unique, q)
	}
	r.Unique = len(unique)
	r.DiversityRate = float64(r.Unique) / float64(r.Total)

	counts := make([]float64, 0, len(unique))
	confidence := make([]float64, 0, len(unique))
	for _, q := range unique {
		r.TemplateDistribution[q.TemplateID]++
		r.DifficultyDistribution[string(q.Difficulty)]++
		n := 0
		if q.Constraints != nil {
			n = len(q.Constraints.Constraints)
		}
		counts = append(counts, float64(n))
		confidence = append(confidence, q.Confidence)
	}

	r.Constraints.Min = int(floats.Min(counts))
	r.Constraints.Max = int(floats.Max(counts))
	if len(counts) > 1 {
		r.Constraints.Mean, r.Constraints.StdDev = stat.MeanStdDev(counts, nil)
	} else {
		r.Constraints.Mean = counts[0]
	}
	r.MeanConfidence = stat.Mean(confidence, nil)
	return r
}

// FormatDiversityReport produces a human-readable report string.
func FormatDiversityReport(r *DiversityReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Diversity Report ===\n")
	fmt.Fprintf(&b, "Total: %d | Unique: %d | Duplicates: %d | Diversity: %.1f%%\n",
		r.Total, r.Unique, r.Duplicates, r.DiversityRate*100)
	fmt.Fprintf(&b, "Constraints per question: min=%d max=%d avg=%.2f std=%.2f\n",
		r.Constraints.Min, r.Constraints.Max, r.Constraints.Mean, r.Constraints.StdDev)
	fmt.Fprintf(&b, "Mean confidence: %.2f\n\n", r.MeanConfidence)

	writeDistribution(&b, "Templates", r.TemplateDistribution)
	writeDistribution(&b, "Difficulty", r.DifficultyDistribution)
	return b.String()
}

// writeDistribution prints counts sorted by key for deterministic output.
func writeDistribution(b *strings.Builder, title string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-8s %d\n", k, dist[k])
	}
	fmt.Fprintln(b)
}
