// Package eval checks generated questions: per-question validity and the
// diversity of a generated batch.
package eval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/lzyq-hntvu/browsecomp-V3/question"
)

// ValidatorConfig controls which checks Validate applies.
type ValidatorConfig struct {
	RequireUniqueAnswer bool    `json:"require_unique_answer" yaml:"require_unique_answer"`
	MinConstraintCount  int     `json:"min_constraint_count" yaml:"min_constraint_count"`
	CheckDiversity      bool    `json:"check_diversity" yaml:"check_diversity"`
	DiversityThreshold  float64 `json:"diversity_threshold" yaml:"diversity_threshold"` // similarity at or above which two questions are duplicates
}

// DefaultValidatorConfig accepts ambiguous candidate sets and rejects
// questions at least 80% similar to an accepted one.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		RequireUniqueAnswer: false,
		MinConstraintCount:  1,
		CheckDiversity:      true,
		DiversityThreshold:  0.8,
	}
}

// Verdict is the outcome of validating one question.
type Verdict struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Validator validates questions and remembers the accepted ones for
// near-duplicate detection. Safe for concurrent use.
type Validator struct {
	cfg ValidatorConfig

	mu       sync.Mutex
	accepted []string
}

// NewValidator creates a validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks q against the configured rules. candidates is the terminal
// candidate set q was drawn from. A valid question is remembered.
func (v *Validator) Validate(q *question.Question, candidates []string) Verdict {
	var reasons []string

	if v.cfg.RequireUniqueAnswer && len(candidates) != 1 {
		reasons = append(reasons, fmt.Sprintf("answer is not unique: %d candidates", len(candidates)))
	}
	n := 0
	if q.Constraints != nil {
		n = len(q.Constraints.Constraints)
	}
	if n < v.cfg.MinConstraintCount {
		reasons = append(reasons, fmt.Sprintf("%d constraints, need at least %d", n, v.cfg.MinConstraintCount))
	}
	if strings.TrimSpace(q.Answer.Text) == "" {
		reasons = append(reasons, "empty answer")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg.CheckDiversity {
		for _, prev := range v.accepted {
			if s := Similarity(q.Text, prev); s >= v.cfg.DiversityThreshold {
				reasons = append(reasons, fmt.Sprintf("near duplicate (similarity %.2f)", s))
				break
			}
		}
	}

	if len(reasons) > 0 {
		return Verdict{Valid: false, Reasons: reasons}
	}
	v.accepted = append(v.accepted, q.Text)
	return Verdict{Valid: true}
}

// ValidateBatch returns the questions that pass, each checked against its
// own reasoning chain's candidates.
func (v *Validator) ValidateBatch(qs []*question.Question) []*question.Question {
	out := make([]*question.Question, 0, len(qs))
	for _, q := range qs {
		var candidates []string
		if q.Chain != nil {
			candidates = q.Chain.Candidates
		}
		if v.Validate(q, candidates).Valid {
			out = append(out, q)
		}
	}
	return out
}

// Accepted returns how many questions have passed so far.
func (v *Validator) Accepted() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.accepted)
}

// Reset forgets every accepted question.
func (v *Validator) Reset() {
	v.mu.Lock()
	v.accepted = nil
	v.mu.Unlock()
}

// Similarity is the normalized Levenshtein similarity of two texts in
// [0, 1], compared case-insensitively with whitespace collapsed.
func Similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
