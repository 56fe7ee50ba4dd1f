// Package question renders executed constraint sets as natural-language
// questions and carries the generated question model.
package question

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
)

// Difficulty is a coarse difficulty label.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Question is one generated question/answer pair with its provenance.
type Question struct {
	ID          string           `json:"question_id"`
	Text        string           `json:"question_text"`
	Answer      reasoning.Answer `json:"answer"`
	TemplateID  string           `json:"template_id"`
	Chain       *reasoning.Chain `json:"reasoning_chain,omitempty"`
	Constraints *constraint.Set  `json:"constraint_set,omitempty"`
	Difficulty  Difficulty       `json:"difficulty"`
	Confidence  float64          `json:"confidence"`
	Valid       bool             `json:"validity"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Fallback patterns for templates without their own.
var genericPatterns = []string{
	"Which paper {constraints}?",
	"Identify the paper that {constraints}.",
	"Find the academic paper that {constraints}.",
	"Which publication {constraints}? Give its title.",
}

const noConstraintText = "Which entity in the knowledge graph matches the given description?"

// Renderer turns constraint sets into question text.
type Renderer struct {
	catalog *constraint.Catalog
	rng     *rand.Rand
}

// NewRenderer creates a renderer. Pattern choice draws from rng.
func NewRenderer(catalog *constraint.Catalog, rng *rand.Rand) *Renderer {
	return &Renderer{catalog: catalog, rng: rng}
}

// Text renders the question sentence for set.
func (r *Renderer) Text(set *constraint.Set) string {
	phrases := make([]string, 0, len(set.Constraints))
	for i := range set.Constraints {
		if p := Phrase(&set.Constraints[i]); p != "" {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) == 0 {
		return noConstraintText
	}

	patterns := genericPatterns
	if t, err := r.catalog.Template(set.TemplateID); err == nil && len(t.QuestionPatterns) > 0 {
		patterns = t.QuestionPatterns
	}
	pattern := patterns[r.rng.Intn(len(patterns))]
	return strings.ReplaceAll(pattern, "{constraints}", Join(phrases))
}

// Generate assembles a Question for an executed set.
func (r *Renderer) Generate(set *constraint.Set, chain *reasoning.Chain, answer reasoning.Answer) *Question {
	hops := 0
	if chain != nil {
		hops = chain.TotalHops
	}
	return &Question{
		ID:          uuid.NewString(),
		Text:        r.Text(set),
		Answer:      answer,
		TemplateID:  set.TemplateID,
		Chain:       chain,
		Constraints: set,
		Difficulty:  EstimateDifficulty(len(set.Constraints), hops),
		Valid:       true,
		GeneratedAt: time.Now().UTC(),
	}
}

// Join combines phrases: "a", "a and b", "a, b, and c".
func Join(phrases []string) string {
	switch len(phrases) {
	case 0:
		return ""
	case 1:
		return phrases[0]
	case 2:
		return phrases[0] + " and " + phrases[1]
	}
	return strings.Join(phrases[:len(phrases)-1], ", ") + ", and " + phrases[len(phrases)-1]
}

// EstimateDifficulty scores constraints + 2×hops: up to 5 is easy, up to 10
// medium, above that hard.
func EstimateDifficulty(constraints, hops int) Difficulty {
	score := constraints + 2*hops
	switch {
	case score <= 5:
		return Easy
	case score <= 10:
		return Medium
	}
	return Hard
}
