package question

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
)

func TestPhrase(t *testing.T) {
	tests := []struct {
		name string
		c    graph.Constraint
		want string
	}{
		{"temporal exact", graph.Constraint{Type: "temporal", Condition: graph.Where(graph.OpEq, 2019)}, "was published in 2019"},
		{"temporal range", graph.Constraint{Type: "temporal", Condition: graph.Between(2015, 2020)}, "was published between 2015 and 2020"},
		{"temporal after", graph.Constraint{Type: "temporal", Condition: graph.Where(graph.OpGt, 2018)}, "was published after 2018"},
		{"author count", graph.Constraint{Type: "author_count", Condition: graph.Where(graph.OpEq, 3)}, "was co-authored by 3 authors"},
		{"citation", graph.Constraint{Type: "citation", Condition: graph.Where(graph.OpGt, 10)}, "has been cited more than 10 times"},
		{"title", graph.Constraint{Type: "title_format", Condition: graph.Where(graph.OpEndsWith, "networks")}, "has a title ending with 'networks'"},
		{"person", graph.Constraint{Type: "person_name", Condition: graph.Eq("Ada")}, "was written by Ada"},
		{"first author", graph.Constraint{Type: "author_order", Condition: graph.Eq(1)}, "has a known first author"},
		{"late author", graph.Constraint{Type: "author_order", Condition: graph.Eq(12)}, "has a known 12th author"},
		{"institution", graph.Constraint{Type: "institution_affiliation", Condition: graph.Eq("MIT")}, "has an author affiliated with MIT"},
		{"coauthor", graph.Constraint{Type: "coauthor", Condition: graph.Eq("Bo")}, "was written by a co-author of Bo"},
		{"venue", graph.Constraint{Type: "publication_venue", Condition: graph.Eq("NeurIPS")}, "appeared in NeurIPS"},
		{"references", graph.Constraint{Type: "paper_structure", FilterAttribute: "reference_count", Condition: graph.Where(graph.OpGt, 20)}, "cites more than 20 references"},
		{"entity", graph.Constraint{Type: "technical_entity", Condition: graph.Eq("silicon")}, "mentions silicon"},
		{"fallback", graph.Constraint{Type: "location", Condition: graph.Eq("Boston"), Description: "location = Boston"}, "location = Boston"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Phrase(&tt.c); got != tt.want {
				t.Errorf("Phrase = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a and b"},
		{[]string{"a", "b", "c"}, "a, b, and c"},
	}
	for _, tt := range tests {
		if got := Join(tt.in); got != tt.want {
			t.Errorf("Join(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEstimateDifficulty(t *testing.T) {
	tests := []struct {
		constraints, hops int
		want              Difficulty
	}{
		{1, 2, Easy},
		{3, 1, Easy},
		{2, 4, Medium},
		{4, 3, Medium},
		{3, 4, Hard},
	}
	for _, tt := range tests {
		if got := EstimateDifficulty(tt.constraints, tt.hops); got != tt.want {
			t.Errorf("EstimateDifficulty(%d, %d) = %s, want %s", tt.constraints, tt.hops, got, tt.want)
		}
	}
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	cat, err := constraint.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	return NewRenderer(cat, rand.New(rand.NewSource(1)))
}

func TestTextUsesTemplatePatterns(t *testing.T) {
	r := newRenderer(t)
	set := &constraint.Set{
		TemplateID: "B",
		Constraints: []graph.Constraint{
			{Type: "temporal", Condition: graph.Where(graph.OpEq, 2019)},
			{Type: "person_name", Condition: graph.Eq("Ada")},
		},
	}
	for i := 0; i < 20; i++ {
		text := r.Text(set)
		if !strings.Contains(text, "was published in 2019 and was written by Ada") {
			t.Fatalf("text = %q", text)
		}
		if !strings.HasPrefix(text, "Which researcher") && !strings.HasPrefix(text, "Who is the scholar") {
			t.Fatalf("text %q does not use a template B pattern", text)
		}
	}
}

func TestTextFallbacks(t *testing.T) {
	r := newRenderer(t)

	unknown := &constraint.Set{TemplateID: "Z", Constraints: []graph.Constraint{{Type: "temporal", Condition: graph.Where(graph.OpLt, 2000)}}}
	text := r.Text(unknown)
	if !strings.Contains(text, "was published before 2000") {
		t.Errorf("text = %q", text)
	}

	if got := r.Text(&constraint.Set{TemplateID: "A"}); got != noConstraintText {
		t.Errorf("empty set text = %q", got)
	}
}

func TestGenerate(t *testing.T) {
	r := newRenderer(t)
	set := &constraint.Set{
		TemplateID:  "A",
		Constraints: []graph.Constraint{{Type: "temporal", Condition: graph.Where(graph.OpEq, 2019)}},
	}
	chain := reasoning.Build("A", graph.NodePaper, []graph.Step{{StepID: 1, ResultCount: 1}}, []string{"P1"})
	answer := reasoning.Answer{Text: "Graph Learning", EntityID: "P1", EntityType: graph.NodePaper}

	q := r.Generate(set, chain, answer)
	if _, err := uuid.Parse(q.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", q.ID, err)
	}
	if q.TemplateID != "A" || q.Answer != answer || !q.Valid {
		t.Errorf("question = %+v", q)
	}
	if q.Difficulty != Easy {
		t.Errorf("difficulty = %s, want easy", q.Difficulty)
	}
	if q.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}
