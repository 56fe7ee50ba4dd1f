//go:build cgo

package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/question"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 16)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.FingerprintDim() != 16 {
		t.Fatalf("expected fingerprint dim 16, got %d", s.FingerprintDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"), 0)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	defer s.Close()
	if s.FingerprintDim() != DefaultFingerprintDim {
		t.Errorf("dim = %d, want default", s.FingerprintDim())
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	g.AddNode(&graph.Node{ID: "P1", Type: graph.NodePaper, Attrs: map[string]any{"type": "Paper", "title": "Graph Learning", "publication_date": "2019-01-01"}})
	g.AddNode(&graph.Node{ID: "A1", Type: graph.NodeAuthor, Attrs: map[string]any{"type": "Author", "name": "Ada"}})
	g.AddNode(&graph.Node{ID: "X1", Type: graph.NodeTypeUnknown, Attrs: map[string]any{"type": "Dataset"}})
	for _, e := range []*graph.Edge{
		{Source: "P1", Target: "A1", Type: graph.EdgeHasAuthor, Attrs: map[string]any{"author_order": 1}},
		{Source: "P1", Target: "X1", Type: graph.EdgeTypeUnknown, Label: "USES"},
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestImportAndLoadGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.ImportGraph(ctx, sampleGraph(t))
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if stats.Nodes != 3 || stats.Edges != 2 {
		t.Errorf("import stats = %+v", stats)
	}

	// Re-import is an upsert.
	if _, err := s.ImportGraph(ctx, sampleGraph(t)); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	g, loaded, err := s.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if g.NodeCount() != 3 || g.EdgeCount() != 2 {
		t.Fatalf("loaded %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
	}
	if loaded.UnknownNodeTypes != 1 || loaded.UnknownEdgeTypes != 1 {
		t.Errorf("load stats = %+v", loaded)
	}

	p, ok := g.Node("P1")
	if !ok || p.Type != graph.NodePaper || p.Attr("title") != "Graph Learning" {
		t.Errorf("P1 = %+v", p)
	}
	e, ok := g.EdgeFromTo("P1", "A1")
	if !ok || e.Type != graph.EdgeHasAuthor {
		t.Fatalf("edge P1->A1 = %+v", e)
	}
	if e.Attr("author_order") != float64(1) {
		t.Errorf("author_order = %v (%T)", e.Attr("author_order"), e.Attr("author_order"))
	}

	// Loaded graph supports traversal.
	tr := graph.NewTraverser(g)
	out, _, err := tr.Traverse(g.NodesByType(graph.NodePaper), []graph.Constraint{{
		ID: "C01", Action: graph.ActionFilterCurrentNode, FilterAttribute: "publication_year", Condition: graph.Eq(2019),
	}})
	if err != nil || len(out) != 1 {
		t.Errorf("traverse = %v, %v", out, err)
	}
}

// ---------------------------------------------------------------------------
// Questions
// ---------------------------------------------------------------------------

func sampleQuestion(id, text, template string) *question.Question {
	steps := []graph.Step{
		{StepID: 1, Action: graph.ActionFilterCurrentNode, Condition: graph.Between(2015, 2020), ResultCount: 4, Description: "publication year between 2015 and 2020"},
		{StepID: 2, Action: graph.ActionMultiHopTraverse, Condition: graph.Eq("Ada"), ResultCount: 1, Description: "written by Ada"},
	}
	return &question.Question{
		ID:     id,
		Text:   text,
		Answer: reasoning.Answer{Text: "Graph Learning", EntityID: "P1", EntityType: graph.NodePaper},
		Constraints: &constraint.Set{TemplateID: template, LogicalOperator: constraint.OperatorAnd, Constraints: []graph.Constraint{
			{ID: "C01", Type: "temporal", Action: graph.ActionFilterCurrentNode, FilterAttribute: "publication_year", Condition: graph.Between(2015, 2020)},
			{ID: "C28", Type: "person_name", Action: graph.ActionMultiHopTraverse, RequiresBacktrack: true, Condition: graph.Eq("Ada"),
				Chain: []graph.Hop{{EdgeType: "HAS_AUTHOR", TargetNode: "Author", Direction: graph.Forward,
					NodeFilter: map[string]graph.Condition{"name": graph.Eq("Ada")}}}},
		}},
		TemplateID:  template,
		Chain:       reasoning.Build(template, graph.NodePaper, steps, []string{"P1"}),
		Difficulty:  question.Medium,
		Confidence:  0.8,
		Valid:       true,
		GeneratedAt: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

func TestSaveAndGetQuestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := sampleQuestion("q-1", "Which paper was published between 2015 and 2020 and was written by Ada?", "A")
	if err := s.SaveQuestion(ctx, q); err != nil {
		t.Fatalf("SaveQuestion: %v", err)
	}

	got, err := s.GetQuestion(ctx, "q-1")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if got.Text != q.Text || got.AnswerText != "Graph Learning" || got.AnswerEntityType != "Paper" {
		t.Errorf("question = %+v", got)
	}
	if !got.Valid || got.Difficulty != "medium" || math.Abs(got.Confidence-0.8) > 1e-9 {
		t.Errorf("question flags = %+v", got)
	}
	if !got.GeneratedAt.Equal(q.GeneratedAt) {
		t.Errorf("generated_at = %v, want %v", got.GeneratedAt, q.GeneratedAt)
	}
	if got.Constraints == nil || len(got.Constraints.Constraints) != 2 {
		t.Fatalf("constraints = %+v", got.Constraints)
	}
	c := got.Constraints.Constraints[1]
	if len(c.Chain) != 1 || c.Chain[0].NodeFilter["name"].Value() != "Ada" || !c.RequiresBacktrack {
		t.Errorf("multi-hop constraint = %+v", c)
	}
	if !got.Constraints.Constraints[0].Condition.Has(graph.OpBetween) {
		t.Errorf("temporal condition = %v", got.Constraints.Constraints[0].Condition)
	}

	if len(got.Steps) != 2 || got.Steps[1].Description != "written by Ada" || got.Steps[0].ResultCount != 4 {
		t.Errorf("steps = %+v", got.Steps)
	}

	if _, err := s.GetQuestion(ctx, "missing"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("err = %v, want ErrQuestionNotFound", err)
	}
}

func TestSaveQuestionReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := sampleQuestion("q-1", "Which paper was written by Ada?", "A")
	if err := s.SaveQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}
	q.Text = "Which paper was written by Bo?"
	if err := s.SaveQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Questions != 1 || stats.Steps != 2 || stats.Fingerprints != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestListQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []*question.Question{
		sampleQuestion("q-1", "Which paper was written by Ada?", "A"),
		sampleQuestion("q-2", "Which paper appeared in NeurIPS?", "A"),
		sampleQuestion("q-3", "Who is the scholar affiliated with MIT?", "B"),
	} {
		if err := s.SaveQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		template string
		limit    int
		wantIDs  []string
	}{
		{"", 0, []string{"q-3", "q-2", "q-1"}},
		{"A", 0, []string{"q-2", "q-1"}},
		{"", 1, []string{"q-3"}},
		{"Z", 0, nil},
	}
	for _, tt := range tests {
		got, err := s.ListQuestions(ctx, tt.template, tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(tt.wantIDs) {
			t.Errorf("ListQuestions(%q, %d) = %d rows, want %d", tt.template, tt.limit, len(got), len(tt.wantIDs))
			continue
		}
		for i, id := range tt.wantIDs {
			if got[i].ID != id {
				t.Errorf("ListQuestions(%q, %d)[%d] = %s, want %s", tt.template, tt.limit, i, got[i].ID, id)
			}
		}
	}
}

func TestSimilarQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []*question.Question{
		sampleQuestion("q-1", "Which paper was published in 2019 and was written by Ada?", "A"),
		sampleQuestion("q-2", "Who is the scholar affiliated with MIT?", "B"),
	} {
		if err := s.SaveQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := s.SimilarQuestions(ctx, "Which paper was published in 2018 and was written by Ada?", 2)
	if err != nil {
		t.Fatalf("SimilarQuestions: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].ID != "q-1" {
		t.Errorf("nearest = %s, want q-1", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not ordered: %v, %v", hits[0].Score, hits[1].Score)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.ImportGraph(ctx, sampleGraph(t)); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 3 || stats.Edges != 2 || stats.Questions != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NodesByType["Paper"] != 1 || stats.NodesByType["Dataset"] != 1 {
		t.Errorf("nodes by type = %v", stats.NodesByType)
	}
	if stats.SchemaVersion != len(migrations) {
		t.Errorf("schema version = %d", stats.SchemaVersion)
	}
}

// ---------------------------------------------------------------------------
// Fingerprints
// ---------------------------------------------------------------------------

func TestFingerprint(t *testing.T) {
	v := Fingerprint("Which paper was written by Ada?", 32)
	if len(v) != 32 {
		t.Fatalf("len = %d", len(v))
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("norm^2 = %v, want 1", sum)
	}

	a := Fingerprint("ABC  def", 32)
	b := Fingerprint("abc def", 32)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("fingerprint should ignore case and whitespace runs")
		}
	}

	if e := Fingerprint("", 8); e[0] != 1 {
		t.Errorf("empty fingerprint = %v", e)
	}
}
