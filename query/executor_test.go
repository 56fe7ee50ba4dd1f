package query

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

type fixture struct {
	exec     *Executor
	metrics  *Metrics
	exporter *tracetest.InMemoryExporter
	tr       *graph.Traverser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := graph.New()
	for _, n := range []*graph.Node{
		{ID: "P1", Type: graph.NodePaper, Attrs: map[string]any{"title": "A", "publication_date": "2019-03-01"}},
		{ID: "P2", Type: graph.NodePaper, Attrs: map[string]any{"title": "B", "publication_date": "2020-03-01"}},
		{ID: "P3", Type: graph.NodePaper, Attrs: map[string]any{"title": "C", "publication_date": "2020-11-01"}},
		{ID: "A1", Type: graph.NodeAuthor, Attrs: map[string]any{"name": "Ada"}},
	} {
		g.AddNode(n)
	}
	if err := g.AddEdge(&graph.Edge{Source: "P2", Target: "A1", Type: graph.EdgeHasAuthor}); err != nil {
		t.Fatal(err)
	}

	cat, err := constraint.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := NewMetrics(prometheus.NewRegistry())
	tr := graph.NewTraverser(g)
	return &fixture{
		exec:     NewExecutor(tr, cat, WithMetrics(m), WithTracer(tp.Tracer("test"))),
		metrics:  m,
		exporter: exporter,
		tr:       tr,
	}
}

func yearIs(y int) graph.Constraint {
	return graph.Constraint{
		ID: "C01", Type: "temporal", Action: graph.ActionFilterCurrentNode,
		FilterAttribute: "publication_year", Condition: graph.Eq(y),
	}
}

func TestExecuteUnique(t *testing.T) {
	f := newFixture(t)
	set := &constraint.Set{TemplateID: "A", Constraints: []graph.Constraint{yearIs(2019)}, LogicalOperator: constraint.OperatorAnd}

	r, err := f.exec.Execute(context.Background(), set, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(r.Candidates) != 1 || r.Candidates[0] != "P1" {
		t.Errorf("candidates = %v, want [P1]", r.Candidates)
	}
	if r.StartCount != 3 {
		t.Errorf("StartCount = %d, want 3", r.StartCount)
	}
	if r.Chain.TotalHops != 1 || r.Chain.StartNodeType != graph.NodePaper {
		t.Errorf("chain = %+v", r.Chain)
	}
	if got := testutil.ToFloat64(f.metrics.executions.WithLabelValues("A", OutcomeUnique)); got != 1 {
		t.Errorf("unique executions = %v, want 1", got)
	}

	spans := f.exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["template_id"].AsString() != "A" || attrs["candidates"].AsInt64() != 1 {
		t.Errorf("span attributes = %v", spans[0].Attributes)
	}
}

func TestExecuteStopsOnEmpty(t *testing.T) {
	f := newFixture(t)
	set := &constraint.Set{TemplateID: "A", Constraints: []graph.Constraint{yearIs(1900), yearIs(2019)}}

	r, err := f.exec.Execute(context.Background(), set, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(r.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", r.Candidates)
	}
	if len(r.Chain.Steps) != 1 {
		t.Errorf("steps = %d, want 1", len(r.Chain.Steps))
	}
	if got := testutil.ToFloat64(f.metrics.executions.WithLabelValues("A", OutcomeEmpty)); got != 1 {
		t.Errorf("empty executions = %v, want 1", got)
	}
}

func TestExecuteExplicitStart(t *testing.T) {
	f := newFixture(t)
	set := &constraint.Set{TemplateID: "A", Constraints: []graph.Constraint{{
		ID: "C02", Type: "author_count", Action: graph.ActionTraverseAndCount,
		EdgeType: graph.EdgeHasAuthor, Condition: graph.Where(graph.OpGe, 1),
	}}}

	r, err := f.exec.Execute(context.Background(), set, []string{"P2", "P3"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(r.Candidates) != 1 || r.Candidates[0] != "P2" {
		t.Errorf("candidates = %v, want [P2]", r.Candidates)
	}
}

func TestExecuteStepFailure(t *testing.T) {
	f := newFixture(t)
	set := &constraint.Set{TemplateID: "A", Constraints: []graph.Constraint{
		yearIs(2020),
		{ID: "CX", Action: graph.Action("teleport")},
	}}

	_, err := f.exec.Execute(context.Background(), set, nil)
	if !errors.Is(err, graph.ErrTraversal) {
		t.Fatalf("err = %v, want ErrTraversal", err)
	}
	var se *graph.StepError
	if !errors.As(err, &se) || se.Index != 2 {
		t.Errorf("step error = %v, want index 2", err)
	}
	if got := testutil.ToFloat64(f.metrics.executions.WithLabelValues("A", OutcomeError)); got != 1 {
		t.Errorf("error executions = %v, want 1", got)
	}
	if spans := f.exporter.GetSpans(); len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Errorf("span status not set to error")
	}
}

func TestExecuteUnknownTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec.Execute(context.Background(), &constraint.Set{TemplateID: "Z"}, nil)
	if !errors.Is(err, constraint.ErrTemplateNotFound) {
		t.Errorf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestExecuteStartLimit(t *testing.T) {
	f := newFixture(t)
	f.tr.MaxStartNodes = 2
	set := &constraint.Set{TemplateID: "A", Constraints: []graph.Constraint{yearIs(2020)}}

	r, err := f.exec.Execute(context.Background(), set, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.StartCount != 2 {
		t.Errorf("StartCount = %d, want 2", r.StartCount)
	}
	if len(r.Candidates) != 1 || r.Candidates[0] != "P2" {
		t.Errorf("candidates = %v, want [P2]", r.Candidates)
	}
}

func TestExecuteBatchSkipsFailures(t *testing.T) {
	f := newFixture(t)
	sets := []*constraint.Set{
		{TemplateID: "A", Constraints: []graph.Constraint{yearIs(2019)}},
		{TemplateID: "Z", Constraints: []graph.Constraint{yearIs(2019)}},
		{TemplateID: "A", Constraints: []graph.Constraint{yearIs(2020)}},
	}

	results := f.exec.ExecuteBatch(context.Background(), sets)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(results[1].Candidates) != 2 {
		t.Errorf("second result candidates = %v", results[1].Candidates)
	}
}

func TestExecuteBatchCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := f.exec.ExecuteBatch(ctx, []*constraint.Set{{TemplateID: "A"}})
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}
