// Package query executes constraint sets against the graph and records the
// reasoning chain of each execution.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
)

// Result is the outcome of one execution.
type Result struct {
	TemplateID string
	Candidates []string
	Chain      *reasoning.Chain
	// StartCount is the size of the start set actually traversed.
	StartCount int
	Elapsed    time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records executions in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// Executor runs constraint sets through a graph.Traverser.
type Executor struct {
	traverser *graph.Traverser
	catalog   *constraint.Catalog
	metrics   *Metrics
	tracer    trace.Tracer
}

// NewExecutor creates an executor. The catalog resolves each template's
// start node type.
func NewExecutor(tr *graph.Traverser, catalog *constraint.Catalog, opts ...Option) *Executor {
	e := &Executor{
		traverser: tr,
		catalog:   catalog,
		tracer:    otel.Tracer("github.com/lzyq-hntvu/browsecomp-V3/query"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute applies set to start. A nil start means every node of the
// template's start type. An empty candidate set is a normal result, not an
// error.
func (e *Executor) Execute(ctx context.Context, set *constraint.Set, start []string) (*Result, error) {
	_, span := e.tracer.Start(ctx, "query.Execute", trace.WithAttributes(
		attribute.String("template_id", set.TemplateID),
		attribute.Int("constraints", len(set.Constraints)),
	))
	defer span.End()
	began := time.Now()

	startType := graph.NodeTypeUnknown
	if t, err := e.catalog.StartNodeType(set.TemplateID); err == nil {
		startType = t
	} else if start == nil {
		return nil, e.fail(span, set.TemplateID, began, fmt.Errorf("query.Execute: %w", err))
	}
	if start == nil {
		start = e.traverser.Store().NodesByType(startType)
	}
	startCount := len(start)
	if limit := e.traverser.MaxStartNodes; limit > 0 && startCount > limit {
		startCount = limit
	}

	candidates, steps, err := e.traverser.Traverse(start, set.Constraints)
	if err != nil {
		return nil, e.fail(span, set.TemplateID, began, fmt.Errorf("query.Execute: template %s: %w", set.TemplateID, err))
	}

	elapsed := time.Since(began)
	outcome := outcomeOf(len(candidates))
	e.metrics.observe(set.TemplateID, outcome, elapsed.Seconds(), len(candidates))
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("steps", len(steps)),
		attribute.String("outcome", outcome),
	)

	return &Result{
		TemplateID: set.TemplateID,
		Candidates: candidates,
		Chain:      reasoning.Build(set.TemplateID, startType, steps, candidates),
		StartCount: startCount,
		Elapsed:    elapsed,
	}, nil
}

// ExecuteBatch runs every set from its template's full start set. Sets that
// fail are logged and skipped, so the result may be shorter than sets.
func (e *Executor) ExecuteBatch(ctx context.Context, sets []*constraint.Set) []*Result {
	results := make([]*Result, 0, len(sets))
	for i, set := range sets {
		if err := ctx.Err(); err != nil {
			slog.Warn("batch execution cancelled", "done", i, "total", len(sets), "error", err)
			break
		}
		r, err := e.Execute(ctx, set, nil)
		if err != nil {
			slog.Warn("skipping constraint set", "index", i, "template", set.TemplateID, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results
}

func (e *Executor) fail(span trace.Span, templateID string, began time.Time, err error) error {
	e.metrics.observe(templateID, OutcomeError, time.Since(began).Seconds(), 0)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
