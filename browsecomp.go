// Package browsecomp generates multi-hop academic questions from a
// knowledge graph. Each question is built by instantiating a constraint set
// for a reasoning template, running it against the graph and phrasing the
// surviving candidate as the answer.
package browsecomp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/eval"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/query"
	"github.com/lzyq-hntvu/browsecomp-V3/question"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

// Engine is the main entry point for question generation.
type Engine interface {
	// Generate produces up to count validated questions. A count of zero
	// uses the configured batch size.
	Generate(ctx context.Context, count int, opts ...GenerateOption) (*Batch, error)

	// Templates returns the reasoning templates of the catalog.
	Templates() []*constraint.Template

	// Catalog returns the template catalog and mapping rules.
	Catalog() *constraint.Catalog

	// Graph returns the loaded knowledge graph.
	Graph() *graph.Graph

	// Store returns the database, or nil when none is open.
	Store() *store.Store

	// Seed returns the seed of the engine's random source.
	Seed() int64

	// Close cleanly shuts down the engine.
	Close() error
}

// Batch is the outcome of one Generate call.
type Batch struct {
	Questions []*question.Question `json:"questions"`
	Stats     RunStats             `json:"stats"`
}

// RunStats summarizes a Generate call.
type RunStats struct {
	Requested int                   `json:"requested"`
	Generated int                   `json:"generated"`
	Attempts  int                   `json:"attempts"`
	Retries   int                   `json:"retries"`
	Failures  map[string]int        `json:"failures,omitempty"` // retries per pipeline stage
	Diversity *eval.DiversityReport `json:"diversity,omitempty"`
	Seed      int64                 `json:"seed"`
	Elapsed   time.Duration         `json:"elapsed_ns"`
}

// Pipeline stages reported in RunStats.Failures.
const (
	StageTemplate    = "template"
	StageConstraints = "constraints"
	StageQuery       = "query"
	StageEmpty       = "empty"
	StageAnswer      = "answer"
	StageChain       = "chain"
	StageValidation  = "validation"
	StagePersist     = "persist"
)

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

// WithMetricsRegistry registers query metrics on reg. Without it the
// engine records no metrics.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registerer = reg }
}

// WithTracer sets the tracer for query execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = t }
}

// GenerateOption configures a Generate call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	templateID     string
	mode           string
	exclude        []string
	minConstraints int
	maxConstraints int
}

// WithTemplate restricts generation to one template.
func WithTemplate(id string) GenerateOption {
	return func(o *generateOptions) { o.templateID = id }
}

// WithSelectionMode overrides the configured template selection mode.
func WithSelectionMode(mode string) GenerateOption {
	return func(o *generateOptions) { o.mode = mode }
}

// WithExclude skips the given templates.
func WithExclude(ids ...string) GenerateOption {
	return func(o *generateOptions) { o.exclude = append(o.exclude, ids...) }
}

// WithConstraintRange overrides the configured constraint count range.
func WithConstraintRange(minN, maxN int) GenerateOption {
	return func(o *generateOptions) {
		o.minConstraints = minN
		o.maxConstraints = maxN
	}
}

// engine is the concrete implementation of Engine. The random source is
// shared by every stage, so mu serializes Generate calls.
type engine struct {
	cfg     Config
	seed    int64
	graph   *graph.Graph
	store   *store.Store
	catalog *constraint.Catalog

	mu        sync.Mutex
	closed    bool
	rng       *rand.Rand
	generator *constraint.Generator
	executor  *query.Executor
	renderer  *question.Renderer
	validator *eval.Validator
}

// New creates an engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	options := &engineOptions{}
	for _, o := range opts {
		o(options)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FingerprintDim == 0 {
		cfg.FingerprintDim = store.DefaultFingerprintDim
	}

	// The database serves as graph source when no file is given
	var s *store.Store
	if cfg.Persist || cfg.GraphPath == "" {
		var err error
		s, err = store.New(cfg.ResolveDBPath(), cfg.FingerprintDim)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	g, err := loadGraph(cfg, s)
	if err != nil {
		closeStore(s)
		return nil, err
	}

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		closeStore(s)
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	sampler := constraint.NewSampler(g, rng)
	generator := constraint.NewGenerator(catalog, constraint.NewInstantiator(sampler), rng, cfg.EnabledTypes)

	tr := graph.NewTraverser(g)
	tr.MaxStartNodes = cfg.MaxStartNodes
	if cfg.MaxChainDepth > 0 {
		tr.MaxChainDepth = cfg.MaxChainDepth
	}

	var execOpts []query.Option
	if options.registerer != nil {
		execOpts = append(execOpts, query.WithMetrics(query.NewMetrics(options.registerer)))
	}
	if options.tracer != nil {
		execOpts = append(execOpts, query.WithTracer(options.tracer))
	}

	slog.Info("engine ready",
		"nodes", g.NodeCount(), "edges", g.EdgeCount(),
		"templates", len(catalog.Templates()), "seed", seed,
		"persist", cfg.Persist && s != nil)

	return &engine{
		cfg:       cfg,
		seed:      seed,
		graph:     g,
		store:     s,
		catalog:   catalog,
		rng:       rng,
		generator: generator,
		executor:  query.NewExecutor(tr, catalog, execOpts...),
		renderer:  question.NewRenderer(catalog, rng),
		validator: eval.NewValidator(cfg.Validation),
	}, nil
}

func loadGraph(cfg Config, s *store.Store) (*graph.Graph, error) {
	var (
		g     *graph.Graph
		stats *graph.LoadStats
		err   error
	)
	switch {
	case cfg.GraphPath != "":
		g, stats, err = graph.LoadFile(cfg.GraphPath)
		if err != nil {
			return nil, fmt.Errorf("loading graph: %w", err)
		}
	case s != nil:
		g, stats, err = s.LoadGraph(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading graph from database: %w", err)
		}
		if g.NodeCount() == 0 {
			return nil, fmt.Errorf("%w: database has no nodes, import a graph first", ErrNoGraph)
		}
	default:
		return nil, ErrNoGraph
	}

	if g.NodeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	if stats.UnknownNodeTypes > 0 || stats.UnknownEdgeTypes > 0 || stats.SkippedEdges > 0 {
		slog.Warn("graph loaded with unrecognized records",
			"unknown_node_types", stats.UnknownNodeTypes,
			"unknown_edge_types", stats.UnknownEdgeTypes,
			"skipped_edges", stats.SkippedEdges)
	}
	return g, nil
}

func loadCatalog(path string) (*constraint.Catalog, error) {
	if path == "" {
		return constraint.DefaultCatalog()
	}
	c, err := constraint.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return c, nil
}

func closeStore(s *store.Store) {
	if s != nil {
		s.Close()
	}
}

// Generate runs the attempt loop until count questions are accepted or the
// retry budget of count × MaxRetries failed attempts is spent. A partial
// batch is returned without error; an empty one fails with
// ErrGenerationExhausted.
func (e *engine) Generate(ctx context.Context, count int, opts ...GenerateOption) (*Batch, error) {
	o := &generateOptions{
		mode:           e.cfg.SelectionMode,
		minConstraints: e.cfg.MinConstraints,
		maxConstraints: e.cfg.MaxConstraints,
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.templateID != "" {
		o.mode = constraint.SelectSpecific
	}
	if count <= 0 {
		count = e.cfg.BatchSize
	}
	if o.minConstraints < 1 || o.maxConstraints < o.minConstraints {
		return nil, fmt.Errorf("%w: constraint range [%d, %d]", ErrInvalidConfig, o.minConstraints, o.maxConstraints)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	start := time.Now()
	batch := &Batch{Stats: RunStats{
		Requested: count,
		Failures:  make(map[string]int),
		Seed:      e.seed,
	}}
	stats := &batch.Stats
	budget := count * e.cfg.MaxRetries

	finish := func() {
		stats.Generated = len(batch.Questions)
		stats.Elapsed = time.Since(start)
		stats.Diversity = eval.CheckDiversity(batch.Questions, e.cfg.Validation.DiversityThreshold)
	}

	for len(batch.Questions) < count && stats.Retries < budget {
		if err := ctx.Err(); err != nil {
			finish()
			return batch, err
		}
		stats.Attempts++

		q, stage, err := e.attempt(ctx, o)
		if err != nil {
			if stage == StagePersist || errors.Is(err, constraint.ErrTemplateNotFound) {
				finish()
				return batch, fmt.Errorf("browsecomp.Generate: %w", err)
			}
			stats.Retries++
			stats.Failures[stage]++
			slog.Debug("generation attempt failed", "attempt", stats.Attempts, "stage", stage, "error", err)
			continue
		}

		batch.Questions = append(batch.Questions, q)
		slog.Debug("question accepted",
			"id", q.ID, "template", q.TemplateID,
			"progress", fmt.Sprintf("%d/%d", len(batch.Questions), count))
	}

	finish()
	slog.Info("generation finished",
		"requested", count, "generated", stats.Generated,
		"attempts", stats.Attempts, "retries", stats.Retries,
		"elapsed", stats.Elapsed.Round(time.Millisecond))

	if stats.Generated == 0 {
		return batch, fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, stats.Attempts)
	}
	if stats.Generated < count {
		slog.Warn("retry budget exhausted before batch was complete",
			"requested", count, "generated", stats.Generated)
	}
	return batch, nil
}

// attempt runs the pipeline once. On failure it reports the stage that
// failed.
func (e *engine) attempt(ctx context.Context, o *generateOptions) (*question.Question, string, error) {
	templateID, err := e.catalog.SelectTemplate(e.rng, o.mode, o.templateID, o.exclude)
	if err != nil {
		return nil, StageTemplate, err
	}

	set, err := e.generator.Generate(templateID, o.minConstraints, o.maxConstraints)
	if err != nil {
		return nil, StageConstraints, err
	}

	res, err := e.executor.Execute(ctx, set, nil)
	if err != nil {
		return nil, StageQuery, err
	}
	if len(res.Candidates) == 0 {
		return nil, StageEmpty, fmt.Errorf("template %s: no candidates after %d steps", templateID, len(res.Chain.Steps))
	}

	if check := reasoning.Check(res.Chain); !check.OK() {
		return nil, StageChain, fmt.Errorf("template %s: %s", templateID, check.Summary())
	}

	answerID := res.Candidates[e.rng.Intn(len(res.Candidates))]
	answer, err := reasoning.ExtractAnswer(e.graph, answerID)
	if err != nil {
		return nil, StageAnswer, err
	}

	q := e.renderer.Generate(set, res.Chain, answer)
	q.Confidence = reasoning.ComputeConfidence(res.Chain, res.StartCount, set.Constraints, e.cfg.Confidence)

	if verdict := e.validator.Validate(q, res.Candidates); !verdict.Valid {
		return nil, StageValidation, fmt.Errorf("rejected: %s", strings.Join(verdict.Reasons, "; "))
	}

	if e.cfg.Persist && e.store != nil {
		if err := e.store.SaveQuestion(ctx, q); err != nil {
			return nil, StagePersist, err
		}
	}
	return q, "", nil
}

func (e *engine) Templates() []*constraint.Template { return e.catalog.Templates() }

func (e *engine) Catalog() *constraint.Catalog { return e.catalog }

func (e *engine) Graph() *graph.Graph { return e.graph }

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) Seed() int64 { return e.seed }

// Close releases the database. Generate fails afterwards.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// FormatRunStats renders stats as a plain-text summary.
func FormatRunStats(s *RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated:  %d/%d\n", s.Generated, s.Requested)
	fmt.Fprintf(&b, "Attempts:   %d (%d retries)\n", s.Attempts, s.Retries)
	fmt.Fprintf(&b, "Seed:       %d\n", s.Seed)
	fmt.Fprintf(&b, "Elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))

	if len(s.Failures) > 0 {
		stages := make([]string, 0, len(s.Failures))
		for stage := range s.Failures {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		b.WriteString("Failures:\n")
		for _, stage := range stages {
			fmt.Fprintf(&b, "  %-12s %d\n", stage, s.Failures[stage])
		}
	}
	if s.Diversity != nil {
		b.WriteString("\n")
		b.WriteString(eval.FormatDiversityReport(s.Diversity))
	}
	return b.String()
}
