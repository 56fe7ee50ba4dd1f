package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/question"
)

func init() {
	sqlite_vec.Auto()
}

// ErrQuestionNotFound is returned when a question id is not stored.
var ErrQuestionNotFound = errors.New("store: question not found")

// SavedQuestion is a question row with its constraints and reasoning steps.
type SavedQuestion struct {
	ID               string          `json:"question_id"`
	Text             string          `json:"question_text"`
	AnswerText       string          `json:"answer"`
	AnswerEntityID   string          `json:"answer_entity_id,omitempty"`
	AnswerEntityType string          `json:"answer_entity_type,omitempty"`
	TemplateID       string          `json:"template_id"`
	Difficulty       string          `json:"difficulty"`
	Confidence       float64         `json:"confidence"`
	Valid            bool            `json:"validity"`
	Constraints      *constraint.Set `json:"constraint_set,omitempty"`
	Steps            []graph.Step    `json:"steps,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// SimilarQuestion is a nearest-neighbour hit from SimilarQuestions.
type SimilarQuestion struct {
	ID         string  `json:"question_id"`
	Text       string  `json:"question_text"`
	TemplateID string  `json:"template_id"`
	Score      float64 `json:"score"`
}

// Store wraps the SQLite database for graph and question persistence.
type Store struct {
	db             *sql.DB
	fingerprintDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, fingerprintDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	if fingerprintDim <= 0 {
		fingerprintDim = DefaultFingerprintDim
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(fingerprintDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, fingerprintDim: fingerprintDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FingerprintDim returns the configured fingerprint dimension.
func (s *Store) FingerprintDim() int {
	return s.fingerprintDim
}

// --- Graph operations ---

// ImportGraph upserts every node and edge of g in one transaction. Edge
// attributes of an existing pair are replaced.
func (s *Store) ImportGraph(ctx context.Context, g *graph.Graph) (*graph.LoadStats, error) {
	stats := &graph.LoadStats{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		nodeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (id, node_type, attrs) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET node_type = excluded.node_type, attrs = excluded.attrs
		`)
		if err != nil {
			return err
		}
		defer nodeStmt.Close()

		for _, n := range g.Nodes() {
			attrs, err := json.Marshal(n.Attrs)
			if err != nil {
				return fmt.Errorf("encoding attrs of %s: %w", n.ID, err)
			}
			typ := string(n.Type)
			if raw, ok := n.Attrs["type"].(string); ok && raw != "" {
				typ = raw
			}
			if _, err := nodeStmt.ExecContext(ctx, n.ID, typ, string(attrs)); err != nil {
				return fmt.Errorf("inserting node %s: %w", n.ID, err)
			}
			stats.Nodes++
		}

		edgeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (source_id, target_id, relation_type, attrs) VALUES (?, ?, ?, ?)
			ON CONFLICT(source_id, target_id) DO UPDATE SET relation_type = excluded.relation_type, attrs = excluded.attrs
		`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()

		for _, e := range g.Edges() {
			attrs, err := json.Marshal(e.Attrs)
			if err != nil {
				return fmt.Errorf("encoding attrs of %s->%s: %w", e.Source, e.Target, err)
			}
			label := e.Label
			if label == "" {
				label = string(e.Type)
			}
			if _, err := edgeStmt.ExecContext(ctx, e.Source, e.Target, label, string(attrs)); err != nil {
				return fmt.Errorf("inserting edge %s->%s: %w", e.Source, e.Target, err)
			}
			stats.Edges++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store.ImportGraph: %w", err)
	}
	slog.Info("imported knowledge graph", "nodes", stats.Nodes, "edges", stats.Edges)
	return stats, nil
}

// LoadGraph reads the stored graph into memory.
func (s *Store) LoadGraph(ctx context.Context) (*graph.Graph, *graph.LoadStats, error) {
	g := graph.New()
	stats := &graph.LoadStats{}

	rows, err := s.db.QueryContext(ctx, "SELECT id, node_type, attrs FROM nodes ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typeStr string
		var attrs sql.NullString
		if err := rows.Scan(&id, &typeStr, &attrs); err != nil {
			return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
		}
		t, ok := graph.ParseNodeType(typeStr)
		if !ok {
			stats.UnknownNodeTypes++
		}
		n := &graph.Node{ID: id, Type: t}
		if err := decodeAttrs(attrs, &n.Attrs); err != nil {
			return nil, nil, fmt.Errorf("store.LoadGraph: node %s: %w", id, err)
		}
		g.AddNode(n)
		stats.Nodes++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
	}

	erows, err := s.db.QueryContext(ctx, "SELECT source_id, target_id, relation_type, attrs FROM edges ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var src, dst, label string
		var attrs sql.NullString
		if err := erows.Scan(&src, &dst, &label, &attrs); err != nil {
			return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
		}
		t, ok := graph.ParseEdgeType(label)
		if !ok {
			stats.UnknownEdgeTypes++
		}
		e := &graph.Edge{Source: src, Target: dst, Type: t, Label: label}
		if err := decodeAttrs(attrs, &e.Attrs); err != nil {
			return nil, nil, fmt.Errorf("store.LoadGraph: edge %s->%s: %w", src, dst, err)
		}
		if err := g.AddEdge(e); err != nil {
			slog.Debug("skipping edge", "source", src, "target", dst, "error", err)
			stats.SkippedEdges++
			continue
		}
		stats.Edges++
	}
	if err := erows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store.LoadGraph: %w", err)
	}
	return g, stats, nil
}

// --- Question operations ---

// SaveQuestion stores q, its reasoning steps and its text fingerprint.
// Saving a question id twice replaces the earlier row.
func (s *Store) SaveQuestion(ctx context.Context, q *question.Question) error {
	constraints, err := json.Marshal(q.Constraints)
	if err != nil {
		return fmt.Errorf("store.SaveQuestion: encoding constraints: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var prev int64
		switch err := tx.QueryRowContext(ctx, "SELECT id FROM questions WHERE question_id = ?", q.ID).Scan(&prev); {
		case err == nil:
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_questions WHERE question_id = ?", prev); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM questions WHERE id = ?", prev); err != nil {
				return err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO questions (question_id, question_text, answer_text, answer_entity_id, answer_entity_type,
				template_id, difficulty, confidence, valid, constraints, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, q.ID, q.Text, q.Answer.Text, q.Answer.EntityID, string(q.Answer.EntityType),
			q.TemplateID, string(q.Difficulty), q.Confidence, q.Valid, string(constraints),
			q.GeneratedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if q.Chain != nil {
			for _, st := range q.Chain.Steps {
				cond, err := json.Marshal(st.Condition)
				if err != nil {
					return fmt.Errorf("encoding step %d condition: %w", st.StepID, err)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO question_steps (question_id, step_id, action, target_node, edge_type,
						filter_condition, result_count, description)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				`, rowID, st.StepID, string(st.Action), string(st.TargetNode), string(st.EdgeType),
					string(cond), st.ResultCount, st.Description); err != nil {
					return fmt.Errorf("inserting step %d: %w", st.StepID, err)
				}
			}
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_questions (question_id, fingerprint) VALUES (?, ?)",
			rowID, serializeFloat32(Fingerprint(q.Text, s.fingerprintDim)))
		return err
	})
	if err != nil {
		return fmt.Errorf("store.SaveQuestion %s: %w", q.ID, err)
	}
	return nil
}

// GetQuestion returns one stored question with its steps.
func (s *Store) GetQuestion(ctx context.Context, id string) (*SavedQuestion, error) {
	qs, err := s.queryQuestions(ctx, "WHERE q.question_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("store.GetQuestion: %w", err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrQuestionNotFound, id)
	}
	return &qs[0], nil
}

// ListQuestions returns stored questions, newest first. An empty templateID
// lists every template; limit <= 0 means no limit.
func (s *Store) ListQuestions(ctx context.Context, templateID string, limit int) ([]SavedQuestion, error) {
	if limit <= 0 {
		limit = -1
	}
	where := "WHERE (? = '' OR q.template_id = ?)"
	qs, err := s.queryQuestions(ctx, where+" ORDER BY q.id DESC LIMIT ?", templateID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListQuestions: %w", err)
	}
	return qs, nil
}

func (s *Store) queryQuestions(ctx context.Context, clause string, args ...any) ([]SavedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.question_id, q.question_text, q.answer_text, q.answer_entity_id, q.answer_entity_type,
			q.template_id, q.difficulty, q.confidence, q.valid, q.constraints, q.generated_at
		FROM questions q `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedQuestion
	var rowIDs []int64
	for rows.Next() {
		var sq SavedQuestion
		var rowID int64
		var entityID, entityType, constraints sql.NullString
		var generatedAt string
		if err := rows.Scan(&rowID, &sq.ID, &sq.Text, &sq.AnswerText, &entityID, &entityType,
			&sq.TemplateID, &sq.Difficulty, &sq.Confidence, &sq.Valid, &constraints, &generatedAt); err != nil {
			return nil, err
		}
		sq.AnswerEntityID = entityID.String
		sq.AnswerEntityType = entityType.String
		if constraints.Valid && constraints.String != "null" {
			sq.Constraints = &constraint.Set{}
			if err := json.Unmarshal([]byte(constraints.String), sq.Constraints); err != nil {
				return nil, fmt.Errorf("decoding constraints of %s: %w", sq.ID, err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, generatedAt); err == nil {
			sq.GeneratedAt = t
		}
		out = append(out, sq)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		steps, err := s.questionSteps(ctx, rowIDs[i])
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

func (s *Store) questionSteps(ctx context.Context, rowID int64) ([]graph.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, action, target_node, edge_type, filter_condition, result_count, description
		FROM question_steps WHERE question_id = ? ORDER BY step_id
	`, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []graph.Step
	for rows.Next() {
		var st graph.Step
		var action string
		var target, edge, cond, desc sql.NullString
		if err := rows.Scan(&st.StepID, &action, &target, &edge, &cond, &st.ResultCount, &desc); err != nil {
			return nil, err
		}
		st.Action = graph.Action(action)
		st.TargetNode = graph.NodeType(target.String)
		st.EdgeType = graph.EdgeType(edge.String)
		st.Description = desc.String
		if cond.Valid && cond.String != "" {
			if err := json.Unmarshal([]byte(cond.String), &st.Condition); err != nil {
				return nil, fmt.Errorf("decoding step %d condition: %w", st.StepID, err)
			}
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// SimilarQuestions returns the k stored questions whose text fingerprints
// are closest to text. Score is cosine similarity in [0, 1] for
// non-negative fingerprints.
func (s *Store) SimilarQuestions(ctx context.Context, text string, k int) ([]SimilarQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.question_id, q.question_text, q.template_id, v.distance
		FROM vec_questions v
		JOIN questions q ON q.id = v.question_id
		WHERE v.fingerprint MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(Fingerprint(text, s.fingerprintDim)), k)
	if err != nil {
		return nil, fmt.Errorf("store.SimilarQuestions: %w", err)
	}
	defer rows.Close()

	var results []SimilarQuestion
	for rows.Next() {
		var r SimilarQuestion
		var distance float64
		if err := rows.Scan(&r.ID, &r.Text, &r.TemplateID, &distance); err != nil {
			return nil, fmt.Errorf("store.SimilarQuestions: %w", err)
		}
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Nodes         int            `json:"nodes"`
	Edges         int            `json:"edges"`
	Questions     int            `json:"questions"`
	Steps         int            `json:"steps"`
	Fingerprints  int            `json:"fingerprints"`
	NodesByType   map[string]int `json:"nodes_by_type"`
	SchemaVersion int            `json:"schema_version"`
}

// Stats returns row counts and the node type breakdown.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{NodesByType: map[string]int{}}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM questions", &stats.Questions},
		{"SELECT COUNT(*) FROM question_steps", &stats.Steps},
		{"SELECT COUNT(*) FROM vec_questions", &stats.Fingerprints},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type")
	if err != nil {
		return nil, fmt.Errorf("counting node types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		stats.NodesByType[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.SchemaVersion, err = s.SchemaVersion(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func decodeAttrs(raw sql.NullString, dst *map[string]any) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		*dst = map[string]any{}
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
