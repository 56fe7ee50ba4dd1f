package store

import "fmt"

// schemaSQL returns the DDL for all tables. fingerprintDim controls the
// vec0 virtual table dimension.
func schemaSQL(fingerprintDim int) string {
	return fmt.Sprintf(`
-- Knowledge graph: nodes keep every source attribute as JSON
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    node_type TEXT NOT NULL,
    attrs JSON
);

-- Knowledge graph: at most one directed edge per ordered pair
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    attrs JSON,
    UNIQUE(source_id, target_id)
);

-- Generated questions
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY,
    question_id TEXT NOT NULL UNIQUE,
    question_text TEXT NOT NULL,
    answer_text TEXT NOT NULL,
    answer_entity_id TEXT,
    answer_entity_type TEXT,
    template_id TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    confidence REAL DEFAULT 0,
    valid INTEGER DEFAULT 1,
    constraints JSON,
    generated_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Reasoning chain steps of each question
CREATE TABLE IF NOT EXISTS question_steps (
    question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    step_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    target_node TEXT,
    edge_type TEXT,
    filter_condition JSON,
    result_count INTEGER NOT NULL,
    description TEXT,
    PRIMARY KEY (question_id, step_id)
);

-- Question text fingerprints via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_questions USING vec0(
    question_id INTEGER PRIMARY KEY,
    fingerprint float[%d] distance_metric=cosine
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(relation_type);
`, fingerprintDim)
}
