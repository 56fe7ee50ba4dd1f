package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration upgrades the schema by one version. The base tables come from
// schemaSQL, so version 1 has no statements.
type migration struct {
	version     int
	description string
	stmts       []string
}

// migrations must stay ordered by version. Append only.
var migrations = []migration{
	{version: 1, description: "base graph and question tables"},
	{
		version:     2,
		description: "index questions by template and difficulty",
		stmts: []string{
			"CREATE INDEX IF NOT EXISTS idx_questions_template ON questions(template_id)",
			"CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty)",
		},
	},
}

// Migrate brings the schema to the latest version. Each version is applied
// and recorded in its own transaction, so a failure leaves the database at
// the last good version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("%s: %w", stmt, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a new database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var current int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return current, nil
}
