package browsecomp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/eval"
	"github.com/lzyq-hntvu/browsecomp-V3/export"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

// Config holds all configuration for the question generation engine.
type Config struct {
	// GraphPath is the knowledge graph JSON file. When empty the graph is
	// loaded from the database, which then must have been populated with
	// an import.
	GraphPath string `json:"kg_path" yaml:"kg_path"`

	// CatalogPath replaces the embedded template catalog when set.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`

	// Persist stores every accepted question in the SQLite database.
	Persist bool `json:"persist" yaml:"persist"`

	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.browsecomp/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.browsecomp/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// FingerprintDim is the dimension of the stored question fingerprints.
	FingerprintDim int `json:"fingerprint_dim" yaml:"fingerprint_dim"`

	// Generation
	MinConstraints int      `json:"min_constraints" yaml:"min_constraints"`
	MaxConstraints int      `json:"max_constraints" yaml:"max_constraints"`
	BatchSize      int      `json:"batch_size" yaml:"batch_size"`
	MaxRetries     int      `json:"max_generation_retries" yaml:"max_generation_retries"` // attempts allowed per requested question
	Seed           int64    `json:"seed" yaml:"seed"`                                     // 0 picks a time-based seed
	SelectionMode  string   `json:"selection_mode" yaml:"selection_mode"`                 // random, uniform
	EnabledTypes   []string `json:"enabled_constraint_types" yaml:"enabled_constraint_types"`

	// Traversal limits
	MaxStartNodes int `json:"max_start_nodes" yaml:"max_start_nodes"`
	MaxChainDepth int `json:"max_chain_depth" yaml:"max_chain_depth"`

	Validation eval.ValidatorConfig         `json:"validation" yaml:"validation"`
	Confidence reasoning.ConfidenceWeights `json:"confidence" yaml:"confidence"`
	Output     OutputConfig                `json:"output" yaml:"output"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// OutputConfig controls exported files.
type OutputConfig struct {
	Dir                   string `json:"dir" yaml:"dir"`
	Format                string `json:"format" yaml:"format"` // json, markdown, xlsx, both, all
	IncludeReasoningChain bool   `json:"include_reasoning_chain" yaml:"include_reasoning_chain"`
	PrettyPrint           bool   `json:"pretty_print" yaml:"pretty_print"`
}

// DefaultConfig returns a Config with the stock generation settings.
// The database, when enabled, lives in ~/.browsecomp/browsecomp.db.
func DefaultConfig() Config {
	return Config{
		DBName:         "browsecomp",
		StorageDir:     "home",
		FingerprintDim: store.DefaultFingerprintDim,
		MinConstraints: 3,
		MaxConstraints: 6,
		BatchSize:      50,
		MaxRetries:     10,
		SelectionMode:  constraint.SelectWeighted,
		EnabledTypes:   append([]string(nil), constraint.DefaultEnabledTypes...),
		MaxChainDepth:  graph.DefaultMaxChainDepth,
		Validation:     eval.DefaultValidatorConfig(),
		Confidence:     reasoning.DefaultConfidenceWeights(),
		Output: OutputConfig{
			Dir:                   "output",
			Format:                export.FormatJSON,
			IncludeReasoningChain: true,
			PrettyPrint:           true,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML (or JSON) file over DefaultConfig and applies
// BROWSECOMP_* environment overrides. An empty path only applies the
// environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("BROWSECOMP_KG_PATH"); v != "" {
		c.GraphPath = v
	}
	if v := getenv("BROWSECOMP_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("BROWSECOMP_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := getenv("BROWSECOMP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("BROWSECOMP_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: BROWSECOMP_BATCH_SIZE=%q", ErrInvalidConfig, v)
		}
		c.BatchSize = n
	}
	if v := getenv("BROWSECOMP_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: BROWSECOMP_SEED=%q", ErrInvalidConfig, v)
		}
		c.Seed = n
	}
	return nil
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.MinConstraints < 1:
		return fmt.Errorf("%w: min_constraints must be at least 1", ErrInvalidConfig)
	case c.MaxConstraints < c.MinConstraints:
		return fmt.Errorf("%w: max_constraints %d below min_constraints %d", ErrInvalidConfig, c.MaxConstraints, c.MinConstraints)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max_generation_retries must be positive", ErrInvalidConfig)
	case c.Validation.DiversityThreshold < 0 || c.Validation.DiversityThreshold > 1:
		return fmt.Errorf("%w: diversity_threshold must be in [0, 1]", ErrInvalidConfig)
	case c.MaxStartNodes < 0 || c.MaxChainDepth < 0:
		return fmt.Errorf("%w: traversal limits must not be negative", ErrInvalidConfig)
	}
	switch c.SelectionMode {
	case "", constraint.SelectWeighted, constraint.SelectUniform:
	default:
		return fmt.Errorf("%w: unknown selection_mode %q", ErrInvalidConfig, c.SelectionMode)
	}
	switch c.Output.Format {
	case "", export.FormatJSON, export.FormatMarkdown, export.FormatXLSX, export.FormatBoth, export.FormatAll:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, c.Output.Format)
	}
	return nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ExportOptions returns the export settings of the output section.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		IncludeChain: c.Output.IncludeReasoningChain,
		Pretty:       c.Output.PrettyPrint,
	}
}

// ResolveDBPath computes the final database path from config fields.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "browsecomp"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".browsecomp")
		return filepath.Join(dir, name+".db")
	}
}
