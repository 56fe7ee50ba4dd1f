package browsecomp

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.MinConstraints != 3 || cfg.MaxConstraints != 6 || cfg.BatchSize != 50 || cfg.MaxRetries != 10 {
		t.Errorf("unexpected generation defaults: %+v", cfg)
	}
	if cfg.Validation.RequireUniqueAnswer || !cfg.Validation.CheckDiversity || cfg.Validation.DiversityThreshold != 0.8 {
		t.Errorf("unexpected validation defaults: %+v", cfg.Validation)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
kg_path: /data/kg.json
min_constraints: 2
max_constraints: 4
seed: 99
validation:
  require_unique_answer: true
  diversity_threshold: 0.9
output:
  format: all
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BROWSECOMP_BATCH_SIZE", "12")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GraphPath != "/data/kg.json" || cfg.MinConstraints != 2 || cfg.MaxConstraints != 4 || cfg.Seed != 99 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if !cfg.Validation.RequireUniqueAnswer || cfg.Validation.DiversityThreshold != 0.9 {
		t.Errorf("validation = %+v", cfg.Validation)
	}
	// Keys absent from the file keep their defaults
	if !cfg.Validation.CheckDiversity || cfg.MaxRetries != 10 || !cfg.Output.PrettyPrint {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.BatchSize != 12 {
		t.Errorf("BatchSize = %d, want 12 from environment", cfg.BatchSize)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"kg_path": "kg.json", "batch_size": 5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GraphPath != "kg.json" || cfg.BatchSize != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BROWSECOMP_KG_PATH":    "/kg.json",
		"BROWSECOMP_DB_PATH":    "/tmp/q.db",
		"BROWSECOMP_OUTPUT_DIR": "/out",
		"BROWSECOMP_LOG_LEVEL":  "debug",
		"BROWSECOMP_SEED":       "5",
	}
	cfg := DefaultConfig()
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.GraphPath != "/kg.json" || cfg.DBPath != "/tmp/q.db" || cfg.Output.Dir != "/out" || cfg.Seed != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}

	bad := map[string]string{"BROWSECOMP_BATCH_SIZE": "many"}
	err := cfg.applyEnv(func(k string) string { return bad[k] })
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("applyEnv error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero min", func(c *Config) { c.MinConstraints = 0 }, "min_constraints"},
		{"max below min", func(c *Config) { c.MaxConstraints = 2 }, "max_constraints"},
		{"batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"retries", func(c *Config) { c.MaxRetries = 0 }, "max_generation_retries"},
		{"threshold", func(c *Config) { c.Validation.DiversityThreshold = 1.5 }, "diversity_threshold"},
		{"negative limit", func(c *Config) { c.MaxStartNodes = -1 }, "traversal limits"},
		{"selection mode", func(c *Config) { c.SelectionMode = "round-robin" }, "selection_mode"},
		{"output format", func(c *Config) { c.Output.Format = "csv" }, "output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestResolveDBPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{DBPath: "/var/lib/q.db"}, "/var/lib/q.db"},
		{"local", Config{DBName: "runs", StorageDir: "local"}, "runs.db"},
		{"local default name", Config{StorageDir: "cwd"}, "browsecomp.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDBPath(); got != tt.want {
				t.Errorf("ResolveDBPath = %q, want %q", got, tt.want)
			}
		})
	}

	home := Config{DBName: "x"}
	if got := home.ResolveDBPath(); !strings.HasSuffix(got, filepath.Join(".browsecomp", "x.db")) && got != "x.db" {
		t.Errorf("home ResolveDBPath = %q", got)
	}
}
