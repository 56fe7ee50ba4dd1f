package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKG = `{
  "nodes": [
    {"id": "P1", "type": "Paper", "title": "Graph Neural Networks for Citation Analysis", "publication_date": "2018-03-01", "citation_count": 120},
    {"id": "P2", "type": "Paper", "title": "Scalable Knowledge Graph Embedding", "publication_date": "2019-06-15", "citation_count": 45},
    {"id": "P3", "type": "Paper", "title": "Contrastive Learning on Molecules", "publication_date": "2020-09-30", "citation_count": 12},
    {"id": "A1", "type": "Author", "name": "Ada Lovelace"},
    {"id": "A2", "type": "Author", "name": "Alan Turing"},
    {"id": "I1", "type": "Institution", "name": "MIT"},
    {"id": "V1", "type": "Venue", "name": "NeurIPS"}
  ],
  "edges": [
    {"source_id": "P1", "target_id": "A1", "relation_type": "HAS_AUTHOR", "author_order": 1},
    {"source_id": "P1", "target_id": "A2", "relation_type": "HAS_AUTHOR", "author_order": 2},
    {"source_id": "P2", "target_id": "A2", "relation_type": "HAS_AUTHOR", "author_order": 1},
    {"source_id": "P3", "target_id": "A1", "relation_type": "HAS_AUTHOR", "author_order": 1},
    {"source_id": "A1", "target_id": "I1", "relation_type": "AFFILIATED_WITH"},
    {"source_id": "P1", "target_id": "V1", "relation_type": "PUBLISHED_IN"},
    {"source_id": "P2", "target_id": "P1", "relation_type": "CITES"}
  ]
}`

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeKG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kg.json")
	if err := os.WriteFile(path, []byte(testKG), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTemplatesCmd(t *testing.T) {
	out, err := run(t, "templates", "--rules")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	for _, want := range []string{"A  ", "G  ", "C01", "constraints:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTemplatesCmdJSON(t *testing.T) {
	out, err := run(t, "templates", "-o", "json")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	var body struct {
		Templates []struct {
			ID string `json:"id"`
		} `json:"templates"`
		Rules []any `json:"rules"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(body.Templates) != 7 || len(body.Rules) != 0 {
		t.Errorf("got %d templates and %d rules", len(body.Templates), len(body.Rules))
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	if _, err := run(t, "templates", "-o", "yaml"); err == nil {
		t.Error("expected an error for -o yaml")
	}
}

func TestGenerateCmd(t *testing.T) {
	outDir := t.TempDir()
	out, err := run(t, "generate",
		"--kg-path", writeKG(t),
		"--seed", "3",
		"--count", "2",
		"--min-constraints", "1",
		"--max-constraints", "1",
		"--format", "both",
		"--out-dir", outDir,
		"-o", "json",
	)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}

	var body struct {
		Stats struct {
			Generated int   `json:"generated"`
			Seed      int64 `json:"seed"`
		} `json:"stats"`
		Files []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if body.Stats.Generated == 0 || body.Stats.Seed != 3 {
		t.Errorf("stats = %+v", body.Stats)
	}
	if len(body.Files) != 2 {
		t.Fatalf("files = %v, want json and markdown", body.Files)
	}
	for _, f := range body.Files {
		if filepath.Dir(f) != outDir {
			t.Errorf("%s written outside %s", f, outDir)
		}
		if _, err := os.Stat(f); err != nil {
			t.Errorf("stat %s: %v", f, err)
		}
	}
}

func TestGenerateCmdNoGraph(t *testing.T) {
	_, err := run(t, "generate", "--kg-path", filepath.Join(t.TempDir(), "missing.json"), "--count", "1")
	if err == nil {
		t.Error("expected an error for a missing graph file")
	}
}
