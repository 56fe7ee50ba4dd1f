//go:build cgo

package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportAndStats(t *testing.T) {
	db := filepath.Join(t.TempDir(), "kg.db")

	out, err := run(t, "import", writeKG(t), "--db", db)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 7 nodes and 7 edges") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = run(t, "stats", "--db", db, "-o", "json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var body struct {
		Database struct {
			Nodes       int            `json:"nodes"`
			Edges       int            `json:"edges"`
			NodesByType map[string]int `json:"nodes_by_type"`
		} `json:"database"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if body.Database.Nodes != 7 || body.Database.Edges != 7 || body.Database.NodesByType["Paper"] != 3 {
		t.Errorf("database stats = %+v", body.Database)
	}
}

func TestGeneratePersistAndList(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "q.db")

	if _, err := run(t, "import", writeKG(t), "--db", db); err != nil {
		t.Fatalf("import: %v", err)
	}
	// The graph now comes from the database
	if _, err := run(t, "generate", "--db", db, "--persist", "--seed", "11",
		"--count", "2", "--min-constraints", "1", "--max-constraints", "1",
		"--out-dir", filepath.Join(dir, "out")); err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := run(t, "questions", "list", "--db", db, "-o", "json")
	if err != nil {
		t.Fatalf("questions list: %v", err)
	}
	var qs []struct {
		ID   string `json:"question_id"`
		Text string `json:"question_text"`
	}
	if err := json.Unmarshal([]byte(out), &qs); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(qs) == 0 {
		t.Fatal("no stored questions")
	}

	out, err = run(t, "questions", "show", qs[0].ID, "--db", db)
	if err != nil {
		t.Fatalf("questions show: %v", err)
	}
	if !strings.Contains(out, qs[0].Text) {
		t.Errorf("show output missing question text:\n%s", out)
	}

	out, err = run(t, "questions", "similar", qs[0].Text, "--db", db, "-n", "1")
	if err != nil {
		t.Fatalf("questions similar: %v", err)
	}
	if !strings.Contains(out, qs[0].ID) {
		t.Errorf("nearest neighbour of a stored text should be itself:\n%s", out)
	}
}
