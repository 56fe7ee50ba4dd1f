package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	browsecomp "github.com/lzyq-hntvu/browsecomp-V3"
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

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kg.json")
	if err := os.WriteFile(path, []byte(testKG), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := browsecomp.DefaultConfig()
	cfg.GraphPath = path
	cfg.Seed = 7
	cfg.MinConstraints = 1
	cfg.MaxConstraints = 1
	cfg.MaxRetries = 50
	cfg.Validation.CheckDiversity = false

	registry := prometheus.NewRegistry()
	engine, err := browsecomp.New(cfg, browsecomp.WithMetricsRegistry(registry))
	if err != nil {
		t.Fatalf("browsecomp.New: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	srv := httptest.NewServer(buildHandler(newMux(newHandler(engine), registry), registry, apiKey, ""))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/templates")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/templates", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Templates []struct {
			ID string `json:"id"`
		} `json:"templates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Templates) != 7 {
		t.Errorf("got %d templates, want 7", len(body.Templates))
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/generate", `{"count": 2, "template": "A", "include_reasoning_chain": false}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Questions []map[string]any `json:"questions"`
		Stats     struct {
			Requested int `json:"requested"`
			Generated int `json:"generated"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Stats.Requested != 2 || body.Stats.Generated != len(body.Questions) || len(body.Questions) == 0 {
		t.Fatalf("unexpected body: %+v", body)
	}
	for _, q := range body.Questions {
		if q["template_id"] != "A" {
			t.Errorf("template_id = %v, want A", q["template_id"])
		}
		if _, ok := q["reasoning_chain"]; ok {
			t.Error("reasoning_chain should be omitted")
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"count too large", `{"count": 100000}`, http.StatusBadRequest},
		{"bad range", `{"count": 1, "min_constraints": 3, "max_constraints": 2}`, http.StatusBadRequest},
		{"unknown template", `{"count": 1, "template": "Z"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/generate", tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestQuestionsWithoutStore(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/questions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats struct {
		Graph struct {
			Nodes int `json:"nodes"`
			Edges int `json:"edges"`
		} `json:"graph"`
		Seed int64 `json:"seed"`
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Graph.Nodes != 7 || stats.Graph.Edges != 7 || stats.Seed != 7 {
		t.Errorf("stats = %+v", stats)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `browsecomp_http_requests_total{code="200",route="GET /stats"}`) {
		t.Errorf("metrics output missing request counter:\n%s", buf.String())
	}
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := corsMiddleware("https://a.example, https://b.example", ok)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"listed origin", http.MethodGet, "https://b.example", http.StatusOK, "https://b.example"},
		{"unlisted origin", http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://a.example", http.StatusNoContent, "https://a.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/templates", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}
