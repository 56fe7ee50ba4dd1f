package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	browsecomp "github.com/lzyq-hntvu/browsecomp-V3"
	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
	"github.com/lzyq-hntvu/browsecomp-V3/export"
	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

// maxCount bounds the questions generated by one request.
const maxCount = 500

type handler struct {
	engine browsecomp.Engine
}

func newHandler(e browsecomp.Engine) *handler {
	return &handler{engine: e}
}

// POST /generate
func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Count          int      `json:"count,omitempty"`
		Template       string   `json:"template,omitempty"`
		Exclude        []string `json:"exclude,omitempty"`
		MinConstraints int      `json:"min_constraints,omitempty"`
		MaxConstraints int      `json:"max_constraints,omitempty"`
		IncludeChain   *bool    `json:"include_reasoning_chain,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Count < 0 || req.Count > maxCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 0 and %d", maxCount))
		return
	}

	var opts []browsecomp.GenerateOption
	if req.Template != "" {
		opts = append(opts, browsecomp.WithTemplate(req.Template))
	}
	if len(req.Exclude) > 0 {
		opts = append(opts, browsecomp.WithExclude(req.Exclude...))
	}
	if req.MinConstraints > 0 || req.MaxConstraints > 0 {
		opts = append(opts, browsecomp.WithConstraintRange(req.MinConstraints, req.MaxConstraints))
	}

	batch, err := h.engine.Generate(ctx, req.Count, opts...)
	switch {
	case errors.Is(err, browsecomp.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, constraint.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "unknown template")
		return
	case errors.Is(err, browsecomp.ErrGenerationExhausted):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "no question could be generated",
			"stats": batch.Stats,
		})
		return
	case err != nil && batch == nil:
		writeError(w, http.StatusInternalServerError, "generation failed")
		slog.Error("generate error", "error", err)
		return
	case err != nil:
		// Cancelled or failed mid-batch: return what was accepted
		slog.Warn("generation interrupted", "generated", len(batch.Questions), "error", err)
	}

	includeChain := true
	if req.IncludeChain != nil {
		includeChain = *req.IncludeChain
	}
	records := make([]export.Record, 0, len(batch.Questions))
	for _, q := range batch.Questions {
		records = append(records, export.NewRecord(q, includeChain))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"questions": records,
		"stats":     batch.Stats,
	})
}

// GET /templates
func (h *handler) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": h.engine.Templates(),
	})
}

// GET /questions?template=A&limit=20
func (h *handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	s := h.requireStore(w)
	if s == nil {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	qs, err := s.ListQuestions(r.Context(), r.URL.Query().Get("template"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list questions")
		slog.Error("list questions error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"questions": qs,
	})
}

// GET /questions/{id}
func (h *handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	s := h.requireStore(w)
	if s == nil {
		return
	}

	q, err := s.GetQuestion(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrQuestionNotFound) {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load question")
		slog.Error("get question error", "id", r.PathValue("id"), "error", err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

// POST /questions/similar
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	s := h.requireStore(w)
	if s == nil {
		return
	}

	var req struct {
		Text string `json:"text"`
		K    int    `json:"k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.K <= 0 || req.K > 100 {
		req.K = 5
	}

	hits, err := s.SimilarQuestions(r.Context(), req.Text, req.K)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		slog.Error("similar questions error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": hits,
	})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	g := h.engine.Graph()
	resp := map[string]any{
		"graph": map[string]any{
			"nodes":                g.NodeCount(),
			"edges":                g.EdgeCount(),
			"nodes_by_type":        g.TypeCounts(),
			"coauthor_communities": graph.Summarize(graph.CoauthorCommunities(g)),
		},
		"seed": h.engine.Seed(),
	}

	if s := h.engine.Store(); s != nil {
		stats, err := s.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read database stats")
			slog.Error("stats error", "error", err)
			return
		}
		resp["database"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// requireStore writes 501 and returns nil when no database is open.
func (h *handler) requireStore(w http.ResponseWriter) *store.Store {
	s := h.engine.Store()
	if s == nil {
		writeError(w, http.StatusNotImplemented, browsecomp.ErrStoreRequired.Error())
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
