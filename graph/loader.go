package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// fileFormat is the on-disk JSON knowledge graph layout: node attributes
// sit directly on the node object, edges use source_id/target_id and
// relation_type, and any remaining edge keys become edge attributes.
type fileFormat struct {
	Metadata map[string]any   `json:"metadata"`
	Nodes    []map[string]any `json:"nodes"`
	Edges    []map[string]any `json:"edges"`
}

// LoadStats summarizes one load.
type LoadStats struct {
	Nodes            int `json:"nodes"`
	Edges            int `json:"edges"`
	UnknownNodeTypes int `json:"unknown_node_types"`
	UnknownEdgeTypes int `json:"unknown_edge_types"`
	SkippedEdges     int `json:"skipped_edges"`
	SkippedNodes     int `json:"skipped_nodes"`
}

// LoadFile reads a JSON knowledge graph from path.
func LoadFile(path string) (*Graph, *LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("graph.LoadFile: %w", err)
	}
	defer f.Close()

	g, stats, err := Load(f)
	if err != nil {
		return nil, nil, fmt.Errorf("graph.LoadFile %s: %w", path, err)
	}
	slog.Info("loaded knowledge graph", "path", path,
		"nodes", stats.Nodes, "edges", stats.Edges,
		"unknown_node_types", stats.UnknownNodeTypes, "unknown_edge_types", stats.UnknownEdgeTypes)
	return g, stats, nil
}

// Load decodes a JSON knowledge graph. Nodes without an id and edges with a
// missing endpoint or relation are skipped. Unrecognized node and edge type
// strings are kept with the Unknown variant so they never match a filter.
func Load(r io.Reader) (*Graph, *LoadStats, error) {
	var data fileFormat
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("decoding knowledge graph: %w", err)
	}

	g := New()
	stats := &LoadStats{}

	for _, raw := range data.Nodes {
		id, _ := raw["id"].(string)
		if id == "" {
			stats.SkippedNodes++
			continue
		}
		typeStr, _ := raw["type"].(string)
		t, ok := ParseNodeType(typeStr)
		if !ok {
			stats.UnknownNodeTypes++
		}
		attrs := make(map[string]any, len(raw))
		for k, v := range raw {
			if k == "id" {
				continue
			}
			attrs[k] = v
		}
		g.AddNode(&Node{ID: id, Type: t, Attrs: attrs})
		stats.Nodes++
	}

	for _, raw := range data.Edges {
		src, _ := raw["source_id"].(string)
		dst, _ := raw["target_id"].(string)
		label, _ := raw["relation_type"].(string)
		if src == "" || dst == "" || label == "" {
			stats.SkippedEdges++
			continue
		}
		t, ok := ParseEdgeType(label)
		if !ok {
			stats.UnknownEdgeTypes++
		}
		attrs := make(map[string]any)
		for k, v := range raw {
			switch k {
			case "source_id", "target_id", "relation_type":
				continue
			}
			attrs[k] = v
		}
		if err := g.AddEdge(&Edge{Source: src, Target: dst, Type: t, Label: label, Attrs: attrs}); err != nil {
			slog.Debug("skipping edge", "source", src, "target", dst, "error", err)
			stats.SkippedEdges++
			continue
		}
		stats.Edges++
	}

	return g, stats, nil
}

// Write encodes g in the same JSON layout Load reads.
func Write(w io.Writer, g *Graph) error {
	out := fileFormat{Metadata: map[string]any{"node_count": g.NodeCount(), "edge_count": g.EdgeCount()}}
	for _, n := range g.Nodes() {
		m := make(map[string]any, len(n.Attrs)+2)
		for k, v := range n.Attrs {
			m[k] = v
		}
		m["id"] = n.ID
		if _, ok := m["type"]; !ok {
			m["type"] = string(n.Type)
		}
		out.Nodes = append(out.Nodes, m)
	}
	for _, e := range g.Edges() {
		m := make(map[string]any, len(e.Attrs)+3)
		for k, v := range e.Attrs {
			m[k] = v
		}
		m["source_id"] = e.Source
		m["target_id"] = e.Target
		label := e.Label
		if label == "" {
			label = string(e.Type)
		}
		m["relation_type"] = label
		out.Edges = append(out.Edges, m)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
