package graph

import (
	"fmt"

	"github.com/tidwall/btree"
)

// Node is a typed record with a flat attribute map.
type Node struct {
	ID    string         `json:"id"`
	Type  NodeType       `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// Attr returns the stored attribute, or nil when absent.
func (n *Node) Attr(name string) any {
	if n == nil || n.Attrs == nil {
		return nil
	}
	return n.Attrs[name]
}

// Name returns the node's "name" attribute as a string.
func (n *Node) Name() string {
	s, _ := n.Attr("name").(string)
	return s
}

// Edge is a directed, typed relation with its own attributes.
type Edge struct {
	Source string         `json:"source_id"`
	Target string         `json:"target_id"`
	Type   EdgeType       `json:"relation_type"`
	Label  string         `json:"-"` // raw relation string from the data file
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Attr returns the edge attribute, or nil when absent.
func (e *Edge) Attr(name string) any {
	if e == nil || e.Attrs == nil {
		return nil
	}
	return e.Attrs[name]
}

// Store is the read-only view of the knowledge graph the query engine needs.
// Implementations must return ids in a stable order so seeded runs are
// reproducible.
type Store interface {
	// Nodes returns every node ordered by id.
	Nodes() []*Node
	// NodesByType returns the ids of all nodes of type t, ordered by id.
	NodesByType(t NodeType) []string
	// Node returns a single node.
	Node(id string) (*Node, bool)
	// Successors returns the targets of id's outgoing edges.
	Successors(id string) []string
	// Predecessors returns the sources of id's incoming edges.
	Predecessors(id string) []string
	// EdgeFromTo returns the edge stored exactly as src -> dst.
	EdgeFromTo(src, dst string) (*Edge, bool)
	// EdgeBetween returns the edge between a and b in either direction,
	// preferring a -> b.
	EdgeBetween(a, b string) (*Edge, bool)
}

type edgeKey struct{ src, dst string }

// Graph is the in-memory directed property graph. It holds at most one edge
// per ordered node pair; adding a second edge for the same pair merges its
// attributes into the first. Build it with AddNode/AddEdge, then treat it as
// read-only.
type Graph struct {
	nodes  btree.Map[string, *Node]
	byType map[NodeType]*btree.Set[string]
	out    map[string][]string
	in     map[string][]string
	edges  map[edgeKey]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byType: make(map[NodeType]*btree.Set[string]),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		edges:  make(map[edgeKey]*Edge),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n *Node) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	if prev, ok := g.nodes.Get(n.ID); ok {
		if set := g.byType[prev.Type]; set != nil {
			set.Delete(n.ID)
		}
	}
	g.nodes.Set(n.ID, n)
	set := g.byType[n.Type]
	if set == nil {
		set = &btree.Set[string]{}
		g.byType[n.Type] = set
	}
	set.Insert(n.ID)
}

// AddEdge inserts a directed edge. Both endpoints must already exist.
func (g *Graph) AddEdge(e *Edge) error {
	if _, ok := g.nodes.Get(e.Source); !ok {
		return fmt.Errorf("graph.AddEdge: unknown source node %q", e.Source)
	}
	if _, ok := g.nodes.Get(e.Target); !ok {
		return fmt.Errorf("graph.AddEdge: unknown target node %q", e.Target)
	}
	key := edgeKey{e.Source, e.Target}
	if prev, ok := g.edges[key]; ok {
		prev.Type = e.Type
		prev.Label = e.Label
		for k, v := range e.Attrs {
			if prev.Attrs == nil {
				prev.Attrs = make(map[string]any)
			}
			prev.Attrs[k] = v
		}
		return nil
	}
	g.edges[key] = e
	g.out[e.Source] = append(g.out[e.Source], e.Target)
	g.in[e.Target] = append(g.in[e.Target], e.Source)
	return nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.nodes.Len() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes implements Store.
func (g *Graph) Nodes() []*Node {
	return g.nodes.Values()
}

// NodesByType implements Store.
func (g *Graph) NodesByType(t NodeType) []string {
	set := g.byType[t]
	if set == nil {
		return nil
	}
	return set.Keys()
}

// Node implements Store.
func (g *Graph) Node(id string) (*Node, bool) {
	return g.nodes.Get(id)
}

// Successors implements Store.
func (g *Graph) Successors(id string) []string { return g.out[id] }

// Predecessors implements Store.
func (g *Graph) Predecessors(id string) []string { return g.in[id] }

// EdgeFromTo implements Store.
func (g *Graph) EdgeFromTo(src, dst string) (*Edge, bool) {
	e, ok := g.edges[edgeKey{src, dst}]
	return e, ok
}

// EdgeBetween implements Store.
func (g *Graph) EdgeBetween(a, b string) (*Edge, bool) {
	if e, ok := g.edges[edgeKey{a, b}]; ok {
		return e, true
	}
	e, ok := g.edges[edgeKey{b, a}]
	return e, ok
}

// Edges returns every edge ordered by source then target insertion order.
func (g *Graph) Edges() []*Edge {
	var out []*Edge
	g.nodes.Scan(func(id string, _ *Node) bool {
		for _, dst := range g.out[id] {
			out = append(out, g.edges[edgeKey{id, dst}])
		}
		return true
	})
	return out
}

// TypeCounts returns the number of nodes per type.
func (g *Graph) TypeCounts() map[NodeType]int {
	counts := make(map[NodeType]int, len(g.byType))
	for t, set := range g.byType {
		counts[t] = set.Len()
	}
	return counts
}
