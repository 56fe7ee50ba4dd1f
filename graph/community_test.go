package graph

import (
	"fmt"
	"reflect"
	"testing"
)

// coauthorGraph has two groups of three authors who write together, one
// bridge paper between them and an author who writes alone.
func coauthorGraph(t *testing.T) *Graph {
	t.Helper()
	var nodes []*Node
	var edges []*Edge
	for i := 1; i <= 7; i++ {
		nodes = append(nodes, author(fmt.Sprintf("A%d", i), fmt.Sprintf("Author %d", i)))
	}
	papers := map[string][]string{
		"P1": {"A1", "A2", "A3"},
		"P2": {"A1", "A2", "A3"},
		"P3": {"A4", "A5", "A6"},
		"P4": {"A4", "A5", "A6"},
		"P5": {"A3", "A4"},
		"P6": {"A7"},
	}
	for _, id := range []string{"P1", "P2", "P3", "P4", "P5", "P6"} {
		nodes = append(nodes, paper(id, nil))
		for order, a := range papers[id] {
			edges = append(edges, &Edge{Source: id, Target: a, Type: EdgeHasAuthor,
				Attrs: map[string]any{"author_order": order + 1}})
		}
	}
	return buildGraph(t, nodes, edges)
}

func TestCoauthorCommunities(t *testing.T) {
	communities := CoauthorCommunities(coauthorGraph(t))

	var level0, level1 []Community
	for _, c := range communities {
		switch c.Level {
		case 0:
			level0 = append(level0, c)
		case 1:
			level1 = append(level1, c)
		default:
			t.Errorf("unexpected level %d", c.Level)
		}
	}

	want := []Community{
		{Level: 0, Members: []string{"A1", "A2", "A3", "A4", "A5", "A6"}},
		{Level: 0, Members: []string{"A7"}},
	}
	if !reflect.DeepEqual(level0, want) {
		t.Fatalf("level 0 = %v, want %v", level0, want)
	}

	// A split, when found, partitions the large component.
	seen := map[string]bool{}
	for _, c := range level1 {
		for _, m := range c.Members {
			if seen[m] {
				t.Errorf("%s in two level-1 communities", m)
			}
			seen[m] = true
		}
	}
	if len(level1) > 0 && len(seen) != 6 {
		t.Errorf("level-1 communities cover %d authors, want 6", len(seen))
	}
}

func TestCoauthorCommunitiesDeterministic(t *testing.T) {
	g := coauthorGraph(t)
	first := CoauthorCommunities(g)
	for i := 0; i < 5; i++ {
		if got := CoauthorCommunities(g); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestCoauthorCommunitiesNoAuthors(t *testing.T) {
	g := buildGraph(t, []*Node{paper("P1", nil)}, nil)
	if got := CoauthorCommunities(g); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]Community{
		{Level: 0, Members: []string{"A1", "A2", "A3"}},
		{Level: 0, Members: []string{"A4"}},
		{Level: 1, Members: []string{"A1", "A2"}},
		{Level: 1, Members: []string{"A3"}},
	})
	want := CommunitySummary{Groups: 1, Solo: 1, Subgroups: 2, Largest: 3}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
}
