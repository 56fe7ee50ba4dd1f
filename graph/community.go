package graph

import (
	"log/slog"
	"sort"
)

// minComponentSplit is the minimum component size eligible for further
// modularity-based splitting.
const minComponentSplit = 6

// maxModularityNodes caps the node count for the modularity optimisation.
// Components larger than this are kept as level-0 only.
const maxModularityNodes = 200

// Community is a group of authors who publish together. Level 0 groups are
// connected components of the co-authorship network, level 1 groups split
// a component by modularity.
type Community struct {
	Level   int      `json:"level"`
	Members []string `json:"members"`
}

// adjEdge is a weighted edge in the in-memory adjacency list.
type adjEdge struct {
	to     int
	weight float64
}

// CoauthorCommunities detects research groups in the co-authorship
// network: two authors are linked with a weight equal to the number of
// papers they share. Results are ordered by level, then by size descending,
// then by first member.
func CoauthorCommunities(s Store) []Community {
	authors := s.NodesByType(NodeAuthor)
	if len(authors) == 0 {
		return nil
	}
	idIndex := make(map[string]int, len(authors))
	for i, id := range authors {
		idIndex[id] = i
	}

	// Pair weights from each paper's author list.
	type pair struct{ a, b int }
	weights := make(map[pair]float64)
	for _, paper := range s.NodesByType(NodePaper) {
		var members []int
		for _, dst := range s.Successors(paper) {
			e, ok := s.EdgeFromTo(paper, dst)
			if !ok || e.Type != EdgeHasAuthor {
				continue
			}
			if i, ok := idIndex[dst]; ok {
				members = append(members, i)
			}
		}
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				a, b := members[x], members[y]
				if a > b {
					a, b = b, a
				}
				weights[pair{a, b}]++
			}
		}
	}

	pairs := make([]pair, 0, len(weights))
	for p := range weights {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	adj := make([][]adjEdge, len(authors))
	totalWeight := 0.0
	for _, p := range pairs {
		w := weights[p]
		adj[p.a] = append(adj[p.a], adjEdge{to: p.b, weight: w})
		adj[p.b] = append(adj[p.b], adjEdge{to: p.a, weight: w})
		totalWeight += w
	}

	// Level 0: connected components via BFS
	visited := make([]bool, len(authors))
	var components [][]int
	for i := range authors {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range adj[node] {
				if !visited[e.to] {
					visited[e.to] = true
					queue = append(queue, e.to)
				}
			}
		}
		components = append(components, comp)
	}

	var communities []Community
	for _, comp := range components {
		communities = append(communities, Community{Level: 0, Members: memberIDs(comp, authors)})

		// Level 1 only for mid-sized components; the split is quadratic.
		if len(comp) >= minComponentSplit && len(comp) <= maxModularityNodes && totalWeight > 0 {
			subs := modularitySplit(comp, adj, totalWeight)
			if len(subs) > 1 {
				for _, sub := range subs {
					communities = append(communities, Community{Level: 1, Members: memberIDs(sub, authors)})
				}
			}
		}
	}

	sort.SliceStable(communities, func(i, j int) bool {
		ci, cj := communities[i], communities[j]
		if ci.Level != cj.Level {
			return ci.Level < cj.Level
		}
		if len(ci.Members) != len(cj.Members) {
			return len(ci.Members) > len(cj.Members)
		}
		return ci.Members[0] < cj.Members[0]
	})

	slog.Debug("coauthor communities detected",
		"authors", len(authors), "components", len(components), "communities", len(communities))
	return communities
}

// memberIDs maps component indices back to sorted node ids.
func memberIDs(comp []int, ids []string) []string {
	out := make([]string, len(comp))
	for i, idx := range comp {
		out[i] = ids[idx]
	}
	sort.Strings(out)
	return out
}

// modularitySplit applies a greedy modularity optimisation (simplified Louvain)
// to split a connected component into two or more sub-communities. If the
// split does not improve modularity the original component is returned as-is.
func modularitySplit(comp []int, adj [][]adjEdge, totalWeight float64) [][]int {
	n := len(comp)
	if n < minComponentSplit {
		return [][]int{comp}
	}

	localIdx := make(map[int]int, n)
	for i, node := range comp {
		localIdx[node] = i
	}

	// community[i] is the label of local node i; each starts alone.
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	strength := make([]float64, n)
	for i, node := range comp {
		for _, e := range adj[node] {
			if _, ok := localIdx[e.to]; ok {
				strength[i] += e.weight
			}
		}
	}

	m2 := 2.0 * totalWeight
	commStrength := make(map[int]float64, n)
	for i := range comp {
		commStrength[community[i]] += strength[i]
	}

	const maxPasses = 20
	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for i, node := range comp {
			commWeights := make(map[int]float64)
			for _, e := range adj[node] {
				li, ok := localIdx[e.to]
				if !ok {
					continue
				}
				commWeights[community[li]] += e.weight
			}

			currentComm := community[i]
			ki := strength[i]
			removeDelta := commWeights[currentComm]/m2 - (commStrength[currentComm]*ki)/(m2*m2)

			// Ties go to the lowest label so the result does not depend on
			// map order.
			bestComm, bestGain := currentComm, 0.0
			for c, wic := range commWeights {
				if c == currentComm {
					continue
				}
				gain := (wic/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain || (gain == bestGain && gain > 0 && c < bestComm) {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				community[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	groups := make(map[int][]int)
	var labels []int
	for i, node := range comp {
		if _, ok := groups[community[i]]; !ok {
			labels = append(labels, community[i])
		}
		groups[community[i]] = append(groups[community[i]], node)
	}
	if len(labels) <= 1 {
		return [][]int{comp}
	}

	result := make([][]int, 0, len(labels))
	for _, l := range labels {
		result = append(result, groups[l])
	}
	return result
}

// CommunitySummary condenses a community list for reporting.
type CommunitySummary struct {
	Groups    int `json:"groups"`    // level-0 communities with more than one author
	Solo      int `json:"solo"`      // authors without co-authors
	Subgroups int `json:"subgroups"` // level-1 communities
	Largest   int `json:"largest"`
}

// Summarize counts communities by kind.
func Summarize(communities []Community) CommunitySummary {
	var s CommunitySummary
	for _, c := range communities {
		switch {
		case c.Level > 0:
			s.Subgroups++
		case len(c.Members) == 1:
			s.Solo++
		default:
			s.Groups++
		}
		if c.Level == 0 && len(c.Members) > s.Largest {
			s.Largest = len(c.Members)
		}
	}
	return s
}
