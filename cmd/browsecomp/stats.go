package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge graph and database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Graph    *graphStats    `json:"graph,omitempty"`
				Database *store.DBStats `json:"database,omitempty"`
			}

			if c.cfg.GraphPath != "" {
				g, _, err := graph.LoadFile(c.cfg.GraphPath)
				if err != nil {
					return err
				}
				result.Graph = newGraphStats(g)
			}

			s, err := store.New(c.cfg.ResolveDBPath(), c.cfg.FingerprintDim)
			if err != nil {
				return err
			}
			defer s.Close()
			if result.Database, err = s.Stats(cmd.Context()); err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				if g := result.Graph; g != nil {
					fmt.Fprintf(w, "Graph %s: %d nodes, %d edges\n", c.cfg.GraphPath, g.Nodes, g.Edges)
					writeCounts(w, g.NodesByType)
					fmt.Fprintf(w, "Co-author groups: %d (largest %d authors, %d subgroups), %d solo authors\n",
						g.Coauthors.Groups, g.Coauthors.Largest, g.Coauthors.Subgroups, g.Coauthors.Solo)
				}
				d := result.Database
				fmt.Fprintf(w, "Database %s (schema v%d)\n", c.cfg.ResolveDBPath(), d.SchemaVersion)
				fmt.Fprintf(w, "  nodes %d, edges %d, questions %d, steps %d, fingerprints %d\n",
					d.Nodes, d.Edges, d.Questions, d.Steps, d.Fingerprints)
				writeCounts(w, d.NodesByType)
			})
		},
	}
}

type graphStats struct {
	Nodes       int                    `json:"nodes"`
	Edges       int                    `json:"edges"`
	NodesByType map[string]int         `json:"nodes_by_type"`
	Coauthors   graph.CommunitySummary `json:"coauthor_communities"`
}

func newGraphStats(g *graph.Graph) *graphStats {
	s := &graphStats{
		Nodes:       g.NodeCount(),
		Edges:       g.EdgeCount(),
		NodesByType: map[string]int{},
		Coauthors:   graph.Summarize(graph.CoauthorCommunities(g)),
	}
	for t, n := range g.TypeCounts() {
		s.NodesByType[string(t)] = n
	}
	return s
}

func writeCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, counts[k])
	}
}
