package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import [kg.json]",
		Short: "Load a knowledge graph file into the database",
		Long: `Import reads a JSON knowledge graph and upserts its nodes and edges into
the SQLite database. Later runs can then generate without --kg-path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.GraphPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no knowledge graph given (pass a file or --kg-path)")
			}

			g, loadStats, err := graph.LoadFile(path)
			if err != nil {
				return err
			}

			dbPath := c.cfg.ResolveDBPath()
			s, err := store.New(dbPath, c.cfg.FingerprintDim)
			if err != nil {
				return err
			}
			defer s.Close()

			imported, err := s.ImportGraph(cmd.Context(), g)
			if err != nil {
				return err
			}

			result := struct {
				Database string           `json:"database"`
				Loaded   *graph.LoadStats `json:"loaded"`
				Imported *graph.LoadStats `json:"imported"`
			}{dbPath, loadStats, imported}
			return c.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d nodes and %d edges into %s\n", imported.Nodes, imported.Edges, dbPath)
				if n := loadStats.UnknownNodeTypes + loadStats.UnknownEdgeTypes; n > 0 {
					fmt.Fprintf(w, "Unrecognized types: %d nodes, %d edges\n", loadStats.UnknownNodeTypes, loadStats.UnknownEdgeTypes)
				}
				if loadStats.SkippedEdges+loadStats.SkippedNodes > 0 {
					fmt.Fprintf(w, "Skipped: %d nodes, %d edges\n", loadStats.SkippedNodes, loadStats.SkippedEdges)
				}
			})
		},
	}
}
