package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	browsecomp "github.com/lzyq-hntvu/browsecomp-V3"
)

// Output formats for command results.
const (
	outputText = "text"
	outputJSON = "json"
)

// cli carries the global flags and the resolved configuration shared by
// every subcommand.
type cli struct {
	configFile string
	graphPath  string
	dbPath     string
	seed       int64
	verbose    bool
	output     string

	cfg browsecomp.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "browsecomp",
		Short: "Generate multi-hop academic questions from a knowledge graph",
		Long: `browsecomp builds question/answer pairs by instantiating constraint
sets for reasoning templates, executing them against an academic knowledge
graph and phrasing the surviving entity as the answer.`,
		PersistentPreRunE: c.load,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to config file (YAML or JSON)")
	flags.StringVar(&c.graphPath, "kg-path", "", "Knowledge graph JSON file")
	flags.StringVar(&c.dbPath, "db", "", "SQLite database path")
	flags.Int64Var(&c.seed, "seed", 0, "Random seed (0 picks one)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&c.output, "output", "o", outputText, "Output format (text|json)")

	root.AddCommand(
		newGenerateCmd(c),
		newImportCmd(c),
		newStatsCmd(c),
		newTemplatesCmd(c),
		newQuestionsCmd(c),
	)
	return root
}

// load resolves the configuration: file, then environment, then flags.
func (c *cli) load(cmd *cobra.Command, args []string) error {
	if c.output != outputText && c.output != outputJSON {
		return fmt.Errorf("unknown output format %q (want text or json)", c.output)
	}

	cfg, err := browsecomp.LoadConfig(c.configFile)
	if err != nil {
		return err
	}
	if c.graphPath != "" {
		cfg.GraphPath = c.graphPath
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if c.seed != 0 {
		cfg.Seed = c.seed
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	c.cfg = cfg

	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	return nil
}

// print writes v as indented JSON in json mode, otherwise calls text.
func (c *cli) print(w io.Writer, v any, text func(io.Writer)) error {
	if c.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
