package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	browsecomp "github.com/lzyq-hntvu/browsecomp-V3"
	"github.com/lzyq-hntvu/browsecomp-V3/export"
)

func newGenerateCmd(c *cli) *cobra.Command {
	var (
		count          int
		minConstraints int
		maxConstraints int
		templateID     string
		exclude        []string
		format         string
		outDir         string
		persist        bool
		noChain        bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of questions",
		Example: `  # 50 questions, random templates
  browsecomp generate --kg-path kg.json --count 50

  # Template A only, JSON and Markdown output
  browsecomp generate --kg-path kg.json -t A -f both`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("format") {
				cfg.Output.Format = format
			}
			if cmd.Flags().Changed("out-dir") {
				cfg.Output.Dir = outDir
			}
			if persist {
				cfg.Persist = true
			}
			if noChain {
				cfg.Output.IncludeReasoningChain = false
			}

			engine, err := browsecomp.New(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			var opts []browsecomp.GenerateOption
			if templateID != "" {
				opts = append(opts, browsecomp.WithTemplate(templateID))
			}
			if len(exclude) > 0 {
				opts = append(opts, browsecomp.WithExclude(exclude...))
			}
			if cmd.Flags().Changed("min-constraints") || cmd.Flags().Changed("max-constraints") {
				minN, maxN := cfg.MinConstraints, cfg.MaxConstraints
				if cmd.Flags().Changed("min-constraints") {
					minN = minConstraints
				}
				if cmd.Flags().Changed("max-constraints") {
					maxN = maxConstraints
				}
				opts = append(opts, browsecomp.WithConstraintRange(minN, maxN))
			}

			batch, genErr := engine.Generate(cmd.Context(), count, opts...)
			if batch == nil {
				return genErr
			}

			var paths []string
			if len(batch.Questions) > 0 {
				paths, err = saveBatch(cfg, batch)
				if err != nil {
					return err
				}
			}

			result := struct {
				Stats browsecomp.RunStats `json:"stats"`
				Files []string            `json:"files"`
			}{batch.Stats, paths}
			if err := c.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprint(w, browsecomp.FormatRunStats(&batch.Stats))
				for _, p := range paths {
					fmt.Fprintf(w, "Wrote %s\n", p)
				}
			}); err != nil {
				return err
			}
			return genErr
		},
	}

	f := cmd.Flags()
	f.IntVarP(&count, "count", "c", 0, "Number of questions (default: batch_size from config)")
	f.IntVar(&minConstraints, "min-constraints", 0, "Minimum constraints per question")
	f.IntVar(&maxConstraints, "max-constraints", 0, "Maximum constraints per question")
	f.StringVarP(&templateID, "template", "t", "", "Restrict to one template (A-G)")
	f.StringSliceVar(&exclude, "exclude", nil, "Templates to skip")
	f.StringVarP(&format, "format", "f", export.FormatJSON, "Export format (json|markdown|xlsx|both|all)")
	f.StringVar(&outDir, "out-dir", "output", "Directory for exported files")
	f.BoolVar(&persist, "persist", false, "Store accepted questions in the database")
	f.BoolVar(&noChain, "no-chain", false, "Omit reasoning chains from exports")
	return cmd
}

func saveBatch(cfg browsecomp.Config, batch *browsecomp.Batch) ([]string, error) {
	format := cfg.Output.Format
	if format == "" {
		format = export.FormatJSON
	}
	paths, err := export.Save(cfg.Output.Dir, format, batch.Questions, cfg.ExportOptions())
	if err != nil {
		return nil, fmt.Errorf("exporting questions: %w", err)
	}
	return paths, nil
}
