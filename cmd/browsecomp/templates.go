package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lzyq-hntvu/browsecomp-V3/constraint"
)

func newTemplatesCmd(c *cli) *cobra.Command {
	var showRules bool
	var keywords string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List reasoning templates and constraint rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := c.catalog()
			if err != nil {
				return err
			}

			if keywords != "" {
				rules := catalog.LookupByKeywords(keywords)
				return c.print(cmd.OutOrStdout(), rules, func(w io.Writer) { writeRules(w, rules) })
			}

			result := struct {
				Templates []*constraint.Template `json:"templates"`
				Rules     []*constraint.Rule     `json:"rules,omitempty"`
			}{Templates: catalog.Templates()}
			if showRules {
				result.Rules = catalog.Rules()
			}

			return c.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				for _, t := range result.Templates {
					fmt.Fprintf(w, "%s  %-28s start=%-11s weight=%.2f\n", t.ID, t.Name, t.StartNode, t.Frequency)
					fmt.Fprintf(w, "   constraints: %s\n", strings.Join(t.ApplicableConstraints, " "))
				}
				if showRules {
					fmt.Fprintln(w)
					writeRules(w, result.Rules)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&showRules, "rules", false, "Also list the constraint mapping rules")
	cmd.Flags().StringVar(&keywords, "match", "", "List only the rules triggered by this text")
	return cmd
}

func writeRules(w io.Writer, rules []*constraint.Rule) {
	for _, r := range rules {
		fmt.Fprintf(w, "%s  %-24s %-16s %s\n", r.ID, r.Type, r.Operation.Action, r.Name)
	}
}

func (c *cli) catalog() (*constraint.Catalog, error) {
	if c.cfg.CatalogPath != "" {
		return constraint.LoadCatalogFile(c.cfg.CatalogPath)
	}
	return constraint.DefaultCatalog()
}
