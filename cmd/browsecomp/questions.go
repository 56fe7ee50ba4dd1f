package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lzyq-hntvu/browsecomp-V3/store"
)

func newQuestionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect questions stored in the database",
	}
	cmd.AddCommand(newQuestionsListCmd(c), newQuestionsShowCmd(c), newQuestionsSimilarCmd(c))
	return cmd
}

func (c *cli) openStore() (*store.Store, error) {
	return store.New(c.cfg.ResolveDBPath(), c.cfg.FingerprintDim)
}

func newQuestionsListCmd(c *cli) *cobra.Command {
	var templateID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored questions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			qs, err := s.ListQuestions(cmd.Context(), templateID, limit)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), qs, func(w io.Writer) {
				for _, q := range qs {
					fmt.Fprintf(w, "%s [%s/%s] %s\n    -> %s\n", q.ID, q.TemplateID, q.Difficulty, q.Text, q.AnswerText)
				}
				fmt.Fprintf(w, "%d questions\n", len(qs))
			})
		},
	}
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Only questions of this template")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of questions (0 for all)")
	return cmd
}

func newQuestionsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <question-id>",
		Short: "Show one stored question with its reasoning steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			q, err := s.GetQuestion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), q, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n  Q: %s\n  A: %s (%s %s)\n", q.ID, q.Text, q.AnswerText, q.AnswerEntityType, q.AnswerEntityID)
				fmt.Fprintf(w, "  template %s, difficulty %s, confidence %.2f\n", q.TemplateID, q.Difficulty, q.Confidence)
				for _, st := range q.Steps {
					fmt.Fprintf(w, "  %d. %s -> %d\n", st.StepID, st.Description, st.ResultCount)
				}
			})
		},
	}
}

func newQuestionsSimilarCmd(c *cli) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar <text>",
		Short: "Find stored questions with a similar text fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			hits, err := s.SimilarQuestions(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), hits, func(w io.Writer) {
				for _, h := range hits {
					fmt.Fprintf(w, "%.3f  %s [%s] %s\n", h.Score, h.ID, h.TemplateID, h.Text)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "n", 5, "Number of neighbours")
	return cmd
}
