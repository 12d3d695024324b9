package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ai-portfolio/internal/domain"
)

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show which LLM provider the server uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			info, err := s.Info(ctx)
			if err != nil {
				return err
			}
			if !info.Success {
				return fmt.Errorf("server reported an error: %s", info.Error)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n\n", labelStyle.Render("Current:"), info.CurrentInfo.Name, info.CurrentInfo.Model)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tNAME\tMODEL\tCONFIGURED")
			for _, p := range domain.Providers {
				pi, ok := info.AllProviders[p]
				if !ok {
					continue
				}
				model := pi.Model
				if pi.BaseURL != "" {
					model += " @ " + pi.BaseURL
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p, pi.Name, model, pi.Configured)
			}
			return w.Flush()
		},
	}
}

func newQuestionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List the predefined quick questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			cat, err := s.Questions(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tQUESTION")
			for _, q := range cat.Questions {
				fmt.Fprintf(w, "%s\t%s\n", q.Key, q.Question)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(cat.Suggestions) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, labelStyle.Render("Suggestions:"))
				for _, sg := range cat.Suggestions {
					fmt.Fprintln(out, "  - "+sg)
				}
			}
			return nil
		},
	}
}
