package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/money"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func autoCategorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto-categorize [transaction-id...]",
		Short: "Score uncategorized transactions and apply confident categories",
		Long: `Run the automatic categorization pass in the foreground.

Without arguments every NEW and NEEDS_REVIEW transaction is scored.
Confident results are applied, borderline ones are queued for review.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(s *services) error {
				progress := newBarProgress(cmd.ErrOrStderr(), "categorizing")

				res, err := s.categorize.AutoCategorize(cmd.Context(), ids, progress)
				progress.finish()
				printAutoResult(cmd.OutOrStdout(), res)

				return interrupted(err)
			})
		},
	}
}

func autoMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto-match",
		Short: "Link unmatched debits to their best expense request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := matchOptions(cmd)
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(s *services) error {
				progress := newBarProgress(cmd.ErrOrStderr(), "matching")

				res, err := s.reconcile.AutoMatch(cmd.Context(), opts, progress)
				progress.finish()
				printMatchResult(cmd.OutOrStdout(), res)

				return interrupted(err)
			})
		},
	}

	addMatchFlags(cmd)

	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Auto-categorize, then auto-match",
		Long: `Run the same two-stage pass the scheduler submits: every open transaction is
auto-categorized, then unmatched debits are linked to expense requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := matchOptions(cmd)
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(s *services) error {
				out := cmd.OutOrStdout()
				progress := newBarProgress(cmd.ErrOrStderr(), "categorizing")

				cat, err := s.categorize.AutoCategorize(cmd.Context(), nil, progress)
				progress.finish()
				printAutoResult(out, cat)

				if err != nil {
					return interrupted(err)
				}

				progress.Stage("matching")

				match, err := s.reconcile.AutoMatch(cmd.Context(), opts, progress)
				progress.finish()
				printMatchResult(out, match)

				return interrupted(err)
			})
		},
	}

	addMatchFlags(cmd)

	return cmd
}

func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", -1, "minimum candidate score 0-100 (default MATCHING_THRESHOLD)")
	cmd.Flags().Int("limit", -1, "maximum links to make, 0 for no cap (default MATCHING_LIMIT)")
}

func matchOptions(cmd *cobra.Command) (reconcile.AutoMatchOptions, error) {
	opts := cfg.AutoMatchOptions()

	if cmd.Flags().Changed("threshold") {
		opts.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}

	if cmd.Flags().Changed("limit") {
		opts.Limit, _ = cmd.Flags().GetInt("limit")
	}

	return opts, opts.Validate()
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))

	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// interrupted turns a cancelled pass into a short message; the partial
// result has already been printed.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted, partial result above")
	}

	return err
}

func printAutoResult(w io.Writer, res categorize.AutoResult) {
	fmt.Fprintln(w, headerStyle.Render("Auto-categorization"))
	fmt.Fprintf(w, "  applied:   %s\n", okStyle.Render(strconv.Itoa(res.AutoApplied)))
	fmt.Fprintf(w, "  suggested: %d\n", res.Suggested)
	printBatch(w, res.Result)
}

func printMatchResult(w io.Writer, res reconcile.AutoMatchResult) {
	fmt.Fprintln(w, headerStyle.Render("Auto-matching"))
	fmt.Fprintf(w, "  linked:    %s\n", okStyle.Render(strconv.Itoa(res.MatchedCount)))

	for _, m := range res.Matches {
		fmt.Fprintf(w, "    tx %d -> expense %d  score %.2f  amount %s\n", m.TransactionID, m.ExpenseID, m.Score, money.Format(m.Amount))
	}

	printBatch(w, res.Result)
}

func printBatch(w io.Writer, res batch.Result) {
	fmt.Fprintf(w, "  skipped:   %d\n", res.Skipped)

	for _, msg := range res.Errors {
		fmt.Fprintln(w, warnStyle.Render("    "+msg))
	}

	if res.ErrorsTruncated > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("    ... and %d more", res.ErrorsTruncated)))
	}
}
