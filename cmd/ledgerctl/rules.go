package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and toggle categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesToggleCmd("activate", "Activate rules by id", true))
	cmd.AddCommand(rulesToggleCmd("deactivate", "Deactivate rules by id", false))

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			categoryID, _ := cmd.Flags().GetInt64("category")
			origin, _ := cmd.Flags().GetString("origin")

			filter := rule.ListFilter{ActiveOnly: !all}

			if categoryID > 0 {
				filter.CategoryID = &categoryID
			}

			switch o := rule.Origin(origin); o {
			case "":
			case rule.OriginManual, rule.OriginLearned:
				filter.Origin = &o
			default:
				return fmt.Errorf("unknown origin %q (manual, learned)", origin)
			}

			return withServices(cmd.Context(), func(s *services) error {
				rules, err := s.rules.List(cmd.Context(), filter)
				if err != nil {
					return err
				}

				if len(rules) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rules found.")
					return nil
				}

				printRules(cmd.OutOrStdout(), rules)

				return nil
			})
		},
	}

	cmd.Flags().Bool("all", false, "include inactive rules")
	cmd.Flags().Int64("category", 0, "only rules assigning this category")
	cmd.Flags().String("origin", "", "only manual or learned rules")

	return cmd
}

func rulesToggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(s *services) error {
				res, err := s.rules.BulkSetActive(cmd.Context(), ids, active)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "updated: %s\n", okStyle.Render(strconv.Itoa(res.Updated)))
				printBatch(cmd.OutOrStdout(), res)

				return nil
			})
		},
	}
}

func printRules(out io.Writer, rules []*rule.Rule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("ID"),
		headerStyle.Render("Type"),
		headerStyle.Render("Value"),
		headerStyle.Render("Category"),
		headerStyle.Render("Priority"),
		headerStyle.Render("Confidence"),
		headerStyle.Render("Origin"),
		headerStyle.Render("Hits"))

	for _, r := range rules {
		id := strconv.FormatInt(r.ID, 10)
		if !r.IsActive {
			id = warnStyle.Render(id + "*")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%d\n",
			id, r.Match.Type(), r.Match.Value(), r.CategoryID, r.Priority, r.Confidence, r.Origin, r.HitCount)
	}
}
