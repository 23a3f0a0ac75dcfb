package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/ccbdesk/ccb"
)

func reportCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		analyst string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Dashboards over the whole ledger",
	}
	cmd.PersistentFlags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	cmd.PersistentFlags().StringVar(&analyst, "analyst", "", "only cases owned by this analyst")

	// load lists the cases, narrowed to --analyst when given.
	load := func(cmd *cobra.Command) ([]ccb.Case, error) {
		desk, err := a.openDesk(cmd.Context())
		if err != nil {
			return nil, err
		}
		defer desk.Close()

		cases, err := desk.Engine.Repository().List(cmd.Context())
		if err != nil {
			return nil, err
		}
		if analyst != "" {
			cases = ccb.FilterByOwner(cases, analyst)
		}
		return cases, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Counts per analysis status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := load(cmd)
			if err != nil {
				return err
			}
			counts := ccb.CountByStatus(cases)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), counts)
			}
			printCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "analysts",
		Short: "Totals per analyst",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := load(cmd)
			if err != nil {
				return err
			}
			groups := ccb.GroupByAnalyst(cases)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), groups)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ANALISTA\tTOTAL\tEM ANÁLISE\tPENDENTE\tAPROVADA\tREPROVADA\tVALOR")
			for _, g := range groups {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					g.Analyst, g.Total, g.Counts.InReview, g.Counts.Pending,
					g.Counts.Approved, g.Counts.Rejected, g.NetAmount.StringFixed(2))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "months",
		Short: "Totals per month, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := load(cmd)
			if err != nil {
				return err
			}
			months := ccb.GroupByMonth(cases)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), months)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MÊS\tTOTAL\tEM ANÁLISE\tPENDENTE\tAPROVADA\tREPROVADA\tVALOR")
			for _, m := range months {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					m.Month, m.Total, m.Counts.InReview, m.Counts.Pending,
					m.Counts.Approved, m.Counts.Rejected, m.NetAmount.StringFixed(2))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "month <MM/YYYY>",
		Short: "Summary of one month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, y, err := ccb.ParseMonthKey(args[0])
			if err != nil {
				return err
			}
			cases, err := load(cmd)
			if err != nil {
				return err
			}
			key := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format(ccb.MonthKeyLayout)
			summary := ccb.MonthlySummary(cases, key)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Relatório %s\n", summary.Month)
			printCounts(cmd.OutOrStdout(), summary.Counts)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "period <from> <to>",
		Short: "Counts for cases created between two dates (YYYY-MM-DD, inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, _ := a.cfg.Location()
			from, err := time.ParseInLocation("2006-01-02", args[0], loc)
			if err != nil {
				return &ccb.InputError{Field: "from", Reason: err.Error()}
			}
			to, err := time.ParseInLocation("2006-01-02", args[1], loc)
			if err != nil {
				return &ccb.InputError{Field: "to", Reason: err.Error()}
			}
			p := ccb.DayPeriod(from, to, loc)
			if err := p.Validate(); err != nil {
				return err
			}

			cases, err := load(cmd)
			if err != nil {
				return err
			}
			in := ccb.FilterByPeriod(cases, p)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ccb.CountByStatus(in))
			}
			printCounts(cmd.OutOrStdout(), ccb.CountByStatus(in))
			return nil
		},
	})

	return cmd
}

func printCounts(w io.Writer, c ccb.StatusCounts) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range ccb.KnownStatuses {
		fmt.Fprintf(tw, "  %s:\t%d\n", s.Label(), c.Get(s))
	}
	if c.Unknown > 0 {
		fmt.Fprintf(tw, "  Outros:\t%d\n", c.Unknown)
	}
	fmt.Fprintf(tw, "  Total:\t%d\n", c.Total)
	tw.Flush()
}
