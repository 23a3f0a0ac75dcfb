package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/ccbdesk/ccb"
)

// defaultAnalyst is the OS user, the closest thing a terminal has to a login.
func defaultAnalyst() string {
	return os.Getenv("USER")
}

func claimCmd(a *app) *cobra.Command {
	var analyst, amount, partner string

	cmd := &cobra.Command{
		Use:   "claim <case-id>",
		Short: "Create a case under review, or resume an open one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desk, err := a.openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer desk.Close()

			res, err := desk.Engine.Claim(cmd.Context(), ccb.NewSession(analyst), ccb.ClaimRequest{
				CaseID:    ccb.CaseID(args[0]),
				NetAmount: amount,
				Partner:   partner,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch res.Outcome {
			case ccb.ClaimCreated:
				fmt.Fprintf(out, "created %s\n", res.Case.ID)
			default:
				fmt.Fprintf(out, "resumed %s\n", res.Case.ID)
			}
			printCase(out, res.Case)
			return nil
		},
	}

	cmd.Flags().StringVarP(&analyst, "analyst", "a", defaultAnalyst(), "analyst name")
	cmd.Flags().StringVar(&amount, "amount", "", "net amount (required for a new case)")
	cmd.Flags().StringVar(&partner, "partner", "", "partner (required for a new case)")
	return cmd
}

func finalizeCmd(a *app) *cobra.Command {
	var analyst, notes string

	cmd := &cobra.Command{
		Use:   "finalize <case-id> <pending|approved|rejected>",
		Short: "Record the analysis result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := ccb.ParseStatus(args[1])
			if !result.IsFinalizeResult() {
				return &ccb.InputError{Field: "result", Reason: fmt.Sprintf("unknown result %q", args[1])}
			}

			desk, err := a.openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer desk.Close()

			res, err := desk.Engine.Finalize(cmd.Context(), ccb.NewSession(analyst), ccb.FinalizeRequest{
				CaseID: ccb.CaseID(args[0]),
				Result: result,
				Notes:  notes,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", res.Case.ID, res.Case.AnalystStatus.Label())
			printCase(cmd.OutOrStdout(), res.Case)
			return nil
		},
	}

	cmd.Flags().StringVarP(&analyst, "analyst", "a", defaultAnalyst(), "analyst name")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "notes (required for pending)")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <case-id>",
		Short: "Print one case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desk, err := a.openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer desk.Close()

			c, err := desk.Engine.Repository().FindByID(cmd.Context(), ccb.CaseID(args[0]))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			printCase(cmd.OutOrStdout(), c)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func printCase(w io.Writer, c ccb.Case) {
	status := c.AnalystStatus.Label()
	if c.AnalystStatus == ccb.StatusUnknown {
		status = c.RawStatus + " (?)"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  CCB:\t%s\n", c.ID)
	fmt.Fprintf(tw, "  Valor líquido:\t%s\n", c.NetAmount)
	fmt.Fprintf(tw, "  Parceiro:\t%s\n", c.Partner)
	fmt.Fprintf(tw, "  Criada em:\t%s\n", c.CreatedAtRaw)
	fmt.Fprintf(tw, "  Status assinatura:\t%s\n", c.ExternalStatus)
	fmt.Fprintf(tw, "  Status análise:\t%s\n", status)
	fmt.Fprintf(tw, "  Analista:\t%s\n", c.Owner)
	if c.Notes != "" {
		fmt.Fprintf(tw, "  Observações:\t%s\n", c.Notes)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
