package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/susu3304/chipledger/internal/settlement"
)

func init() {
	rootCmd.AddCommand(balancesCmd)
	balancesCmd.Flags().Bool("json", false, "Print the full report as JSON")
}

var balancesCmd = &cobra.Command{
	Use:   "balances GROUP_ID",
	Short: "Show member balances and suggested payments for a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalances,
}

func runBalances(cmd *cobra.Command, args []string) error {
	groupID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", args[0], err)
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	_, log, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := settlement.NewEngine(st, log).ComputeBalances(ctx, groupID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tBALANCE")
	for _, m := range report.Members {
		fmt.Fprintf(tw, "%s\t%s\n", m.Name, m.Balance.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if !report.Outstanding() {
		fmt.Fprintln(out, "Everyone is settled up.")
		return nil
	}
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tAMOUNT")
	for _, d := range report.Debts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.FromName, d.ToName, d.Amount.StringFixed(2))
	}
	return tw.Flush()
}
