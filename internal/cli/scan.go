package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScanCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan configured mailboxes for billing warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, flags)
		},
	}
	cmd.Flags().IntP("days", "d", 1, "Scan messages received in the last N days")
	cmd.Flags().Bool("dry-run", false, "Report matches without alerting or recording them")
	addOutputFlag(cmd)
	return cmd
}

func runScan(cmd *cobra.Command, flags *rootFlags) error {
	cfg, logger, err := flags.loadConfig()
	if err != nil {
		return err
	}
	days, _ := cmd.Flags().GetInt("days")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := a.service.ScanMailboxes(cmd.Context(), days, dryRun)

	return render(cmd.OutOrStdout(), outputFormat(cmd), summary, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Mailboxes: %d  Scanned: %d  Alerts: %d  Sent: %d\n\n",
			summary.Mailboxes, summary.TotalScanned, summary.TotalAlerts, summary.AlertsSent)
		if len(summary.Alerts) > 0 {
			fmt.Fprintf(w, "MAILBOX\tSERVICE\tAMOUNT\tSENT\tSUBJECT\n")
			for _, al := range summary.Alerts {
				amount := "-"
				if al.Amount != nil {
					amount = fmt.Sprintf("¥%.2f", *al.Amount)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", al.Mailbox, al.Service, amount, al.AlertSent, al.Subject)
			}
		}
		if len(summary.Errors) > 0 {
			names := make([]string, 0, len(summary.Errors))
			for name := range summary.Errors {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(w, "\nERRORS\n")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, summary.Errors[name])
			}
		}
	})
}
