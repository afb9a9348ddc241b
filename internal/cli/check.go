package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/spf13/cobra"
)

func newCheckCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check provider balances once",
		Long: `Fetch the balance of every enabled project (or one named project), compare
it with its threshold and send a webhook alert for those below it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, flags)
		},
	}
	cmd.Flags().StringP("project", "p", "", "Check only this project (even if disabled)")
	cmd.Flags().Bool("dry-run", false, "Evaluate without sending alerts")
	addOutputFlag(cmd)
	return cmd
}

func runCheck(cmd *cobra.Command, flags *rootFlags) error {
	cfg, logger, err := flags.loadConfig()
	if err != nil {
		return err
	}
	project, _ := cmd.Flags().GetString("project")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.service.TriggerRefresh(cmd.Context(), project, dryRun)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormat(cmd), results, func(w *tabwriter.Writer) {
		if len(results) == 0 {
			fmt.Fprintln(w, "No enabled projects configured.")
			return
		}
		fmt.Fprintf(w, "PROJECT\tPROVIDER\tTYPE\tBALANCE\tTHRESHOLD\tSTATUS\n")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
				r.Project, r.Provider, r.Kind, balanceText(r), r.Threshold, checkStatus(r))
		}
	})
}

func balanceText(r model.ProjectCheckResult) string {
	if !r.Success {
		return "-"
	}
	if r.Currency != "" {
		return fmt.Sprintf("%.2f %s", r.Balance, r.Currency)
	}
	return fmt.Sprintf("%.2f", r.Balance)
}

func checkStatus(r model.ProjectCheckResult) string {
	switch {
	case !r.Success:
		return "error: " + r.Error
	case r.NeedAlarm && r.AlarmSent:
		return "LOW (alert sent)"
	case r.NeedAlarm:
		return "LOW"
	default:
		return "ok"
	}
}
