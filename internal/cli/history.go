package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/spf13/cobra"
)

var errHistoryDisabled = errors.New("history storage is disabled; set storage.enabled: true")

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded balance history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBalanceHistory(cmd, flags)
		},
	}
	addHistoryFlags(cmd, 7)
	cmd.Flags().String("provider", "", "Filter by provider")

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recorded alert dispatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlertHistory(cmd, flags)
		},
	}
	addHistoryFlags(alertsCmd, 7)
	alertsCmd.Flags().String("type", "", "Filter by alert type")

	trendCmd := &cobra.Command{
		Use:   "trend PROJECT_ID",
		Short: "Summarise the balance trend of one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrend(cmd, flags, args[0])
		},
	}
	trendCmd.Flags().Int("days", 30, "Look back this many days")
	addOutputFlag(trendCmd)

	cmd.AddCommand(alertsCmd, trendCmd)
	return cmd
}

func addHistoryFlags(cmd *cobra.Command, days int) {
	cmd.Flags().String("project-id", "", "Filter by project id")
	cmd.Flags().Int("days", days, "Look back this many days (0 for all)")
	cmd.Flags().Int("limit", 100, "Maximum number of records")
	addOutputFlag(cmd)
}

func historyFilter(cmd *cobra.Command) model.HistoryFilter {
	projectID, _ := cmd.Flags().GetString("project-id")
	days, _ := cmd.Flags().GetInt("days")
	limit, _ := cmd.Flags().GetInt("limit")
	return model.HistoryFilter{
		ProjectID: projectID,
		Since:     model.DaysAgo(time.Now(), days),
		Limit:     limit,
	}
}

// openHistory builds the app and fails unless history storage is enabled.
func openHistory(flags *rootFlags) (*app, error) {
	cfg, logger, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, errHistoryDisabled
	}
	return newApp(cfg, logger)
}

func runBalanceHistory(cmd *cobra.Command, flags *rootFlags) error {
	a, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := historyFilter(cmd)
	filter.Provider, _ = cmd.Flags().GetString("provider")
	records, err := a.history.BalanceHistory(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query balance history: %w", err)
	}

	return render(cmd.OutOrStdout(), outputFormat(cmd), records, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "TIME\tPROJECT\tPROJECT ID\tPROVIDER\tBALANCE\tTHRESHOLD\tLOW\n")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%t\n",
				r.Timestamp.Local().Format(time.DateTime), r.ProjectName, r.ProjectID,
				r.Provider, r.Balance, r.Threshold, r.NeedAlarm)
		}
	})
}

func runAlertHistory(cmd *cobra.Command, flags *rootFlags) error {
	a, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := historyFilter(cmd)
	filter.AlertType, _ = cmd.Flags().GetString("type")
	records, err := a.history.AlertHistory(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query alert history: %w", err)
	}

	return render(cmd.OutOrStdout(), outputFormat(cmd), records, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "TIME\tPROJECT\tTYPE\tSTATUS\tMESSAGE\n")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Timestamp.Local().Format(time.DateTime), r.ProjectName, r.AlertType, r.Status, r.Message)
		}
	})
}

func runTrend(cmd *cobra.Command, flags *rootFlags, projectID string) error {
	a, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	days, _ := cmd.Flags().GetInt("days")
	trend, err := a.history.BalanceTrend(cmd.Context(), projectID, days)
	if err != nil {
		return fmt.Errorf("query balance trend: %w", err)
	}

	return render(cmd.OutOrStdout(), outputFormat(cmd), trend, func(w *tabwriter.Writer) {
		if trend.DataPoints == 0 {
			fmt.Fprintf(w, "No balance records for %s in the last %d days.\n", projectID, days)
			return
		}
		fmt.Fprintf(w, "Project:\t%s (%s)\n", trend.ProjectName, trend.ProjectID)
		fmt.Fprintf(w, "Samples:\t%d over %d days\n", trend.DataPoints, trend.Days)
		fmt.Fprintf(w, "Current:\t%.2f\n", trend.Current)
		fmt.Fprintf(w, "Min / Avg / Max:\t%.2f / %.2f / %.2f\n", trend.Min, trend.Avg, trend.Max)
		fmt.Fprintf(w, "Change:\t%+.2f (%+.1f%%)\n", trend.Change, trend.ChangePercent)
	})
}
