package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/internal/config"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
	"github.com/spf13/cobra"
)

func newSubscriptionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Check subscription renewals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubscriptions(cmd, flags)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Evaluate without sending reminders")
	addOutputFlag(cmd)

	renew := &cobra.Command{
		Use:   "renew NAME",
		Short: "Record that a subscription was renewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenew(cmd, flags, args[0])
		},
	}
	renew.Flags().String("date", "", "Renewal date YYYY-MM-DD (default: today)")

	clearCmd := &cobra.Command{
		Use:   "clear NAME",
		Short: "Forget the recorded renewal of a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearRenewal(cmd, flags, args[0])
		},
	}

	cmd.AddCommand(renew, clearCmd)
	return cmd
}

func runSubscriptions(cmd *cobra.Command, flags *rootFlags) error {
	cfg, logger, err := flags.loadConfig()
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.service.RefreshSubscriptions(cmd.Context(), dryRun)

	return render(cmd.OutOrStdout(), outputFormat(cmd), results, func(w *tabwriter.Writer) {
		if len(results) == 0 {
			fmt.Fprintln(w, "No enabled subscriptions configured.")
			return
		}
		fmt.Fprintf(w, "NAME\tCYCLE\tNEXT RENEWAL\tDAYS\tAMOUNT\tSTATUS\n")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f %s\t%s\n",
				r.Name, r.CycleType.Describe(r.RenewalDay), r.NextRenewalDate,
				r.DaysUntilRenewal, r.Amount, r.Currency, renewalStatus(r))
		}
	})
}

func renewalStatus(r model.SubscriptionCheckResult) string {
	switch {
	case r.AlreadyRenewed:
		return "renewed " + r.LastRenewedDate
	case r.NeedAlert && r.AlertSent:
		return "DUE (reminder sent)"
	case r.NeedAlert:
		return "DUE"
	default:
		return "ok"
	}
}

func runRenew(cmd *cobra.Command, flags *rootFlags, name string) error {
	on := subscription.Date(time.Now())
	if s, _ := cmd.Flags().GetString("date"); s != "" {
		t, err := subscription.ParseDate(s)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		on = t
	}
	return updateRenewal(cmd, flags, name, func(sub *model.SubscriptionConfig) {
		subscription.MarkRenewed(sub, on)
	})
}

func runClearRenewal(cmd *cobra.Command, flags *rootFlags, name string) error {
	return updateRenewal(cmd, flags, name, subscription.ClearRenewed)
}

func updateRenewal(cmd *cobra.Command, flags *rootFlags, name string, update func(*model.SubscriptionConfig)) error {
	cfg, _, err := flags.loadConfig()
	if err != nil {
		return err
	}
	if cfg.File() == "" {
		return errors.New("no config file in use; pass --config")
	}
	i, err := subscription.Find(cfg.Subscriptions, name)
	if err != nil {
		return err
	}
	sub := cfg.Subscriptions[i]
	update(&sub)

	if err := config.SetLastRenewed(cfg.File(), name, sub.LastRenewedDate); err != nil {
		return err
	}
	if sub.LastRenewedDate == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared renewal of %s\n", name)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s renewed on %s\n", name, sub.LastRenewedDate)
	}
	return nil
}
