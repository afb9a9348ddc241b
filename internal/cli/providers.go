package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/ogulcanaydogan/credit-guardian/pkg/providers"
	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List supported balance providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := providers.DefaultFactory().Names()
			return render(cmd.OutOrStdout(), outputFormat(cmd), names, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "PROVIDER\n")
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}
