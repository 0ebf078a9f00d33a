package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List supported interface names and their default profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := backend.DefaultTable()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INTERFACE\tDEFAULT PROFILE")
			for _, k := range backend.Kinds() {
				name := string(k)
				if k == backend.KindNone {
					name = `""`
				}
				profile := table[k].DefaultConf
				if profile == "" {
					profile = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\n", name, profile)
			}
			return tw.Flush()
		},
	}
}
