package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

func newInterfacesCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List attached debug interfaces",
		Long: `Scan the host USB buses for known debug adapters (HyperDebug, UltraDebug,
C2D2, CW310, ...) and print the interface name that drives each one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			infos, err := usb.Discover(ctx)
			if err != nil {
				return fmt.Errorf("discover interfaces: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No interfaces found.")
				return nil
			}
			fmt.Fprintln(out, "Detected debug interfaces:")
			for _, i := range infos {
				fmt.Fprintf(out, "  - %s [--interface %s] (VID:PID %04X:%04X, bus %d addr %d)\n",
					i.Label(), i.Interface, i.VendorID, i.ProductID, i.Bus, i.Address)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "discovery timeout")
	return cmd
}
