package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/app"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/config"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

type pinSummary struct {
	Name     string           `json:"name"`
	Physical string           `json:"physical"`
	Mode     *config.PinMode  `json:"mode,omitempty"`
	Level    *bool            `json:"level,omitempty"`
	PullMode *config.PullMode `json:"pull_mode,omitempty"`
}

type uartSummary struct {
	Name     string  `json:"name"`
	Physical string  `json:"physical"`
	BaudRate *uint32 `json:"baudrate,omitempty"`
}

type summary struct {
	Interface    string        `json:"interface"`
	Capabilities string        `json:"capabilities"`
	Sources      []string      `json:"sources"`
	Pins         []pinSummary  `json:"pins"`
	Uarts        []uartSummary `json:"uarts"`
	Strappings   []string      `json:"strappings"`
	IDCode       string        `json:"idcode,omitempty"`
}

func newResolveCmd(c *cli) *cobra.Command {
	var asJSON, readID bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Create the selected transport and print its configuration",
		Long: `Resolve --interface and --conf into a transport, print the interface,
its capabilities, the configuration files applied and the resolved pins
and UARTs, then close the transport.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := backend.Create(cmd.Context(), &c.opts)
			if err != nil {
				return err
			}
			defer w.Close()

			s, err := summarize(w)
			if err != nil {
				return err
			}
			if readID {
				j, err := transport.OpenJTAG(w.Backend())
				if err != nil {
					return fmt.Errorf("open jtag: %w", err)
				}
				id, err := transport.ReadIDCode(j)
				if err != nil {
					return err
				}
				s.IDCode = id.String()
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&readID, "idcode", false, "read the target IDCODE over JTAG")
	return cmd
}

func summarize(w *app.TransportWrapper) (*summary, error) {
	s := &summary{
		Interface:    w.Interface(),
		Capabilities: w.Capabilities().String(),
		Sources:      w.Sources(),
		Pins:         []pinSummary{},
		Uarts:        []uartSummary{},
		Strappings:   w.StrappingNames(),
	}
	if s.Sources == nil {
		s.Sources = []string{}
	}
	if s.Strappings == nil {
		s.Strappings = []string{}
	}
	for _, name := range w.PinNames() {
		physical, p, err := w.Pin(name)
		if err != nil {
			return nil, err
		}
		s.Pins = append(s.Pins, pinSummary{
			Name: name, Physical: physical,
			Mode: p.Mode, Level: p.Level, PullMode: p.PullMode,
		})
	}
	for _, name := range w.UartNames() {
		physical, u, err := w.Uart(name)
		if err != nil {
			return nil, err
		}
		s.Uarts = append(s.Uarts, uartSummary{Name: name, Physical: physical, BaudRate: u.BaudRate})
	}
	return s, nil
}

func printSummary(out io.Writer, s *summary) {
	iface := s.Interface
	if iface == "" {
		iface = "(none)"
	}
	fmt.Fprintf(out, "Interface:    %s\n", iface)
	fmt.Fprintf(out, "Capabilities: %s\n", s.Capabilities)

	if len(s.Sources) > 0 {
		fmt.Fprintln(out, "Configuration:")
		for _, src := range s.Sources {
			fmt.Fprintf(out, "  %s\n", src)
		}
	}
	if len(s.Pins) > 0 {
		fmt.Fprintln(out, "Pins:")
		for _, p := range s.Pins {
			line := fmt.Sprintf("  %-16s -> %s", p.Name, p.Physical)
			if p.Mode != nil {
				line += " " + string(*p.Mode)
			}
			if p.PullMode != nil {
				line += " " + string(*p.PullMode)
			}
			if p.Level != nil {
				line += fmt.Sprintf(" level=%t", *p.Level)
			}
			fmt.Fprintln(out, line)
		}
	}
	if len(s.Uarts) > 0 {
		fmt.Fprintln(out, "UARTs:")
		for _, u := range s.Uarts {
			line := fmt.Sprintf("  %-16s -> %s", u.Name, u.Physical)
			if u.BaudRate != nil {
				line += fmt.Sprintf(" %d baud", *u.BaudRate)
			}
			fmt.Fprintln(out, line)
		}
	}
	if len(s.Strappings) > 0 {
		fmt.Fprintf(out, "Strappings:   %v\n", s.Strappings)
	}
	if s.IDCode != "" {
		fmt.Fprintf(out, "IDCODE:       %s\n", s.IDCode)
	}
}
