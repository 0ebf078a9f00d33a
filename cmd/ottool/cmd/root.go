package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend"
)

// Environment variables consulted for flags the user did not set.
const (
	envInterface = "OTTOOL_INTERFACE"
	envConf      = "OTTOOL_CONF"
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	opts      backend.Options
	verbose   bool
	logFormat string
	envFile   string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "ottool",
		Short: "Debug transport resolver for OpenTitan-style targets",
		Long: `Select a debug interface (USB adapter, emulator or session proxy), layer
configuration files onto it and report the resulting transport.

Examples:
  ottool interfaces                                 # List attached debug adapters
  ottool backends                                   # List supported interface names
  ottool resolve --interface cw310                  # Apply the built-in CW310 profile
  ottool resolve --interface hyper310 --conf a.json # Use a.json instead of the profile`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&c.envFile, "env-file", ".ottool.env", "file of KEY=VALUE defaults")
	c.opts.AddFlags(pf)

	root.AddCommand(
		newInterfacesCmd(),
		newBackendsCmd(),
		newResolveCmd(c),
	)
	return root
}

// Execute runs the root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	var format logging.Format
	switch c.logFormat {
	case "text":
		format = logging.FormatText
	case "json":
		format = logging.FormatJSON
	default:
		return fmt.Errorf("invalid --log-format %q", c.logFormat)
	}
	logging.SetFormat(format, cmd.ErrOrStderr())
	if c.verbose {
		logging.SetLevel(slog.LevelDebug)
	} else {
		logging.SetLevel(slog.LevelWarn)
	}

	if err := loadDotEnv(c.envFile); err != nil {
		return fmt.Errorf("load %s: %w", c.envFile, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("interface") {
		if v, ok := os.LookupEnv(envInterface); ok {
			c.opts.Interface = v
		}
	}
	if !flags.Changed("conf") {
		if v := os.Getenv(envConf); v != "" {
			c.opts.Conf = splitList(v)
		}
	}
	logging.Debug(logging.ComponentCLI, "options", "interface", c.opts.Interface, "conf", c.opts.Conf)
	return nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// splitList splits an OS path list, dropping empty elements.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, string(os.PathListSeparator)) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
