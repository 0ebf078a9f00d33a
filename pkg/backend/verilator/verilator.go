// Package verilator describes a Verilator simulation of the chip. The
// simulation exposes a TAP which is served by an in-process SimJTAG until the
// simulator's remote-bitbang port is attached.
package verilator

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

// ErrMissingBinary is returned when no simulator binary is configured.
var ErrMissingBinary = errors.New("verilator: simulator binary not specified")

// IDCode is the JTAG IDCODE reported by the simulated chip.
const IDCode = 0x10002cdf

// Options are the Verilator-specific knobs.
type Options struct {
	Binary string
	ROM    string
	Flash  []string
	OTP    string
}

// AddFlags registers the Verilator flag group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Binary, "verilator-bin", "", "path to the Verilator simulator binary")
	fs.StringVar(&o.ROM, "verilator-rom", "", "ROM image loaded at start")
	fs.StringSliceVar(&o.Flash, "verilator-flash", nil, "flash images loaded at start")
	fs.StringVar(&o.OTP, "verilator-otp", "", "OTP image loaded at start")
}

// Verilator is a configured, not yet running, simulation.
type Verilator struct {
	opts Options
	tap  *transport.SimJTAG
}

// New checks that every configured image exists and returns the backend.
func New(opts Options) (*Verilator, error) {
	if opts.Binary == "" {
		return nil, ErrMissingBinary
	}
	files := append([]string{opts.Binary, opts.ROM, opts.OTP}, opts.Flash...)
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("verilator: %w", err)
		}
	}

	tap := transport.NewSimJTAG(transport.AdapterInfo{
		Name:         "Verilator TAP",
		Vendor:       "lowRISC",
		Model:        "sim",
		MinFrequency: 1,
		MaxFrequency: 1_000_000,
		SupportsTRST: true,
	}, transport.WithIDCode(IDCode))
	return &Verilator{opts: opts, tap: tap}, nil
}

// Args returns the simulator command line.
func (v *Verilator) Args() []string {
	args := []string{v.opts.Binary}
	if v.opts.ROM != "" {
		args = append(args, "--meminit=rom,"+v.opts.ROM)
	}
	for _, f := range v.opts.Flash {
		args = append(args, "--meminit=flash,"+f)
	}
	if v.opts.OTP != "" {
		args = append(args, "--meminit=otp,"+v.opts.OTP)
	}
	return args
}

func (v *Verilator) Capabilities() transport.Capability {
	return transport.CapUART | transport.CapGPIO | transport.CapJTAG | transport.CapEmulator
}

// JTAG returns the simulated TAP.
func (v *Verilator) JTAG() (transport.JTAG, error) { return v.tap, nil }

func (v *Verilator) Close() error { return nil }
