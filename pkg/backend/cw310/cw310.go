// Package cw310 drives the ChipWhisperer CW310 FPGA board through its SAM3X
// control microcontroller.
package cw310

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

// ErrUARTCount is returned when --cw310-uarts names neither zero nor two
// ports.
var ErrUARTCount = errors.New("cw310: expected two UART paths")

// Options are the CW310-specific knobs.
type Options struct {
	// UARTs overrides the serial ports used for the console and debug UARTs.
	// Empty means auto-detect from the board's USB serial number.
	UARTs string

	// OpenOCDAdapterConfig is the OpenOCD interface script for the JTAG
	// adapter wired to the FPGA's TAP header.
	OpenOCDAdapterConfig string
}

// AddFlags registers the CW310 flag group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.UARTs, "cw310-uarts", "", "comma-separated serial ports of the CW310 UARTs")
	fs.StringVar(&o.OpenOCDAdapterConfig, "openocd-adapter-config", "", "OpenOCD adapter config for the CW310 JTAG header")
}

// AdapterConfig returns the OpenOCD adapter config path after checking that
// it names a regular file. Empty means none was given.
func (o Options) AdapterConfig() (string, error) {
	if o.OpenOCDAdapterConfig == "" {
		return "", nil
	}
	fi, err := os.Stat(o.OpenOCDAdapterConfig)
	if err != nil {
		return "", fmt.Errorf("cw310: openocd adapter config: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("cw310: openocd adapter config %s: not a regular file", o.OpenOCDAdapterConfig)
	}
	return o.OpenOCDAdapterConfig, nil
}

// Ports returns the explicit UART ports, or nil for auto-detection.
func (o Options) Ports() ([]string, error) {
	if o.UARTs == "" {
		return nil, nil
	}
	ports := strings.Split(o.UARTs, ",")
	if len(ports) != 2 {
		return nil, fmt.Errorf("%w, got %d", ErrUARTCount, len(ports))
	}
	for i := range ports {
		ports[i] = strings.TrimSpace(ports[i])
	}
	return ports, nil
}

// CW310 is an opened CW310 board.
type CW310 struct {
	dev           *usb.Device
	uarts         []string
	adapterConfig string
}

// New opens the board selected by filter.
func New(ctx context.Context, filter usb.Filter, opts Options) (*CW310, error) {
	ports, err := opts.Ports()
	if err != nil {
		return nil, err
	}
	adapterConfig, err := opts.AdapterConfig()
	if err != nil {
		return nil, err
	}
	filter = filter.WithDefaults(usb.VendorNewAE, usb.ProductCW310)
	dev, err := usb.Open(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("cw310: %w", err)
	}
	return &CW310{dev: dev, uarts: ports, adapterConfig: adapterConfig}, nil
}

// UARTPorts returns the configured UART ports; nil means auto-detect.
func (c *CW310) UARTPorts() []string { return append([]string(nil), c.uarts...) }

// AdapterConfig returns the OpenOCD adapter config, or "" if none was given.
func (c *CW310) AdapterConfig() string { return c.adapterConfig }

func (c *CW310) Capabilities() transport.Capability {
	return transport.CapUART | transport.CapSPI | transport.CapGPIO
}

func (c *CW310) Close() error { return c.dev.Close() }
