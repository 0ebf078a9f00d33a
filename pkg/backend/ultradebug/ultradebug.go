// Package ultradebug drives the FTDI-based UltraDebug board.
package ultradebug

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

// Ultradebug is an opened UltraDebug board.
type Ultradebug struct {
	dev *usb.Device
}

// Filter fills the UltraDebug VID:PID into any part of filter left unset.
func Filter(filter usb.Filter) usb.Filter {
	return filter.WithDefaults(usb.VendorGoogle, usb.ProductUltradebug)
}

// New opens the UltraDebug board selected by filter.
func New(ctx context.Context, filter usb.Filter) (*Ultradebug, error) {
	dev, err := usb.Open(ctx, Filter(filter))
	if err != nil {
		return nil, fmt.Errorf("ultradebug: %w", err)
	}
	return &Ultradebug{dev: dev}, nil
}

// Serial returns the board's USB serial number.
func (u *Ultradebug) Serial() string { return u.dev.Serial() }

func (u *Ultradebug) Capabilities() transport.Capability {
	return transport.CapUART | transport.CapSPI | transport.CapGPIO
}

func (u *Ultradebug) Close() error { return u.dev.Close() }
