// Package hyperdebug drives HyperDebug-family debug boards. The same firmware ships
// on several boards; a Flavor captures the per-board USB identity and the
// capabilities the board wires out.
package hyperdebug

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/cmsisdap"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

// Vendor-specific interface subclasses exposed by HyperDebug firmware.
const (
	subclassSPI  gousb.Class = 0x51
	subclassI2C  gousb.Class = 0x52
	subclassGPIO gousb.Class = 0x53
)

// Flavor describes one board built around HyperDebug firmware.
type Flavor interface {
	Name() string
	VID() uint16
	PID() uint16
	// Mask limits the capabilities detected from USB interfaces to the
	// ones the board actually routes to its target.
	Mask() transport.Capability
}

// StandardFlavor is the stand-alone HyperDebug board.
type StandardFlavor struct{}

func (StandardFlavor) Name() string               { return "hyperdebug" }
func (StandardFlavor) VID() uint16                { return usb.VendorGoogle }
func (StandardFlavor) PID() uint16                { return usb.ProductHyperdebug }
func (StandardFlavor) Mask() transport.Capability { return allCaps }

// CW310Flavor is HyperDebug mounted on a CW310 FPGA board.
type CW310Flavor struct{}

func (CW310Flavor) Name() string               { return "hyper310" }
func (CW310Flavor) VID() uint16                { return usb.VendorGoogle }
func (CW310Flavor) PID() uint16                { return usb.ProductHyperdebug }
func (CW310Flavor) Mask() transport.Capability { return allCaps }

// C2D2Flavor is the C2D2 debug cable, which has no I2C or JTAG routing.
type C2D2Flavor struct{}

func (C2D2Flavor) Name() string { return "c2d2" }
func (C2D2Flavor) VID() uint16  { return usb.VendorGoogle }
func (C2D2Flavor) PID() uint16  { return usb.ProductC2D2 }
func (C2D2Flavor) Mask() transport.Capability {
	return transport.CapUART | transport.CapSPI | transport.CapGPIO
}

// Ti50Flavor is HyperDebug wired to a Ti50 development board.
type Ti50Flavor struct{}

func (Ti50Flavor) Name() string { return "ti50" }
func (Ti50Flavor) VID() uint16  { return usb.VendorGoogle }
func (Ti50Flavor) PID() uint16  { return usb.ProductTi50 }
func (Ti50Flavor) Mask() transport.Capability {
	return transport.CapUART | transport.CapSPI | transport.CapGPIO | transport.CapI2C
}

const allCaps = transport.CapUART | transport.CapSPI | transport.CapGPIO | transport.CapI2C | transport.CapJTAG

// Hyperdebug is an opened HyperDebug board.
type Hyperdebug struct {
	flavor string
	dev    *usb.Device
	caps   transport.Capability
	// dapIntf is the CMSIS-DAP interface number, or -1.
	dapIntf int

	mu   sync.Mutex
	jtag *cmsisdap.Adapter
	// openDAP opens the CMSIS-DAP pipe; replaced in tests.
	openDAP func(number int) (cmsisdap.Conn, error)
}

// New opens the board selected by filter, using F's VID:PID where the filter
// leaves them unset.
func New[F Flavor](ctx context.Context, filter usb.Filter) (*Hyperdebug, error) {
	var f F
	filter = filter.WithDefaults(f.VID(), f.PID())
	dev, err := usb.Open(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("hyperdebug: %w", err)
	}
	intfs, err := dev.Interfaces()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("hyperdebug: %w", err)
	}
	return newHyperdebug(f, dev, intfs), nil
}

func newHyperdebug(f Flavor, dev *usb.Device, intfs []usb.InterfaceInfo) *Hyperdebug {
	h := &Hyperdebug{
		flavor:  f.Name(),
		dev:     dev,
		caps:    DetectCapabilities(intfs) & f.Mask(),
		dapIntf: -1,
	}
	if n, ok := dapInterface(intfs); ok && h.caps.Has(transport.CapJTAG) {
		h.dapIntf = n
	}
	if dev != nil {
		h.openDAP = func(n int) (cmsisdap.Conn, error) { return dev.OpenBulk(n) }
	}
	return h
}

// DetectCapabilities maps the board's USB interfaces onto capabilities.
func DetectCapabilities(intfs []usb.InterfaceInfo) transport.Capability {
	var caps transport.Capability
	for _, i := range intfs {
		switch {
		case i.Class == gousb.ClassData:
			caps |= transport.CapUART
		case i.Class == gousb.ClassVendorSpec && i.SubClass == subclassSPI:
			caps |= transport.CapSPI
		case i.Class == gousb.ClassVendorSpec && i.SubClass == subclassI2C:
			caps |= transport.CapI2C
		case i.Class == gousb.ClassVendorSpec && i.SubClass == subclassGPIO:
			caps |= transport.CapGPIO
		case isDAP(i):
			caps |= transport.CapJTAG
		}
	}
	return caps
}

// isDAP matches the CMSIS-DAP v2 bulk interface.
func isDAP(i usb.InterfaceInfo) bool {
	return i.Class == gousb.ClassVendorSpec && i.SubClass == 0 && i.Protocol == 0
}

func dapInterface(intfs []usb.InterfaceInfo) (int, bool) {
	for _, i := range intfs {
		if isDAP(i) {
			return i.Number, true
		}
	}
	return 0, false
}

// Flavor returns the interface name of the board flavor.
func (h *Hyperdebug) Flavor() string { return h.flavor }

// Serial returns the board's USB serial number.
func (h *Hyperdebug) Serial() string { return h.dev.Serial() }

func (h *Hyperdebug) Capabilities() transport.Capability { return h.caps }

// JTAG opens the CMSIS-DAP interface on first use and returns the adapter
// driving it.
func (h *Hyperdebug) JTAG() (transport.JTAG, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.jtag != nil {
		return h.jtag, nil
	}
	if h.dapIntf < 0 || h.openDAP == nil {
		return nil, transport.ErrUnsupported
	}
	conn, err := h.openDAP(h.dapIntf)
	if err != nil {
		return nil, fmt.Errorf("hyperdebug: jtag: %w", err)
	}
	a, err := cmsisdap.New(conn)
	if err != nil {
		return nil, fmt.Errorf("hyperdebug: jtag: %w", err)
	}
	h.jtag = a
	return a, nil
}

func (h *Hyperdebug) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	if h.jtag != nil {
		errs = append(errs, h.jtag.Close())
		h.jtag = nil
	}
	if h.dev != nil {
		errs = append(errs, h.dev.Close())
	}
	return errors.Join(errs...)
}

// DFU is a HyperDebug board in its ROM bootloader, reachable only for
// firmware updates.
type DFU struct {
	dev *usb.Device
}

// NewDFU opens a HyperDebug board in DFU mode.
func NewDFU(ctx context.Context, filter usb.Filter) (*DFU, error) {
	filter = filter.WithDefaults(usb.VendorSTMicro, usb.ProductSTM32DFU)
	dev, err := usb.Open(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("hyperdebug_dfu: %w", err)
	}
	return &DFU{dev: dev}, nil
}

// Serial returns the bootloader's USB serial number.
func (d *DFU) Serial() string { return d.dev.Serial() }

func (d *DFU) Capabilities() transport.Capability { return transport.CapNone }

func (d *DFU) Close() error { return d.dev.Close() }
