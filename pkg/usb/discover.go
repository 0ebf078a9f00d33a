package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Known USB identifiers of supported debug adapters.
const (
	VendorGoogle      = 0x18d1
	VendorNewAE       = 0x2b3e
	VendorSTMicro     = 0x0483
	ProductHyperdebug = 0x520e
	ProductUltradebug = 0x0304
	ProductC2D2       = 0x5002
	ProductTi50       = 0x504a
	ProductCW310      = 0xc310
	ProductSTM32DFU   = 0xdf11
)

// KnownDevice maps a VID:PID pair to the interface name that drives it.
type KnownDevice struct {
	VendorID    uint16
	ProductID   uint16
	Interface   string
	Description string
}

// Known lists the adapters recognised by Discover. Several interface names may
// share one VID:PID; the first entry is the one reported.
var Known = []KnownDevice{
	{VendorGoogle, ProductHyperdebug, "hyperdebug", "HyperDebug"},
	{VendorGoogle, ProductUltradebug, "ultradebug", "UltraDebug"},
	{VendorGoogle, ProductC2D2, "c2d2", "C2D2"},
	{VendorGoogle, ProductTi50, "ti50", "HyperDebug (Ti50)"},
	{VendorNewAE, ProductCW310, "cw310", "ChipWhisperer CW310"},
	{VendorSTMicro, ProductSTM32DFU, "hyperdebug_dfu", "HyperDebug (DFU mode)"},
}

// Classify returns the known device entry for vid:pid.
func Classify(vid, pid uint16) (KnownDevice, bool) {
	for _, k := range Known {
		if k.VendorID == vid && k.ProductID == pid {
			return k, true
		}
	}
	return KnownDevice{}, false
}

// Info describes an attached adapter found by Discover.
type Info struct {
	KnownDevice
	Bus     int
	Address int
}

// Label returns a user-friendly description for the adapter.
func (i Info) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// Discover enumerates attached devices whose VID:PID is in Known. Devices are
// not opened; access errors on individual devices are ignored.
func Discover(ctx context.Context) ([]Info, error) {
	var results []Info
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if k, ok := Classify(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, Info{KnownDevice: k, Bus: desc.Bus, Address: desc.Address})
		}
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, fmt.Errorf("usb: discover: %w", err)
	}
	return results, ctx.Err()
}
