// Package usb locates debug adapters on the host USB bus.
package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
)

var (
	// ErrNotFound is returned when no attached device matches a Filter.
	ErrNotFound = errors.New("usb: no matching device")

	// ErrAmbiguous is returned when more than one device matches and no
	// serial number was given to disambiguate.
	ErrAmbiguous = errors.New("usb: more than one matching device")
)

// Filter selects a device by vendor/product ID and optional serial number.
// Nil IDs match any value.
type Filter struct {
	VID    *uint16
	PID    *uint16
	Serial string
}

// WithDefaults returns a copy of f with missing IDs replaced by vid and pid.
func (f Filter) WithDefaults(vid, pid uint16) Filter {
	out := f
	if out.VID == nil {
		out.VID = &vid
	}
	if out.PID == nil {
		out.PID = &pid
	}
	return out
}

// Match reports whether desc satisfies the VID/PID part of the filter.
func (f Filter) Match(desc *gousb.DeviceDesc) bool {
	if f.VID != nil && uint16(desc.Vendor) != *f.VID {
		return false
	}
	if f.PID != nil && uint16(desc.Product) != *f.PID {
		return false
	}
	return true
}

func (f Filter) String() string {
	id := func(p *uint16) string {
		if p == nil {
			return "*"
		}
		return fmt.Sprintf("%04x", *p)
	}
	s := id(f.VID) + ":" + id(f.PID)
	if f.Serial != "" {
		s += " serial=" + f.Serial
	}
	return s
}

// InterfaceInfo summarises one interface of the active configuration.
type InterfaceInfo struct {
	Number   int
	Class    gousb.Class
	SubClass gousb.Class
	Protocol gousb.Protocol
}

// Device is an opened USB device together with the context that owns it.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	serial string
}

// Open finds exactly one attached device matching f and opens it.
func Open(ctx context.Context, f Filter) (*Device, error) {
	usbCtx := gousb.NewContext()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		return f.Match(desc)
	})
	if err != nil && len(devs) == 0 {
		usbCtx.Close()
		return nil, fmt.Errorf("usb: open %s: %w", f, err)
	}
	if err := ctx.Err(); err != nil {
		closeAll(devs)
		usbCtx.Close()
		return nil, err
	}

	reads := make([]serialRead, len(devs))
	for i, d := range devs {
		reads[i].serial, reads[i].err = d.SerialNumber()
		if reads[i].err != nil {
			logging.Debug(logging.ComponentUSB, "cannot read serial number",
				"bus", d.Desc.Bus, "address", d.Desc.Address, "err", reads[i].err)
		}
	}
	selected, readErr := selectBySerial(reads, f.Serial)

	var matches []*gousb.Device
	var serials []string
	keep := make(map[int]bool, len(selected))
	for _, i := range selected {
		keep[i] = true
		matches = append(matches, devs[i])
		serials = append(serials, reads[i].serial)
	}
	for i, d := range devs {
		if !keep[i] {
			d.Close()
		}
	}

	switch len(matches) {
	case 0:
		usbCtx.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w (%s): %w", ErrNotFound, f, readErr)
		}
		return nil, fmt.Errorf("%w (%s)", ErrNotFound, f)
	case 1:
	default:
		closeAll(matches)
		usbCtx.Close()
		return nil, fmt.Errorf("%w (%s, serials %v)", ErrAmbiguous, f, serials)
	}

	dev := matches[0]
	if err := dev.SetAutoDetach(true); err != nil {
		logging.Debug(logging.ComponentUSB, "auto-detach unavailable", "filter", f.String(), "err", err)
	}
	logging.Debug(logging.ComponentUSB, "opened device", "filter", f.String(), "serial", serials[0])

	return &Device{ctx: usbCtx, dev: dev, serial: serials[0]}, nil
}

// serialRead is a candidate's serial number or the error reading it.
type serialRead struct {
	serial string
	err    error
}

// selectBySerial returns the indexes of reads whose serial equals want; an
// empty want selects every candidate. When want selects nothing, the errors
// of unreadable candidates are returned since any of them may be the device
// asked for.
func selectBySerial(reads []serialRead, want string) ([]int, error) {
	var selected []int
	var errs []error
	for i, r := range reads {
		if want == "" {
			selected = append(selected, i)
			continue
		}
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if r.serial == want {
			selected = append(selected, i)
		}
	}
	if len(selected) > 0 {
		return selected, nil
	}
	return nil, errors.Join(errs...)
}

func closeAll(devs []*gousb.Device) {
	for _, d := range devs {
		d.Close()
	}
}

// VID returns the device's vendor ID.
func (d *Device) VID() uint16 { return uint16(d.dev.Desc.Vendor) }

// PID returns the device's product ID.
func (d *Device) PID() uint16 { return uint16(d.dev.Desc.Product) }

// Serial returns the serial number read at open time.
func (d *Device) Serial() string { return d.serial }

// Interfaces lists the interfaces of the active configuration.
func (d *Device) Interfaces() ([]InterfaceInfo, error) {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("usb: active config: %w", err)
	}
	cfg, ok := d.dev.Desc.Configs[num]
	if !ok {
		return nil, fmt.Errorf("usb: config %d not described", num)
	}
	var out []InterfaceInfo
	for _, intf := range cfg.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		out = append(out, InterfaceInfo{
			Number:   intf.Number,
			Class:    alt.Class,
			SubClass: alt.SubClass,
			Protocol: alt.Protocol,
		})
	}
	return out, nil
}

// Close releases the device and its context.
func (d *Device) Close() error {
	if d.dev != nil {
		d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return nil
}
