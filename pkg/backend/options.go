package backend

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/cw310"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/proxy"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/ti50emulator"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/verilator"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

// Options selects and configures a backend. Create treats it as read-only.
type Options struct {
	// Interface names the backend; empty selects the stub transport unless
	// a configuration file names one.
	Interface string

	USBVID    *uint16
	USBPID    *uint16
	USBSerial string

	// Conf lists user configuration files, applied in order.
	Conf []string

	CW310        cw310.Options
	Verilator    verilator.Options
	Proxy        proxy.Options
	Ti50Emulator ti50emulator.Options
}

// USBFilter returns the shared USB selection knobs as a filter.
func (o *Options) USBFilter() usb.Filter {
	return usb.Filter{VID: o.USBVID, PID: o.USBPID, Serial: o.USBSerial}
}

// AddFlags registers the shared flags and every backend's flag group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Interface, "interface", "", "name of the debug interface")
	fs.Var(&u16Value{&o.USBVID}, "usb-vid", "USB vendor ID of the interface")
	fs.Var(&u16Value{&o.USBPID}, "usb-pid", "USB product ID of the interface")
	fs.StringVar(&o.USBSerial, "usb-serial", "", "USB serial number of the interface")
	fs.StringArrayVar(&o.Conf, "conf", nil, "configuration file (repeatable, applied in order)")

	o.CW310.AddFlags(fs)
	o.Verilator.AddFlags(fs)
	o.Proxy.AddFlags(fs)
	o.Ti50Emulator.AddFlags(fs)
}

// u16Value is an optional 16-bit flag accepting decimal, 0x hex, 0o octal or
// 0b binary.
type u16Value struct {
	p **uint16
}

func (v *u16Value) String() string {
	if v.p == nil || *v.p == nil {
		return ""
	}
	return fmt.Sprintf("0x%04x", **v.p)
}

func (v *u16Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid 16-bit value %q", s)
	}
	u := uint16(n)
	*v.p = &u
	return nil
}

func (v *u16Value) Type() string { return "uint16" }
