// Package transport defines the capability surface every debug backend
// exposes, independent of whether it talks to a USB adapter, a network proxy or
// a simulator.
package transport

import (
	"errors"
	"strings"
)

// Capability is a bit set of the features a backend provides.
type Capability uint32

const (
	CapUART Capability = 1 << iota
	CapSPI
	CapGPIO
	CapI2C
	CapJTAG
	CapProxy
	CapEmulator

	CapNone Capability = 0
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapUART, "uart"},
	{CapSPI, "spi"},
	{CapGPIO, "gpio"},
	{CapI2C, "i2c"},
	{CapJTAG, "jtag"},
	{CapProxy, "proxy"},
	{CapEmulator, "emulator"},
}

// Has reports whether every bit in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// String lists the capability names separated by '|', or "none".
func (c Capability) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c&n.cap != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseCapability returns the capability with the given lower-case name.
func ParseCapability(name string) (Capability, bool) {
	for _, n := range capabilityNames {
		if n.name == name {
			return n.cap, true
		}
	}
	return CapNone, false
}

// Transport is implemented by every backend instance.
type Transport interface {
	Capabilities() Capability
	Close() error
}

// JTAGProvider is implemented by transports advertising CapJTAG.
type JTAGProvider interface {
	JTAG() (JTAG, error)
}

var (
	// ErrNotImplemented lets backends signal that a requested capability is
	// not available without relying on fmt.Errorf each time.
	ErrNotImplemented = errors.New("transport: not implemented")

	// ErrUnsupported is returned when a capability is requested from a
	// transport that does not advertise it.
	ErrUnsupported = errors.New("transport: capability not supported")
)

// Empty is the transport used when no interface is selected. It has no
// capabilities and closing it is a no-op.
type Empty struct{}

// NewEmpty returns the stub transport.
func NewEmpty() (Transport, error) {
	return Empty{}, nil
}

func (Empty) Capabilities() Capability { return CapNone }
func (Empty) Close() error             { return nil }

// OpenJTAG returns the JTAG capability of t, or ErrUnsupported.
func OpenJTAG(t Transport) (JTAG, error) {
	if !t.Capabilities().Has(CapJTAG) {
		return nil, ErrUnsupported
	}
	p, ok := t.(JTAGProvider)
	if !ok {
		return nil, ErrNotImplemented
	}
	return p.JTAG()
}
