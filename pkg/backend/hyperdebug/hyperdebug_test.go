package hyperdebug

import (
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/cmsisdap"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/usb"
)

func TestDetectCapabilities(t *testing.T) {
	intfs := []usb.InterfaceInfo{
		{Number: 0, Class: gousb.ClassVendorSpec, SubClass: 0x50},
		{Number: 1, Class: gousb.ClassComm},
		{Number: 2, Class: gousb.ClassData},
		{Number: 3, Class: gousb.ClassVendorSpec, SubClass: subclassSPI},
		{Number: 4, Class: gousb.ClassVendorSpec, SubClass: subclassI2C},
		{Number: 5, Class: gousb.ClassVendorSpec, SubClass: subclassGPIO},
		{Number: 6, Class: gousb.ClassVendorSpec},
	}
	got := DetectCapabilities(intfs)
	assert.Equal(t, transport.CapUART|transport.CapSPI|transport.CapI2C|transport.CapGPIO|transport.CapJTAG, got)

	assert.Equal(t, transport.CapNone, DetectCapabilities(nil))
}

func TestFlavorIdentity(t *testing.T) {
	tests := []struct {
		flavor Flavor
		name   string
		pid    uint16
		jtag   bool
	}{
		{StandardFlavor{}, "hyperdebug", usb.ProductHyperdebug, true},
		{CW310Flavor{}, "hyper310", usb.ProductHyperdebug, true},
		{C2D2Flavor{}, "c2d2", usb.ProductC2D2, false},
		{Ti50Flavor{}, "ti50", usb.ProductTi50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.flavor.Name())
			assert.Equal(t, uint16(usb.VendorGoogle), tt.flavor.VID())
			assert.Equal(t, tt.pid, tt.flavor.PID())
			assert.Equal(t, tt.jtag, tt.flavor.Mask().Has(transport.CapJTAG))

			k, ok := usb.Classify(tt.flavor.VID(), tt.flavor.PID())
			assert.True(t, ok, "flavor VID:PID must be discoverable")
			if tt.pid != usb.ProductHyperdebug {
				assert.Equal(t, tt.name, k.Interface)
			}
		})
	}
}

// loopbackDAP is a CMSIS-DAP endpoint whose TDO mirrors TDI.
type loopbackDAP struct {
	closed bool
}

func (l *loopbackDAP) PacketSize() int { return 64 }

func (l *loopbackDAP) Close() error {
	l.closed = true
	return nil
}

func (l *loopbackDAP) WriteRead(cmd []byte) ([]byte, error) {
	switch cmd[0] {
	case cmsisdap.CmdInfo:
		return []byte{cmsisdap.CmdInfo, 0}, nil
	case cmsisdap.CmdConnect:
		return []byte{cmsisdap.CmdConnect, cmd[1]}, nil
	case cmsisdap.CmdJTAGSequence:
		resp := []byte{cmsisdap.CmdJTAGSequence, 0}
		off := 2
		for i := 0; i < int(cmd[1]); i++ {
			info := cmd[off]
			n := int(info & 0x3F)
			if n == 0 {
				n = 64
			}
			tdi := cmd[off+1 : off+1+(n+7)/8]
			if info&0x80 != 0 {
				resp = append(resp, tdi...)
			}
			off += 1 + len(tdi)
		}
		return resp, nil
	default:
		return []byte{cmd[0], 0}, nil
	}
}

var allInterfaces = []usb.InterfaceInfo{
	{Number: 0, Class: gousb.ClassVendorSpec},
	{Number: 2, Class: gousb.ClassData},
	{Number: 3, Class: gousb.ClassVendorSpec, SubClass: subclassSPI},
	{Number: 5, Class: gousb.ClassVendorSpec, SubClass: subclassGPIO},
}

func TestJTAGCapabilityOpens(t *testing.T) {
	for _, f := range []Flavor{StandardFlavor{}, CW310Flavor{}, C2D2Flavor{}, Ti50Flavor{}} {
		t.Run(f.Name(), func(t *testing.T) {
			dap := &loopbackDAP{}
			var opened []int
			h := newHyperdebug(f, nil, allInterfaces)
			h.openDAP = func(n int) (cmsisdap.Conn, error) {
				opened = append(opened, n)
				return dap, nil
			}

			j, err := transport.OpenJTAG(h)
			if !h.Capabilities().Has(transport.CapJTAG) {
				assert.ErrorIs(t, err, transport.ErrUnsupported)
				assert.Empty(t, opened)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int{0}, opened)

			tdo, err := j.ShiftDR(nil, []byte{0x5A, 0x01}, 9)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x5A, 0x01}, tdo)

			again, err := transport.OpenJTAG(h)
			require.NoError(t, err)
			assert.Same(t, j, again, "adapter is opened once")
			assert.Len(t, opened, 1)

			require.NoError(t, h.Close())
			assert.True(t, dap.closed)
		})
	}
}

func TestJTAGOpenFailure(t *testing.T) {
	boom := errors.New("interface busy")
	h := newHyperdebug(StandardFlavor{}, nil, allInterfaces)
	h.openDAP = func(int) (cmsisdap.Conn, error) { return nil, boom }

	_, err := h.JTAG()
	assert.ErrorIs(t, err, boom)
}

func TestNoDAPInterfaceNoJTAG(t *testing.T) {
	h := newHyperdebug(StandardFlavor{}, nil, allInterfaces[1:])
	assert.False(t, h.Capabilities().Has(transport.CapJTAG))
	_, err := transport.OpenJTAG(h)
	assert.ErrorIs(t, err, transport.ErrUnsupported)
}
