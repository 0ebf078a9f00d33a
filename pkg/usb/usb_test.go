package usb

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u16(v uint16) *uint16 { return &v }

func TestFilterWithDefaults(t *testing.T) {
	f := Filter{PID: u16(0x1234), Serial: "abc"}.WithDefaults(VendorGoogle, ProductHyperdebug)
	assert.Equal(t, uint16(VendorGoogle), *f.VID)
	assert.Equal(t, uint16(0x1234), *f.PID, "explicit PID must win over the default")
	assert.Equal(t, "abc", f.Serial)
	assert.Equal(t, "18d1:1234 serial=abc", f.String())
}

func TestFilterWithDefaultsDoesNotAlias(t *testing.T) {
	orig := Filter{}
	_ = orig.WithDefaults(1, 2)
	assert.Nil(t, orig.VID)
	assert.Nil(t, orig.PID)
}

func TestFilterMatch(t *testing.T) {
	desc := &gousb.DeviceDesc{Vendor: gousb.ID(VendorGoogle), Product: gousb.ID(ProductHyperdebug)}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"wildcard", Filter{}, true},
		{"vid only", Filter{VID: u16(VendorGoogle)}, true},
		{"exact", Filter{VID: u16(VendorGoogle), PID: u16(ProductHyperdebug)}, true},
		{"wrong pid", Filter{VID: u16(VendorGoogle), PID: u16(ProductC2D2)}, false},
		{"wrong vid", Filter{VID: u16(VendorNewAE)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(desc))
		})
	}
	assert.Equal(t, "*:*", Filter{}.String())
}

func TestSelectBySerial(t *testing.T) {
	unreadable := errors.New("LIBUSB_ERROR_ACCESS")
	reads := []serialRead{
		{serial: "HD-1"},
		{err: unreadable},
		{serial: "HD-2"},
	}

	got, err := selectBySerial(reads, "")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got, "no serial filter keeps unreadable devices")

	got, err = selectBySerial(reads, "HD-2")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got)

	got, err = selectBySerial(reads, "HD-9")
	assert.Empty(t, got)
	assert.ErrorIs(t, err, unreadable, "a device with an unreadable serial may be the one asked for")

	got, err = selectBySerial([]serialRead{{serial: "HD-1"}}, "HD-9")
	assert.Empty(t, got)
	assert.NoError(t, err)
}

func TestClassify(t *testing.T) {
	k, ok := Classify(VendorNewAE, ProductCW310)
	assert.True(t, ok)
	assert.Equal(t, "cw310", k.Interface)

	_, ok = Classify(0xffff, 0xffff)
	assert.False(t, ok)

	info := Info{KnownDevice: KnownDevice{VendorID: 1, ProductID: 2}}
	assert.Equal(t, "Interface 0001:0002", info.Label())
}

// Integration test - only runs with real hardware attached.
func TestDiscoverIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	infos, err := Discover(context.Background())
	if err != nil {
		t.Skipf("USB unavailable: %v", err)
	}
	for _, i := range infos {
		t.Logf("found %s (%04x:%04x) as %q", i.Label(), i.VendorID, i.ProductID, i.Interface)
	}
}
