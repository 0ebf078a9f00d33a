package backend

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) *Options {
	t.Helper()
	var opts Options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return &opts
}

func TestOptionsFlags(t *testing.T) {
	opts := parseFlags(t,
		"--interface", "cw310",
		"--usb-vid", "0x2b3e",
		"--usb-pid", "50192",
		"--usb-serial", "ABC123",
		"--conf", "a.json",
		"--conf", "b,c.yaml",
		"--cw310-uarts", "/dev/ttyACM0,/dev/ttyACM1",
		"--verilator-bin", "/opt/sim",
		"--proxy", "lab:9901",
	)

	assert.Equal(t, "cw310", opts.Interface)
	require.NotNil(t, opts.USBVID)
	assert.Equal(t, uint16(0x2b3e), *opts.USBVID)
	require.NotNil(t, opts.USBPID)
	assert.Equal(t, uint16(0xc410), *opts.USBPID)
	assert.Equal(t, []string{"a.json", "b,c.yaml"}, opts.Conf, "--conf is not split on commas")
	assert.Equal(t, "/opt/sim", opts.Verilator.Binary)
	assert.Equal(t, "lab:9901", opts.Proxy.Address)

	f := opts.USBFilter()
	assert.Equal(t, "ABC123", f.Serial)
	assert.Equal(t, opts.USBVID, f.VID)
}

func TestOptionsDefaults(t *testing.T) {
	opts := parseFlags(t)
	assert.Empty(t, opts.Interface)
	assert.Nil(t, opts.USBVID)
	assert.Nil(t, opts.USBPID)
	assert.Empty(t, opts.Conf)
}

func TestU16FlagRejectsOutOfRange(t *testing.T) {
	var opts Options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	assert.Error(t, fs.Parse([]string{"--usb-vid", "0x10000"}))
	assert.Error(t, fs.Parse([]string{"--usb-pid", "nope"}))
}

func TestU16ValueString(t *testing.T) {
	var p *uint16
	v := &u16Value{&p}
	assert.Equal(t, "", v.String())
	require.NoError(t, v.Set("0x18d1"))
	assert.Equal(t, "0x18d1", v.String())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("Verilator")
	assert.ErrorIs(t, err, ErrUnknownInterface)
	assert.EqualError(t, err, `backend: unknown interface "Verilator"`)
}

func TestKindsReturnsCopy(t *testing.T) {
	ks := Kinds()
	require.NotEmpty(t, ks)
	first := ks[0]
	for i := range ks {
		ks[i] = "bogus"
	}

	_, err := ParseKind("bogus")
	assert.ErrorIs(t, err, ErrUnknownInterface)
	got, err := ParseKind(string(KindVerilator))
	require.NoError(t, err)
	assert.Equal(t, KindVerilator, got)
	assert.Equal(t, first, Kinds()[0])
	assert.NotContains(t, Kinds(), Kind("bogus"))
}

func TestDefaultProfiles(t *testing.T) {
	want := map[Kind]string{
		KindVerilator:    "opentitan_verilator.json",
		KindTi50Emulator: "ti50emulator.json",
		KindUltradebug:   "opentitan_ultradebug.json",
		KindHyper310:     "hyperdebug_cw310.json",
		KindC2D2:         "h1dx_devboard.json",
		KindCW310:        "opentitan_cw310.json",
	}
	for _, k := range Kinds() {
		entry, ok := defaultTable[k]
		require.True(t, ok, "missing entry for %q", k)
		assert.NotNil(t, entry.New)
		if name, ok := want[k]; ok {
			assert.Equal(t, "/__builtin__/"+name, entry.DefaultConf)
		} else {
			assert.Empty(t, entry.DefaultConf, "interface %q", k)
		}
	}
}
