package backend

import (
	"context"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/cw310"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/hyperdebug"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/proxy"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/ti50emulator"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/ultradebug"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/backend/verilator"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/config"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

// Kind names a supported interface.
type Kind string

const (
	KindNone          Kind = ""
	KindProxy         Kind = "proxy"
	KindVerilator     Kind = "verilator"
	KindTi50Emulator  Kind = "ti50emulator"
	KindUltradebug    Kind = "ultradebug"
	KindHyper310      Kind = "hyper310"
	KindHyperdebug    Kind = "hyperdebug"
	KindHyperdebugDFU Kind = "hyperdebug_dfu"
	KindC2D2          Kind = "c2d2"
	KindTi50          Kind = "ti50"
	KindCW310         Kind = "cw310"
)

var kinds = []Kind{
	KindNone, KindProxy, KindVerilator, KindTi50Emulator, KindUltradebug,
	KindHyper310, KindHyperdebug, KindHyperdebugDFU, KindC2D2, KindTi50, KindCW310,
}

// Kinds returns every supported interface in display order. The slice is a
// copy.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind classifies name. The match is exact and case-sensitive.
func ParseKind(name string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", &UnknownInterfaceError{Name: name}
}

// Constructor creates a backend from the parts of opts it needs.
type Constructor func(ctx context.Context, opts *Options) (transport.Transport, error)

// Entry binds an interface to its constructor and optional built-in
// profile, applied only when the user supplies no configuration files.
type Entry struct {
	New         Constructor
	DefaultConf string
}

// Table maps each interface to its entry.
type Table map[Kind]Entry

func builtin(name string) string { return config.BuiltinPrefix + name }

var defaultTable = Table{
	KindNone: {
		New: func(context.Context, *Options) (transport.Transport, error) {
			return transport.NewEmpty()
		},
	},
	KindProxy: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(proxy.New(ctx, o.Proxy))
		},
	},
	KindVerilator: {
		New: func(_ context.Context, o *Options) (transport.Transport, error) {
			return wrap(verilator.New(o.Verilator))
		},
		DefaultConf: builtin("opentitan_verilator.json"),
	},
	KindTi50Emulator: {
		New: func(_ context.Context, o *Options) (transport.Transport, error) {
			return wrap(ti50emulator.New(o.Ti50Emulator))
		},
		DefaultConf: builtin("ti50emulator.json"),
	},
	KindUltradebug: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(ultradebug.New(ctx, o.USBFilter()))
		},
		DefaultConf: builtin("opentitan_ultradebug.json"),
	},
	KindHyper310: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(hyperdebug.New[hyperdebug.CW310Flavor](ctx, o.USBFilter()))
		},
		DefaultConf: builtin("hyperdebug_cw310.json"),
	},
	KindHyperdebug: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(hyperdebug.New[hyperdebug.StandardFlavor](ctx, o.USBFilter()))
		},
	},
	KindHyperdebugDFU: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(hyperdebug.NewDFU(ctx, o.USBFilter()))
		},
	},
	KindC2D2: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(hyperdebug.New[hyperdebug.C2D2Flavor](ctx, o.USBFilter()))
		},
		DefaultConf: builtin("h1dx_devboard.json"),
	},
	KindTi50: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(hyperdebug.New[hyperdebug.Ti50Flavor](ctx, o.USBFilter()))
		},
	},
	KindCW310: {
		New: func(ctx context.Context, o *Options) (transport.Transport, error) {
			return wrap(cw310.New(ctx, o.USBFilter(), o.CW310))
		},
		DefaultConf: builtin("opentitan_cw310.json"),
	},
}

// DefaultTable returns a copy of the built-in table. Callers may replace
// entries in the copy without affecting other resolvers.
func DefaultTable() Table {
	t := make(Table, len(defaultTable))
	for k, e := range defaultTable {
		t[k] = e
	}
	return t
}

// wrap converts a concrete constructor result into a Transport without
// producing a non-nil interface around a nil pointer.
func wrap[T transport.Transport](t T, err error) (transport.Transport, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
