package app

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/config"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

// TransportWrapper is the uniform handle returned to callers: a backend plus
// the configuration layered for it.
type TransportWrapper struct {
	iface      string
	backend    transport.Transport
	pins       map[string]config.PinConfiguration
	uarts      map[string]config.UartConfiguration
	strappings map[string]map[string]config.PinConfiguration
	sources    []string
}

// Interface returns the interface name the wrapper was built for.
func (w *TransportWrapper) Interface() string { return w.iface }

// Backend returns the underlying backend instance.
func (w *TransportWrapper) Backend() transport.Transport { return w.backend }

// Capabilities reports the backend's capabilities.
func (w *TransportWrapper) Capabilities() transport.Capability {
	return w.backend.Capabilities()
}

// Sources lists the configuration files applied, in application order.
func (w *TransportWrapper) Sources() []string {
	return append([]string(nil), w.sources...)
}

// PinNames returns the configured pin names in sorted order.
func (w *TransportWrapper) PinNames() []string {
	return sortedKeys(w.pins)
}

// UartNames returns the configured UART names in sorted order.
func (w *TransportWrapper) UartNames() []string {
	return sortedKeys(w.uarts)
}

// StrappingNames returns the configured strapping names in sorted order.
func (w *TransportWrapper) StrappingNames() []string {
	return sortedKeys(w.strappings)
}

// Pin resolves name through its alias chain and returns the physical pin
// name with the merged configuration. Settings closer to name win.
func (w *TransportWrapper) Pin(name string) (string, config.PinConfiguration, error) {
	chain, err := resolveAlias(name, func(n string) *string {
		if p, ok := w.pins[n]; ok {
			return p.AliasOf
		}
		return nil
	})
	if err != nil {
		return "", config.PinConfiguration{}, err
	}
	physical := chain[len(chain)-1]
	conf := config.PinConfiguration{Name: physical}
	for i := len(chain) - 1; i >= 0; i-- {
		if p, ok := w.pins[chain[i]]; ok {
			conf.Merge(p)
		}
	}
	conf.AliasOf = nil
	return physical, conf, nil
}

// Uart resolves name through its alias chain like Pin.
func (w *TransportWrapper) Uart(name string) (string, config.UartConfiguration, error) {
	chain, err := resolveAlias(name, func(n string) *string {
		if u, ok := w.uarts[n]; ok {
			return u.AliasOf
		}
		return nil
	})
	if err != nil {
		return "", config.UartConfiguration{}, err
	}
	physical := chain[len(chain)-1]
	conf := config.UartConfiguration{Name: physical}
	for i := len(chain) - 1; i >= 0; i-- {
		if u, ok := w.uarts[chain[i]]; ok {
			conf.Merge(u)
		}
	}
	conf.AliasOf = nil
	return physical, conf, nil
}

// Strapping returns the pin settings of the named strapping, keyed by
// physical pin name.
func (w *TransportWrapper) Strapping(name string) (map[string]config.PinConfiguration, error) {
	pins, ok := w.strappings[name]
	if !ok {
		return nil, fmt.Errorf("app: unknown strapping %q", name)
	}
	out := make(map[string]config.PinConfiguration, len(pins))
	for n, p := range pins {
		physical, _, err := w.Pin(n)
		if err != nil {
			return nil, err
		}
		p.Name = physical
		out[physical] = p
	}
	return out, nil
}

// Close closes the backend.
func (w *TransportWrapper) Close() error {
	return w.backend.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
