// Package app assembles a configured transport: a Builder accumulates layered
// configuration and, once bound to a backend, yields a TransportWrapper.
package app

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/config"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

var (
	// ErrInconsistentInterface is returned when a configuration file names
	// a different interface than the one already selected.
	ErrInconsistentInterface = errors.New("app: inconsistent interface in configuration")

	// ErrBuilderConsumed is returned when a Builder is used after Build.
	ErrBuilderConsumed = errors.New("app: builder already built")

	// ErrAliasCycle is returned when alias_of entries form a loop.
	ErrAliasCycle = errors.New("app: alias cycle")

	// ErrStrappingConflict is returned when two pins of one strapping
	// resolve to the same physical pin.
	ErrStrappingConflict = errors.New("app: strapping sets a pin twice")
)

// Builder accumulates configuration for one transport. It is not safe for
// concurrent use and cannot be reused after Build.
type Builder struct {
	iface      string
	pins       map[string]config.PinConfiguration
	uarts      map[string]config.UartConfiguration
	strappings map[string]map[string]config.PinConfiguration
	sources    []string
	consumed   bool
}

// NewBuilder returns an empty builder for the named interface. An empty name
// may later be filled in by a configuration file.
func NewBuilder(iface string) *Builder {
	return &Builder{
		iface:      iface,
		pins:       make(map[string]config.PinConfiguration),
		uarts:      make(map[string]config.UartConfiguration),
		strappings: make(map[string]map[string]config.PinConfiguration),
	}
}

// Interface returns the interface name currently selected.
func (b *Builder) Interface() string {
	return b.iface
}

// Sources returns the paths applied so far, in order.
func (b *Builder) Sources() []string {
	return append([]string(nil), b.sources...)
}

// AddConfigurationFile layers f over the configuration accumulated so far.
// Fields set in f override the same fields set by earlier files.
func (b *Builder) AddConfigurationFile(f *config.File) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	if f.Interface != "" {
		switch b.iface {
		case "":
			b.iface = f.Interface
		case f.Interface:
		default:
			return fmt.Errorf("%w: %q, selected %q", ErrInconsistentInterface, f.Interface, b.iface)
		}
	}

	for _, p := range f.Pins {
		mergePin(b.pins, p)
	}
	for _, u := range f.Uarts {
		cur, ok := b.uarts[u.Name]
		if !ok {
			b.uarts[u.Name] = u
			continue
		}
		cur.Merge(u)
		b.uarts[u.Name] = cur
	}
	for _, s := range f.Strappings {
		pins, ok := b.strappings[s.Name]
		if !ok {
			pins = make(map[string]config.PinConfiguration)
			b.strappings[s.Name] = pins
		}
		for _, p := range s.Pins {
			mergePin(pins, p)
		}
	}

	b.sources = append(b.sources, f.Source)
	return nil
}

func mergePin(pins map[string]config.PinConfiguration, p config.PinConfiguration) {
	cur, ok := pins[p.Name]
	if !ok {
		pins[p.Name] = p
		return
	}
	cur.Merge(p)
	pins[p.Name] = cur
}

// Build binds the accumulated configuration to backend. The builder is
// consumed even when Build fails.
func (b *Builder) Build(backend transport.Transport) (*TransportWrapper, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true

	for name := range b.pins {
		if _, err := resolveAlias(name, func(n string) *string {
			if p, ok := b.pins[n]; ok {
				return p.AliasOf
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	for name := range b.uarts {
		if _, err := resolveAlias(name, func(n string) *string {
			if u, ok := b.uarts[n]; ok {
				return u.AliasOf
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	if err := b.checkStrappings(); err != nil {
		return nil, err
	}

	w := &TransportWrapper{
		iface:      b.iface,
		backend:    backend,
		pins:       b.pins,
		uarts:      b.uarts,
		strappings: b.strappings,
		sources:    b.sources,
	}
	b.pins, b.uarts, b.strappings, b.sources = nil, nil, nil, nil
	return w, nil
}

func (b *Builder) checkStrappings() error {
	pinAlias := func(n string) *string {
		if p, ok := b.pins[n]; ok {
			return p.AliasOf
		}
		return nil
	}
	for _, name := range sortedKeys(b.strappings) {
		owner := make(map[string]string)
		for _, pin := range sortedKeys(b.strappings[name]) {
			chain, err := resolveAlias(pin, pinAlias)
			if err != nil {
				return err
			}
			physical := chain[len(chain)-1]
			if prev, ok := owner[physical]; ok {
				return fmt.Errorf("%w: %q lists %s and %s, both %s", ErrStrappingConflict, name, prev, pin, physical)
			}
			owner[physical] = pin
		}
	}
	return nil
}

// resolveAlias follows alias links from name and returns the chain, starting
// with name and ending with the physical name.
func resolveAlias(name string, next func(string) *string) ([]string, error) {
	chain := []string{name}
	seen := map[string]bool{name: true}
	for cur := name; ; {
		alias := next(cur)
		if alias == nil {
			return chain, nil
		}
		if seen[*alias] {
			return nil, fmt.Errorf("%w: %s", ErrAliasCycle, name)
		}
		seen[*alias] = true
		chain = append(chain, *alias)
		cur = *alias
	}
}
