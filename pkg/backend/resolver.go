// Package backend turns an interface name, user configuration files and
// per-backend options into a configured transport.
//
// Resolution order:
//  1. A non-empty interface name is classified; unknown names fail before
//     any file is read.
//  2. User configuration files are applied in order. A file may name the
//     interface when none was given.
//  3. The backend constructor for the interface runs.
//  4. If no user file was given, the interface's built-in profile (if any)
//     is applied.
//  5. The builder is bound to the backend.
//
// Supplying any configuration file suppresses the built-in profile, even if
// the file is empty.
package backend

import (
	"context"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/app"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/config"
)

// ConfigApplier layers one configuration source onto a builder.
type ConfigApplier interface {
	Apply(dst config.Sink, path string) error
}

// Resolver creates transports from Options.
type Resolver struct {
	applier ConfigApplier
	table   Table
}

// NewResolver returns a resolver using applier for configuration files and
// table for constructors and default profiles.
func NewResolver(applier ConfigApplier, table Table) *Resolver {
	return &Resolver{applier: applier, table: table}
}

// DefaultResolver returns a resolver with the built-in table and a
// config.Processor.
func DefaultResolver() *Resolver {
	return NewResolver(config.NewProcessor(), DefaultTable())
}

// Create resolves opts with DefaultResolver.
func Create(ctx context.Context, opts *Options) (*app.TransportWrapper, error) {
	return DefaultResolver().Create(ctx, opts)
}

func (r *Resolver) lookup(name string) (Entry, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return Entry{}, err
	}
	e, ok := r.table[kind]
	if !ok || e.New == nil {
		return Entry{}, &UnknownInterfaceError{Name: name}
	}
	return e, nil
}

// Create builds the transport described by opts. Errors are
// *UnknownInterfaceError, *ConfigError, *ConstructError, or an error from
// the builder; no handle is returned on failure.
func (r *Resolver) Create(ctx context.Context, opts *Options) (*app.TransportWrapper, error) {
	if opts.Interface != "" {
		if _, err := r.lookup(opts.Interface); err != nil {
			return nil, err
		}
	}

	env := app.NewBuilder(opts.Interface)
	for _, path := range opts.Conf {
		logging.Debug(logging.ComponentBackend, "applying user configuration", "path", path)
		if err := r.applier.Apply(env, path); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}

	name := env.Interface()
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	logging.Debug(logging.ComponentBackend, "creating backend", "interface", name)
	backend, err := entry.New(ctx, opts)
	if err != nil {
		return nil, &ConstructError{Interface: name, Err: err}
	}

	if len(opts.Conf) == 0 && entry.DefaultConf != "" {
		logging.Debug(logging.ComponentBackend, "applying default profile", "interface", name, "path", entry.DefaultConf)
		if err := r.applier.Apply(env, entry.DefaultConf); err != nil {
			backend.Close()
			return nil, &ConfigError{Path: entry.DefaultConf, Default: true, Err: err}
		}
	}

	w, err := env.Build(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	logging.Info(logging.ComponentBackend, "transport ready", "interface", name, "capabilities", w.Capabilities().String())
	return w, nil
}
