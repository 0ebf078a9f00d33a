package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
)

// BuiltinPrefix marks paths served from the compiled-in profiles.
const BuiltinPrefix = "/__builtin__/"

//go:embed builtin/*.json
var builtinFS embed.FS

var (
	// ErrIncludeCycle is returned when a file includes itself, directly or
	// through other files.
	ErrIncludeCycle = errors.New("config: include cycle")

	// ErrBuiltinNotFound is returned for a BuiltinPrefix path that names no
	// compiled-in profile.
	ErrBuiltinNotFound = errors.New("config: no such builtin profile")
)

// Sink receives decoded configuration files in application order.
type Sink interface {
	AddConfigurationFile(f *File) error
}

// Processor applies configuration files to a Sink.
type Processor struct {
	builtins fs.FS
	readFile func(name string) ([]byte, error)
}

// NewProcessor returns a Processor reading user files from disk and builtin
// profiles from the binary.
func NewProcessor() *Processor {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return &Processor{builtins: sub, readFile: os.ReadFile}
}

// NewProcessorFS returns a Processor reading builtin profiles from builtins
// and user files through readFile. Either may be nil to keep the default.
func NewProcessorFS(builtins fs.FS, readFile func(string) ([]byte, error)) *Processor {
	p := NewProcessor()
	if builtins != nil {
		p.builtins = builtins
	}
	if readFile != nil {
		p.readFile = readFile
	}
	return p
}

// IsBuiltin reports whether name refers to a compiled-in profile.
func IsBuiltin(name string) bool {
	return strings.HasPrefix(name, BuiltinPrefix)
}

// Builtins lists the compiled-in profile paths.
func (p *Processor) Builtins() ([]string, error) {
	entries, err := fs.ReadDir(p.builtins, ".")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, BuiltinPrefix+e.Name())
		}
	}
	return out, nil
}

// Apply reads name, applies its includes depth-first in order, then hands the
// file itself to dst. The first failure aborts.
func (p *Processor) Apply(dst Sink, name string) error {
	return p.apply(dst, name, map[string]bool{})
}

func (p *Processor) apply(dst Sink, name string, active map[string]bool) error {
	key := name
	if !IsBuiltin(name) {
		if abs, err := filepath.Abs(name); err == nil {
			key = abs
		}
	}
	if active[key] {
		return fmt.Errorf("%w: %s", ErrIncludeCycle, name)
	}

	data, err := p.read(name)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	f, err := Parse(name, data)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}

	active[key] = true
	for _, inc := range f.Includes {
		if err := p.apply(dst, resolveInclude(name, inc), active); err != nil {
			return err
		}
	}
	delete(active, key)

	logging.Debug(logging.ComponentConfig, "applying configuration", "path", name, "pins", len(f.Pins), "uarts", len(f.Uarts))
	if err := dst.AddConfigurationFile(f); err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	return nil
}

func (p *Processor) read(name string) ([]byte, error) {
	if IsBuiltin(name) {
		data, err := fs.ReadFile(p.builtins, strings.TrimPrefix(name, BuiltinPrefix))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBuiltinNotFound
		}
		return data, err
	}
	return p.readFile(name)
}

// resolveInclude interprets inc relative to the directory of the including
// file. Builtin profiles can only include other builtin profiles.
func resolveInclude(from, inc string) string {
	if IsBuiltin(inc) {
		return inc
	}
	if IsBuiltin(from) {
		joined := path.Join(path.Dir(from), inc)
		if !IsBuiltin(joined) {
			return BuiltinPrefix + strings.TrimPrefix(joined, "/")
		}
		return joined
	}
	if filepath.IsAbs(inc) {
		return inc
	}
	return filepath.Join(filepath.Dir(from), inc)
}
