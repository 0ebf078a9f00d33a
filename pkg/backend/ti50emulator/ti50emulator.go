// Package ti50emulator attaches to an instance of the Ti50 host emulator.
package ti50emulator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

var (
	// ErrMissingExecutable is returned when no emulator executable is set.
	ErrMissingExecutable = errors.New("ti50emulator: executable not specified")

	// ErrMissingInstance is returned when no instance name is set.
	ErrMissingInstance = errors.New("ti50emulator: instance name not specified")
)

// Options are the Ti50 emulator knobs.
type Options struct {
	Executable   string
	InstanceName string
	Root         string
}

// AddFlags registers the Ti50 emulator flag group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Executable, "ti50emulator-exec", "", "path to the Ti50 emulator executable")
	fs.StringVar(&o.InstanceName, "ti50emulator-instance", "default", "emulator instance name")
	fs.StringVar(&o.Root, "ti50emulator-root", os.TempDir(), "directory holding emulator instance state")
}

// Emulator is a configured emulator instance.
type Emulator struct {
	exec     string
	instance string
}

// New validates opts and returns the backend.
func New(opts Options) (*Emulator, error) {
	if opts.Executable == "" {
		return nil, ErrMissingExecutable
	}
	if opts.InstanceName == "" {
		return nil, ErrMissingInstance
	}
	st, err := os.Stat(opts.Executable)
	if err != nil {
		return nil, fmt.Errorf("ti50emulator: %w", err)
	}
	if st.IsDir() || st.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("ti50emulator: %s is not executable", opts.Executable)
	}
	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	return &Emulator{
		exec:     opts.Executable,
		instance: filepath.Join(root, "ti50emulator", opts.InstanceName),
	}, nil
}

// InstanceDir returns the directory holding the instance's sockets and state.
func (e *Emulator) InstanceDir() string { return e.instance }

func (e *Emulator) Capabilities() transport.Capability {
	return transport.CapEmulator | transport.CapUART | transport.CapGPIO | transport.CapI2C
}

func (e *Emulator) Close() error { return nil }
