package backend

import (
	"errors"
	"fmt"
)

// ErrUnknownInterface matches every *UnknownInterfaceError via errors.Is.
var ErrUnknownInterface = errors.New("backend: unknown interface")

// UnknownInterfaceError is returned when an interface name matches no
// backend.
type UnknownInterfaceError struct {
	Name string
}

func (e *UnknownInterfaceError) Error() string {
	return fmt.Sprintf("backend: unknown interface %q", e.Name)
}

func (e *UnknownInterfaceError) Is(target error) bool {
	return target == ErrUnknownInterface
}

// ConfigError wraps a failure to apply a configuration file. Default is set
// when the file was the interface's built-in profile.
type ConfigError struct {
	Path    string
	Default bool
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Default {
		return fmt.Sprintf("backend: apply default profile %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("backend: apply config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConstructError wraps a backend constructor failure.
type ConstructError struct {
	Interface string
	Err       error
}

func (e *ConstructError) Error() string {
	return fmt.Sprintf("backend: create %q: %v", e.Interface, e.Err)
}

func (e *ConstructError) Unwrap() error { return e.Err }
