// Package config reads transport configuration files and layers them onto an
// environment builder. Files are JSON, or YAML when the name ends in .yaml or
// .yml. Paths under BuiltinPrefix refer to profiles compiled into the binary.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// PinMode is the electrical mode of a GPIO pin.
type PinMode string

const (
	PinModeInput        PinMode = "Input"
	PinModePushPull     PinMode = "PushPull"
	PinModeOpenDrain    PinMode = "OpenDrain"
	PinModeAnalogInput  PinMode = "AnalogInput"
	PinModeAnalogOutput PinMode = "AnalogOutput"
	PinModeAlternate    PinMode = "Alternate"
)

// UnmarshalText rejects unknown modes.
func (m *PinMode) UnmarshalText(b []byte) error {
	switch v := PinMode(b); v {
	case PinModeInput, PinModePushPull, PinModeOpenDrain,
		PinModeAnalogInput, PinModeAnalogOutput, PinModeAlternate:
		*m = v
		return nil
	}
	return fmt.Errorf("unknown pin mode %q", string(b))
}

// PullMode selects the internal pull resistor of a pin.
type PullMode string

const (
	PullModeNone     PullMode = "None"
	PullModePullUp   PullMode = "PullUp"
	PullModePullDown PullMode = "PullDown"
)

// UnmarshalText rejects unknown pull modes.
func (m *PullMode) UnmarshalText(b []byte) error {
	switch v := PullMode(b); v {
	case PullModeNone, PullModePullUp, PullModePullDown:
		*m = v
		return nil
	}
	return fmt.Errorf("unknown pull mode %q", string(b))
}

// PinConfiguration describes one GPIO pin. Nil fields are left unchanged when
// layered over an earlier configuration of the same pin.
type PinConfiguration struct {
	Name     string    `json:"name" yaml:"name"`
	Mode     *PinMode  `json:"mode,omitempty" yaml:"mode,omitempty"`
	Level    *bool     `json:"level,omitempty" yaml:"level,omitempty"`
	PullMode *PullMode `json:"pull_mode,omitempty" yaml:"pull_mode,omitempty"`
	AliasOf  *string   `json:"alias_of,omitempty" yaml:"alias_of,omitempty"`
}

// Merge overlays the non-nil fields of other onto c.
func (c *PinConfiguration) Merge(other PinConfiguration) {
	if other.Mode != nil {
		c.Mode = other.Mode
	}
	if other.Level != nil {
		c.Level = other.Level
	}
	if other.PullMode != nil {
		c.PullMode = other.PullMode
	}
	if other.AliasOf != nil {
		c.AliasOf = other.AliasOf
	}
}

// UartConfiguration describes one UART.
type UartConfiguration struct {
	Name     string  `json:"name" yaml:"name"`
	BaudRate *uint32 `json:"baudrate,omitempty" yaml:"baudrate,omitempty"`
	AliasOf  *string `json:"alias_of,omitempty" yaml:"alias_of,omitempty"`
}

// Merge overlays the non-nil fields of other onto c.
func (c *UartConfiguration) Merge(other UartConfiguration) {
	if other.BaudRate != nil {
		c.BaudRate = other.BaudRate
	}
	if other.AliasOf != nil {
		c.AliasOf = other.AliasOf
	}
}

// StrappingConfiguration is a named set of pin settings applied together.
type StrappingConfiguration struct {
	Name string             `json:"name" yaml:"name"`
	Pins []PinConfiguration `json:"pins" yaml:"pins"`
}

// File is the decoded form of one configuration file.
type File struct {
	Interface  string                   `json:"interface,omitempty" yaml:"interface,omitempty"`
	Includes   []string                 `json:"includes,omitempty" yaml:"includes,omitempty"`
	Pins       []PinConfiguration       `json:"pins,omitempty" yaml:"pins,omitempty"`
	Uarts      []UartConfiguration      `json:"uarts,omitempty" yaml:"uarts,omitempty"`
	Strappings []StrappingConfiguration `json:"strappings,omitempty" yaml:"strappings,omitempty"`

	// Source is the path the file was read from.
	Source string `json:"-" yaml:"-"`
}

// Parse decodes data, choosing the format from name's extension. Unknown
// fields are rejected in both formats.
func Parse(name string, data []byte) (*File, error) {
	var f File
	if len(bytes.TrimSpace(data)) == 0 {
		f.Source = name
		return &f, nil
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	f.Source = name
	return &f, nil
}

func (f *File) validate() error {
	for i, p := range f.Pins {
		if p.Name == "" {
			return fmt.Errorf("pins[%d]: missing name", i)
		}
	}
	for i, u := range f.Uarts {
		if u.Name == "" {
			return fmt.Errorf("uarts[%d]: missing name", i)
		}
	}
	for i, s := range f.Strappings {
		if s.Name == "" {
			return fmt.Errorf("strappings[%d]: missing name", i)
		}
		for j, p := range s.Pins {
			if p.Name == "" {
				return fmt.Errorf("strappings[%d].pins[%d]: missing name", i, j)
			}
		}
	}
	return nil
}
