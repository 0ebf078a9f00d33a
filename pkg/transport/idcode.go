package transport

import (
	"encoding/binary"
	"fmt"
)

// IDCode is a decoded IEEE 1149.1 IDCODE.
type IDCode struct {
	Raw          uint32
	Version      uint8  // [31:28]
	PartNumber   uint16 // [27:12]
	Manufacturer uint16 // [11:1] JEP106 bank and ID
	Valid        bool   // bit 0 set
}

// jep106 holds the manufacturers of parts found behind the supported
// interfaces. Codes are (continuation count << 7) | ID.
var jep106 = map[uint16]string{
	0x020: "STMicroelectronics",
	0x23B: "ARM",
	0x66F: "lowRISC",
}

// ParseIDCode splits raw into its fields.
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:          raw,
		Version:      uint8(raw >> 28),
		PartNumber:   uint16(raw >> 12),
		Manufacturer: uint16(raw>>1) & 0x7ff,
		Valid:        raw&1 == 1,
	}
}

// ManufacturerName returns the JEP106 name or "Unknown (0xNNN)".
func (id IDCode) ManufacturerName() string {
	if name, ok := jep106[id.Manufacturer]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%03X)", id.Manufacturer)
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Ver: %d)",
		id.Raw, id.ManufacturerName(), id.PartNumber, id.Version)
}

// IDCodeReader is implemented by adapters that walk the TAP into Shift-DR
// themselves.
type IDCodeReader interface {
	IDCode() (uint32, error)
}

// ReadIDCode resets the TAP and captures the 32-bit value the reset leaves
// in the data register.
func ReadIDCode(j JTAG) (IDCode, error) {
	if r, ok := j.(IDCodeReader); ok {
		raw, err := r.IDCode()
		if err != nil {
			return IDCode{}, fmt.Errorf("transport: read idcode: %w", err)
		}
		return checkIDCode(ParseIDCode(raw))
	}
	if err := j.ResetTAP(false); err != nil {
		return IDCode{}, fmt.Errorf("transport: reset tap: %w", err)
	}
	tdo, err := j.ShiftDR(nil, make([]byte, 4), 32)
	if err != nil {
		return IDCode{}, fmt.Errorf("transport: read idcode: %w", err)
	}
	if len(tdo) < 4 {
		return IDCode{}, fmt.Errorf("transport: read idcode: short tdo (%d bytes)", len(tdo))
	}
	return checkIDCode(ParseIDCode(binary.LittleEndian.Uint32(tdo)))
}

func checkIDCode(id IDCode) (IDCode, error) {
	if !id.Valid {
		return id, fmt.Errorf("transport: device has no IDCODE (read 0x%08X)", id.Raw)
	}
	return id, nil
}
