package cmsisdap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

// Conn carries one command/response exchange at a time.
type Conn interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

const (
	defaultSpeed = 1_000_000
	minSpeed     = 1_000
	maxSpeed     = 10_000_000
)

// Adapter drives a TAP through a CMSIS-DAP interface.
type Adapter struct {
	mu      sync.Mutex
	conn    Conn
	info    transport.AdapterInfo
	speedHz int
	open    bool
}

// New queries the firmware, switches it to JTAG and sets the default clock.
// The adapter owns conn from then on, even on error.
func New(conn Conn) (*Adapter, error) {
	a := &Adapter{conn: conn}
	if err := a.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *Adapter) init() error {
	vendor, err := a.infoString(InfoVendor)
	if err != nil {
		return fmt.Errorf("cmsisdap: query info: %w", err)
	}
	product := a.optionalInfo(InfoProduct)
	serial := a.optionalInfo(InfoSerial)
	firmware := a.optionalInfo(InfoFirmware)
	a.info = transport.AdapterInfo{
		Name:         "CMSIS-DAP",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		MinFrequency: minSpeed,
		MaxFrequency: maxSpeed,
		SupportsSRST: true,
		SupportsTRST: true,
	}
	logging.Debug(logging.ComponentUSB, "cmsis-dap adapter", "vendor", vendor, "product", product, "firmware", firmware)

	resp, err := a.conn.WriteRead(EncodeConnect())
	if err != nil {
		return fmt.Errorf("cmsisdap: connect: %w", err)
	}
	if err := DecodeConnect(resp); err != nil {
		return err
	}
	a.open = true
	return a.setSpeed(defaultSpeed)
}

// optionalInfo returns "" for info strings the firmware does not provide.
func (a *Adapter) optionalInfo(id byte) string {
	v, err := a.infoString(id)
	if err != nil {
		logging.Debug(logging.ComponentUSB, "cmsis-dap info unavailable", "id", id, "err", err)
	}
	return v
}

func (a *Adapter) infoString(id byte) (string, error) {
	resp, err := a.conn.WriteRead(EncodeInfo(id))
	if err != nil {
		return "", err
	}
	b, err := DecodeInfo(resp)
	if err != nil {
		return "", err
	}
	// Strings are NUL terminated on some firmware.
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

func (a *Adapter) Info() (transport.AdapterInfo, error) {
	return a.info, nil
}

func (a *Adapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

func (a *Adapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

func (a *Adapter) shift(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := transport.ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.run(splitSequences(tms, tdi, bits))
}

// splitSequences cuts a shift into runs of constant TMS no longer than
// MaxSequenceBits. Missing TMS means all zeros, missing TDI likewise.
func splitSequences(tms, tdi []byte, bits int) []Sequence {
	nbytes := (bits + 7) / 8
	if len(tdi) == 0 {
		tdi = make([]byte, nbytes)
	}
	hasTMS := len(tms) > 0
	var seqs []Sequence
	for pos := 0; pos < bits; {
		level := hasTMS && bit(tms, pos)
		n := 1
		for pos+n < bits && n < MaxSequenceBits && (hasTMS && bit(tms, pos+n)) == level {
			n++
		}
		chunk := make([]byte, (n+7)/8)
		copyBits(chunk, 0, tdi, pos, n)
		seqs = append(seqs, Sequence{Bits: n, TMS: level, Capture: true, TDI: chunk})
		pos += n
	}
	return seqs
}

// run sends seqs in as few packets as fit and returns the captured TDO
// bits packed LSB first.
func (a *Adapter) run(seqs []Sequence) ([]byte, error) {
	total := 0
	for _, s := range seqs {
		if s.Capture {
			total += s.Bits
		}
	}
	out := make([]byte, (total+7)/8)
	pos := 0
	limit := a.conn.PacketSize()

	flush := func(batch []Sequence) error {
		resp, err := a.conn.WriteRead(EncodeSequences(batch))
		if err != nil {
			return fmt.Errorf("cmsisdap: jtag sequence: %w", err)
		}
		tdos, err := DecodeSequences(resp, batch)
		if err != nil {
			return err
		}
		i := 0
		for _, s := range batch {
			if !s.Capture {
				continue
			}
			copyBits(out, pos, tdos[i], 0, s.Bits)
			pos += s.Bits
			i++
		}
		return nil
	}

	var batch []Sequence
	for _, s := range seqs {
		next := append(batch, s)
		cmd, resp := sequenceSizes(next)
		if len(batch) > 0 && (cmd > limit || resp > limit || len(next) > 255) {
			if err := flush(batch); err != nil {
				return nil, err
			}
			next = []Sequence{s}
		}
		batch = next
	}
	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResetTAP clocks five TMS-high cycles, or pulses the target reset line
// when hard is set.
func (a *Adapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hard {
		resp, err := a.conn.WriteRead([]byte{CmdResetTarget})
		if err != nil {
			return fmt.Errorf("cmsisdap: reset target: %w", err)
		}
		return checkStatus(resp, CmdResetTarget)
	}
	_, err := a.run([]Sequence{{Bits: 5, TMS: true}})
	return err
}

func (a *Adapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setSpeed(hz)
}

func (a *Adapter) setSpeed(hz int) error {
	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("cmsisdap: frequency %dHz outside [%d, %d]", hz, a.info.MinFrequency, a.info.MaxFrequency)
	}
	resp, err := a.conn.WriteRead(EncodeClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("cmsisdap: set clock: %w", err)
	}
	if err := checkStatus(resp, CmdSWJClock); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// Speed returns the current TCK frequency.
func (a *Adapter) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speedHz
}

// IDCode walks the TAP from reset into Shift-DR and captures the 32-bit
// register the reset selected, leaving the TAP in Run-Test/Idle.
func (a *Adapter) IDCode() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tdo, err := a.run([]Sequence{
		{Bits: 5, TMS: true},  // Test-Logic-Reset
		{Bits: 1},             // Run-Test/Idle
		{Bits: 1, TMS: true},  // Select-DR-Scan
		{Bits: 2},             // Capture-DR, Shift-DR
		{Bits: 31, Capture: true},
		{Bits: 1, TMS: true, Capture: true}, // Exit1-DR
		{Bits: 1, TMS: true},                // Update-DR
		{Bits: 1},                           // Run-Test/Idle
	})
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tdo), nil
}

// Close disconnects from the target and releases the connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		a.open = false
		if _, err := a.conn.WriteRead([]byte{CmdDisconnect}); err != nil {
			logging.Debug(logging.ComponentUSB, "cmsis-dap disconnect failed", "err", err)
		}
	}
	return a.conn.Close()
}
