package transport

import (
	"fmt"
	"sync"
)

// maxScans bounds the scan history kept by SimJTAG.
const maxScans = 64

// Scan is one shift seen by a SimJTAG.
type Scan struct {
	IR   bool
	Bits int
	TMS  []byte
	TDI  []byte
	TDO  []byte
}

// SimOption configures a SimJTAG.
type SimOption func(*SimJTAG)

// WithIDCode gives the simulated device an IDCODE register, selected by
// every TAP reset.
func WithIDCode(id uint32) SimOption {
	return func(s *SimJTAG) {
		s.idcode = id
		s.hasIDCode = true
	}
}

// WithResponder replaces the register model: every scan's TDO comes from
// fn. Scan.TDO is nil when fn is called.
func WithResponder(fn func(Scan) ([]byte, error)) SimOption {
	return func(s *SimJTAG) { s.respond = fn }
}

// SimJTAG is an in-memory TAP for simulated targets.
//
// A reset selects the IDCODE register if the device has one and BYPASS
// otherwise. Any IR scan selects BYPASS. Each DR scan captures the selected
// register and shifts TDI through it, so TDO is the register contents
// followed by TDI delayed by the register length. IR scans capture the
// mandatory 01 pattern.
type SimJTAG struct {
	mu        sync.Mutex
	info      AdapterInfo
	idcode    uint32
	hasIDCode bool
	respond   func(Scan) ([]byte, error)

	bypass     bool
	speedHz    int
	soft, hard int
	scans      []Scan
}

// NewSimJTAG returns a simulated TAP reporting info, freshly reset.
func NewSimJTAG(info AdapterInfo, opts ...SimOption) *SimJTAG {
	s := &SimJTAG{info: info}
	for _, o := range opts {
		o(s)
	}
	s.bypass = !s.hasIDCode
	return s
}

func (s *SimJTAG) Info() (AdapterInfo, error) { return s.info, nil }

func (s *SimJTAG) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.scan(Scan{IR: true, Bits: bits, TMS: tms, TDI: tdi})
}

func (s *SimJTAG) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.scan(Scan{Bits: bits, TMS: tms, TDI: tdi})
}

func (s *SimJTAG) scan(sc Scan) ([]byte, error) {
	n, err := ValidateShiftBuffers(sc.TMS, sc.TDI, sc.Bits)
	if err != nil {
		return nil, err
	}
	sc.TMS = append([]byte(nil), sc.TMS...)
	sc.TDI = append([]byte(nil), sc.TDI...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.respond != nil {
		tdo, err := s.respond(sc)
		if err != nil {
			return nil, err
		}
		sc.TDO = append([]byte(nil), tdo...)
		s.record(sc)
		return tdo, nil
	}

	var captured []bool
	switch {
	case sc.IR:
		s.bypass = true
		captured = []bool{true, false}
	case s.bypass:
		captured = []bool{false}
	default:
		captured = make([]bool, 32)
		for i := range captured {
			captured[i] = s.idcode>>i&1 == 1
		}
	}

	tdo := make([]byte, n)
	reg := captured
	for i := 0; i < sc.Bits; i++ {
		if reg[0] {
			tdo[i/8] |= 1 << (i % 8)
		}
		in := len(sc.TDI) > 0 && sc.TDI[i/8]&(1<<(i%8)) != 0
		reg = append(reg[1:], in)
	}
	sc.TDO = append([]byte(nil), tdo...)
	s.record(sc)
	return tdo, nil
}

func (s *SimJTAG) record(sc Scan) {
	if len(s.scans) == maxScans {
		s.scans = append(s.scans[:0], s.scans[1:]...)
	}
	s.scans = append(s.scans, sc)
}

// Scans returns the most recent scans, oldest first.
func (s *SimJTAG) Scans() []Scan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Scan(nil), s.scans...)
}

func (s *SimJTAG) ResetTAP(hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hard {
		s.hard++
	} else {
		s.soft++
	}
	s.bypass = !s.hasIDCode
	return nil
}

// Resets returns how many soft and hard resets were requested.
func (s *SimJTAG) Resets() (soft, hard int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soft, s.hard
}

func (s *SimJTAG) SetSpeed(hz int) error {
	lo, hi := s.info.MinFrequency, s.info.MaxFrequency
	if hz <= 0 || hz < lo || (hi > 0 && hz > hi) {
		return fmt.Errorf("transport: speed %dHz outside [%d, %d]", hz, lo, hi)
	}
	s.mu.Lock()
	s.speedHz = hz
	s.mu.Unlock()
	return nil
}

// Speed returns the last accepted TCK frequency, 0 before any.
func (s *SimJTAG) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speedHz
}
