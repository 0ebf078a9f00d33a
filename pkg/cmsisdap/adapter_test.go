package cmsisdap

import (
	"bytes"
	"errors"
	"testing"
)

type tapState int

const (
	testLogicReset tapState = iota
	runTestIdle
	selectDR
	captureDR
	shiftDR
	exit1DR
	pauseDR
	exit2DR
	updateDR
	selectIR
	captureIR
	shiftIR
	exit1IR
	pauseIR
	exit2IR
	updateIR
)

// transitions[state] = {state after TMS=0, state after TMS=1}
var transitions = map[tapState][2]tapState{
	testLogicReset: {runTestIdle, testLogicReset},
	runTestIdle:    {runTestIdle, selectDR},
	selectDR:       {captureDR, selectIR},
	captureDR:      {shiftDR, exit1DR},
	shiftDR:        {shiftDR, exit1DR},
	exit1DR:        {pauseDR, updateDR},
	pauseDR:        {pauseDR, exit2DR},
	exit2DR:        {shiftDR, updateDR},
	updateDR:       {runTestIdle, selectDR},
	selectIR:       {captureIR, testLogicReset},
	captureIR:      {shiftIR, exit1IR},
	shiftIR:        {shiftIR, exit1IR},
	exit1IR:        {pauseIR, updateIR},
	pauseIR:        {pauseIR, exit2IR},
	exit2IR:        {shiftIR, updateIR},
	updateIR:       {runTestIdle, selectDR},
}

// fakeDAP answers CMSIS-DAP commands. With echo set every clock returns
// its TDI; otherwise it models a TAP whose data register captures idcode.
type fakeDAP struct {
	packetSize int
	echo       bool
	idcode     uint32
	failOn     byte

	state    tapState
	dr       uint32
	commands [][]byte
	resets   int
	closed   bool
}

func newFakeDAP() *fakeDAP {
	return &fakeDAP{packetSize: 64, idcode: 0x4ba00477}
}

func (f *fakeDAP) PacketSize() int { return f.packetSize }

func (f *fakeDAP) Close() error {
	f.closed = true
	return nil
}

func (f *fakeDAP) WriteRead(cmd []byte) ([]byte, error) {
	f.commands = append(f.commands, append([]byte(nil), cmd...))
	if len(cmd) > f.packetSize {
		return nil, errors.New("command exceeds packet size")
	}
	if f.failOn != 0 && cmd[0] == f.failOn {
		return []byte{cmd[0], 0xFF}, nil
	}
	switch cmd[0] {
	case CmdInfo:
		s := map[byte]string{InfoVendor: "Google\x00", InfoProduct: "HyperDebug", InfoSerial: "HD-1", InfoFirmware: "1.0"}[cmd[1]]
		return append([]byte{CmdInfo, byte(len(s))}, s...), nil
	case CmdConnect:
		return []byte{CmdConnect, cmd[1]}, nil
	case CmdResetTarget:
		f.resets++
		return []byte{CmdResetTarget, statusOK, 0}, nil
	case CmdJTAGSequence:
		return f.sequence(cmd), nil
	default:
		return []byte{cmd[0], statusOK}, nil
	}
}

func (f *fakeDAP) sequence(cmd []byte) []byte {
	resp := []byte{CmdJTAGSequence, statusOK}
	off := 2
	for i := 0; i < int(cmd[1]); i++ {
		info := cmd[off]
		n := int(info & seqTCKMask)
		if n == 0 {
			n = 64
		}
		tdi := cmd[off+1 : off+1+(n+7)/8]
		off += 1 + (n+7)/8
		tdo := make([]byte, (n+7)/8)
		tms := info&seqTMS != 0
		for b := 0; b < n; b++ {
			in := bit(tdi, b)
			out := in
			if !f.echo {
				out = false
				if f.state == captureDR {
					f.dr = f.idcode
				}
				if f.state == shiftDR {
					out = f.dr&1 == 1
					f.dr >>= 1
					if in {
						f.dr |= 1 << 31
					}
				}
				t := 0
				if tms {
					t = 1
				}
				f.state = transitions[f.state][t]
			}
			if out {
				tdo[b/8] |= 1 << (b % 8)
			}
		}
		if info&seqTDO != 0 {
			resp = append(resp, tdo...)
		}
	}
	return resp
}

func newAdapter(t *testing.T, f *fakeDAP) *Adapter {
	t.Helper()
	a, err := New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewQueriesInfo(t *testing.T) {
	f := newFakeDAP()
	a := newAdapter(t, f)

	info, _ := a.Info()
	if info.Vendor != "Google" || info.Model != "HyperDebug" || info.SerialNumber != "HD-1" {
		t.Errorf("Info = %+v", info)
	}
	if a.Speed() != defaultSpeed {
		t.Errorf("Speed = %d, want %d", a.Speed(), defaultSpeed)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.closed {
		t.Error("connection not closed")
	}
	if last := f.commands[len(f.commands)-1]; last[0] != CmdDisconnect {
		t.Errorf("last command 0x%02X, want disconnect", last[0])
	}
}

func TestNewClosesOnFailure(t *testing.T) {
	f := newFakeDAP()
	f.failOn = CmdSWJClock
	if _, err := New(f); !errors.Is(err, ErrResponse) {
		t.Fatalf("err = %v, want ErrResponse", err)
	}
	if !f.closed {
		t.Error("connection not closed after failed init")
	}
}

func TestShiftEchoAcrossSequences(t *testing.T) {
	tests := []struct {
		name string
		tms  []byte
		bits int
	}{
		{"no tms", nil, 12},
		{"tms change mid byte", []byte{0x0F, 0x00}, 16},
		{"misaligned tail", []byte{0x00, 0x80, 0x01}, 17},
		{"longer than one sequence", nil, 150},
		{"spans several packets", nil, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDAP()
			f.echo = true
			a := newAdapter(t, f)

			tdi := make([]byte, (tt.bits+7)/8)
			for i := range tdi {
				tdi[i] = byte(0xA5 ^ i*7)
			}
			if r := tt.bits % 8; r != 0 {
				tdi[len(tdi)-1] &= byte(1<<r) - 1
			}
			tdo, err := a.ShiftDR(tt.tms, tdi, tt.bits)
			if err != nil {
				t.Fatalf("ShiftDR: %v", err)
			}
			if !bytes.Equal(tdo, tdi) {
				t.Errorf("tdo = %x, want %x", tdo, tdi)
			}
		})
	}
}

func TestSplitSequences(t *testing.T) {
	seqs := splitSequences([]byte{0x0F, 0x00}, []byte{0xAA, 0x55}, 16)
	if len(seqs) != 2 {
		t.Fatalf("got %d sequences, want 2", len(seqs))
	}
	if seqs[0].Bits != 4 || !seqs[0].TMS || seqs[1].Bits != 12 || seqs[1].TMS {
		t.Errorf("sequences = %+v", seqs)
	}
	// 0x55AA >> 4 = 0x55A
	if !bytes.Equal(seqs[1].TDI, []byte{0x5A, 0x05}) {
		t.Errorf("second TDI = %x", seqs[1].TDI)
	}

	long := splitSequences(nil, nil, 130)
	if len(long) != 3 || long[0].Bits != 64 || long[2].Bits != 2 {
		t.Errorf("long split = %d sequences", len(long))
	}
	if long[0].info()&seqTCKMask != 0 {
		t.Error("64 clocks must encode as 0")
	}
}

func TestIDCodeWalksTAP(t *testing.T) {
	f := newFakeDAP()
	a := newAdapter(t, f)

	id, err := a.IDCode()
	if err != nil {
		t.Fatalf("IDCode: %v", err)
	}
	if id != f.idcode {
		t.Fatalf("IDCode = 0x%08X, want 0x%08X", id, f.idcode)
	}
	if f.state != runTestIdle {
		t.Errorf("TAP left in state %d, want Run-Test/Idle", f.state)
	}
}

func TestResetTAP(t *testing.T) {
	f := newFakeDAP()
	a := newAdapter(t, f)
	f.state = shiftIR

	if err := a.ResetTAP(false); err != nil {
		t.Fatalf("soft reset: %v", err)
	}
	if f.state != testLogicReset {
		t.Errorf("state after soft reset = %d", f.state)
	}
	if err := a.ResetTAP(true); err != nil {
		t.Fatalf("hard reset: %v", err)
	}
	if f.resets != 1 {
		t.Errorf("target resets = %d", f.resets)
	}
}

func TestSetSpeedRange(t *testing.T) {
	a := newAdapter(t, newFakeDAP())
	if err := a.SetSpeed(maxSpeed + 1); err == nil {
		t.Error("expected error above maximum")
	}
	if err := a.SetSpeed(4_000_000); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if a.Speed() != 4_000_000 {
		t.Errorf("Speed = %d", a.Speed())
	}
}

func TestShiftFailureStatus(t *testing.T) {
	f := newFakeDAP()
	a := newAdapter(t, f)
	f.failOn = CmdJTAGSequence
	if _, err := a.ShiftIR(nil, []byte{0x1}, 5); !errors.Is(err, ErrResponse) {
		t.Fatalf("err = %v, want ErrResponse", err)
	}
}
