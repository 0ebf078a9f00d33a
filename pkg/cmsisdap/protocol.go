// Package cmsisdap speaks the CMSIS-DAP command set used by HyperDebug
// firmware to expose JTAG over a USB bulk interface.
package cmsisdap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command IDs.
const (
	CmdInfo         = 0x00
	CmdConnect      = 0x02
	CmdDisconnect   = 0x03
	CmdResetTarget  = 0x0A
	CmdSWJClock     = 0x11
	CmdJTAGSequence = 0x14
)

// DAP_Info IDs.
const (
	InfoVendor     = 0x01
	InfoProduct    = 0x02
	InfoSerial     = 0x03
	InfoFirmware   = 0x04
	InfoPacketSize = 0xFF
)

const (
	portJTAG = 2

	statusOK = 0x00

	seqTCKMask = 0x3F // 0 encodes 64 clocks
	seqTMS     = 0x40
	seqTDO     = 0x80

	// MaxSequenceBits is the longest run one sequence descriptor can clock.
	MaxSequenceBits = 64
)

// ErrResponse is returned for malformed or failed responses.
var ErrResponse = errors.New("cmsisdap: bad response")

// Sequence is one DAP_JTAG_Sequence descriptor: a run of TCK clocks with a
// constant TMS level.
type Sequence struct {
	Bits    int
	TMS     bool
	Capture bool
	TDI     []byte // (Bits+7)/8 bytes, LSB first
}

func (s Sequence) info() byte {
	b := byte(s.Bits & seqTCKMask)
	if s.TMS {
		b |= seqTMS
	}
	if s.Capture {
		b |= seqTDO
	}
	return b
}

func (s Sequence) bytes() int { return (s.Bits + 7) / 8 }

// EncodeSequences builds a DAP_JTAG_Sequence command.
func EncodeSequences(seqs []Sequence) []byte {
	cmd := []byte{CmdJTAGSequence, byte(len(seqs))}
	for _, s := range seqs {
		tdi := make([]byte, s.bytes())
		copy(tdi, s.TDI)
		cmd = append(cmd, s.info())
		cmd = append(cmd, tdi...)
	}
	return cmd
}

// sequenceSizes returns the encoded command and response length of seqs.
func sequenceSizes(seqs []Sequence) (cmd, resp int) {
	cmd, resp = 2, 2
	for _, s := range seqs {
		cmd += 1 + s.bytes()
		if s.Capture {
			resp += s.bytes()
		}
	}
	return cmd, resp
}

// DecodeSequences returns the captured TDO of each capturing sequence, in
// order.
func DecodeSequences(resp []byte, seqs []Sequence) ([][]byte, error) {
	if err := checkStatus(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}
	var out [][]byte
	off := 2
	for _, s := range seqs {
		if !s.Capture {
			continue
		}
		n := s.bytes()
		if off+n > len(resp) {
			return nil, fmt.Errorf("%w: truncated TDO", ErrResponse)
		}
		out = append(out, append([]byte(nil), resp[off:off+n]...))
		off += n
	}
	return out, nil
}

// EncodeInfo builds a DAP_Info command.
func EncodeInfo(id byte) []byte { return []byte{CmdInfo, id} }

// DecodeInfo returns the payload of a DAP_Info response.
func DecodeInfo(resp []byte) ([]byte, error) {
	if len(resp) < 2 || resp[0] != CmdInfo {
		return nil, fmt.Errorf("%w: info", ErrResponse)
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return nil, fmt.Errorf("%w: truncated info", ErrResponse)
	}
	return resp[2 : 2+n], nil
}

// EncodeConnect builds a DAP_Connect command for the JTAG port.
func EncodeConnect() []byte { return []byte{CmdConnect, portJTAG} }

// DecodeConnect checks that the firmware switched to JTAG.
func DecodeConnect(resp []byte) error {
	if len(resp) < 2 || resp[0] != CmdConnect {
		return fmt.Errorf("%w: connect", ErrResponse)
	}
	if resp[1] != portJTAG {
		return fmt.Errorf("%w: connected port %d, want JTAG", ErrResponse, resp[1])
	}
	return nil
}

// EncodeClock builds a DAP_SWJ_Clock command.
func EncodeClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func checkStatus(resp []byte, cmd byte) error {
	if len(resp) < 2 || resp[0] != cmd {
		return fmt.Errorf("%w: command 0x%02X", ErrResponse, cmd)
	}
	if resp[1] != statusOK {
		return fmt.Errorf("%w: command 0x%02X status 0x%02X", ErrResponse, cmd, resp[1])
	}
	return nil
}

// copyBits copies n bits from src starting at bit so into dst starting at
// bit do. Bits are LSB first within each byte.
func copyBits(dst []byte, do int, src []byte, so, n int) {
	for i := 0; i < n; i++ {
		s := so + i
		d := do + i
		if src[s/8]&(1<<(s%8)) != 0 {
			dst[d/8] |= 1 << (d % 8)
		} else {
			dst[d/8] &^= 1 << (d % 8)
		}
	}
}

func bit(buf []byte, i int) bool { return buf[i/8]&(1<<(i%8)) != 0 }
