// Package dcerpc frames connection-oriented DCE/RPC calls over SMB1 named
// pipes. Stub data is carried opaquely; callers marshal their own NDR.
package dcerpc

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// RPC protocol version
const (
	RPCVersionMajor = 5
	RPCVersionMinor = 0
)

// PacketType is the PTYPE field of a connection-oriented PDU
type PacketType uint8

const (
	PacketTypeRequest          PacketType = 0
	PacketTypeResponse         PacketType = 2
	PacketTypeFault            PacketType = 3
	PacketTypeBind             PacketType = 11
	PacketTypeBindAck          PacketType = 12
	PacketTypeBindNak          PacketType = 13
	PacketTypeAlterContext     PacketType = 14
	PacketTypeAlterContextResp PacketType = 15
	PacketTypeShutdown         PacketType = 17
	PacketTypeCOCancel         PacketType = 18
	PacketTypeOrphaned         PacketType = 19
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeRequest:
		return "request"
	case PacketTypeResponse:
		return "response"
	case PacketTypeFault:
		return "fault"
	case PacketTypeBind:
		return "bind"
	case PacketTypeBindAck:
		return "bind_ack"
	case PacketTypeBindNak:
		return "bind_nak"
	case PacketTypeAlterContext:
		return "alter_context"
	case PacketTypeAlterContextResp:
		return "alter_context_resp"
	case PacketTypeShutdown:
		return "shutdown"
	case PacketTypeCOCancel:
		return "co_cancel"
	case PacketTypeOrphaned:
		return "orphaned"
	}
	return fmt.Sprintf("ptype(%d)", uint8(t))
}

// Packet flags
const (
	PacketFlagFirstFrag  uint8 = 0x01
	PacketFlagLastFrag   uint8 = 0x02
	PacketFlagConcMpx    uint8 = 0x10
	PacketFlagDidNotExec uint8 = 0x20
	PacketFlagObject     uint8 = 0x80
)

// NDRDataRepresentation is little-endian integers, ASCII, IEEE floats
const NDRDataRepresentation = 0x00000010

// HeaderSize is the length of the common header
const HeaderSize = 16

// Header is the common header of every connection-oriented PDU
type Header struct {
	PacketType PacketType
	Flags      uint8
	FragLength uint16
	AuthLength uint16
	CallID     uint32
}

// First reports whether the PDU opens a call
func (h *Header) First() bool { return h.Flags&PacketFlagFirstFrag != 0 }

// Last reports whether the PDU closes a call
func (h *Header) Last() bool { return h.Flags&PacketFlagLastFrag != 0 }

func (h *Header) encode(w *encoding.Writer) {
	w.Uint8(RPCVersionMajor)
	w.Uint8(RPCVersionMinor)
	w.Uint8(uint8(h.PacketType))
	w.Uint8(h.Flags)
	w.Uint32(NDRDataRepresentation)
	w.Uint16(h.FragLength)
	w.Uint16(h.AuthLength)
	w.Uint32(h.CallID)
}

// ParseHeader decodes the common header at the start of b
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, ErrBufferTooSmall
	}
	r := encoding.NewReader(b, 0)
	major, minor := r.Uint8(), r.Uint8()
	h := &Header{PacketType: PacketType(r.Uint8()), Flags: r.Uint8()}
	if drep := r.Uint32(); drep&0xF0 != NDRDataRepresentation {
		return nil, fmt.Errorf("%w: big-endian data representation 0x%08X", ErrMalformed, drep)
	}
	h.FragLength = r.Uint16()
	h.AuthLength = r.Uint16()
	h.CallID = r.Uint32()
	if major != RPCVersionMajor || minor > 1 {
		return nil, fmt.Errorf("%w: version %d.%d", ErrMalformed, major, minor)
	}
	if h.FragLength < HeaderSize {
		return nil, fmt.Errorf("%w: fragment length %d", ErrMalformed, h.FragLength)
	}
	return h, r.Err()
}
