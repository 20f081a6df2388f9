package dcerpc

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

const (
	requestHeaderSize  = HeaderSize + 8
	responseHeaderSize = HeaderSize + 8
	syntaxSize         = 20

	// DefaultMaxFrag is offered in bind; Windows accepts 4280 over SMB
	DefaultMaxFrag = 4280
)

// Bind asks the server to associate context 0 with an interface
type Bind struct {
	CallID      uint32
	MaxXmitFrag uint16
	MaxRecvFrag uint16
	AssocGroup  uint32
	Abstract    SyntaxID
	Transfer    []SyntaxID
}

// Marshal encodes the bind PDU
func (b *Bind) Marshal() ([]byte, error) {
	transfer := b.Transfer
	if len(transfer) == 0 {
		transfer = []SyntaxID{NDRSyntax}
	}
	size := HeaderSize + 12 + 4 + syntaxSize*(1+len(transfer))
	w := encoding.NewWriter(make([]byte, size), 0)

	h := Header{
		PacketType: PacketTypeBind,
		Flags:      PacketFlagFirstFrag | PacketFlagLastFrag,
		FragLength: uint16(size),
		CallID:     b.CallID,
	}
	h.encode(w)
	w.Uint16(b.MaxXmitFrag)
	w.Uint16(b.MaxRecvFrag)
	w.Uint32(b.AssocGroup)
	w.Uint8(1) // one presentation context
	w.Zero(3)

	w.Uint16(0) // context id
	w.Uint8(uint8(len(transfer)))
	w.Zero(1)
	b.Abstract.encode(w)
	for _, ts := range transfer {
		ts.encode(w)
	}
	return w.Bytes(), w.Err()
}

// ContextResult is one entry of a bind_ack result list
type ContextResult struct {
	Result   uint16
	Reason   uint16
	Transfer SyntaxID
}

// BindAck is the server's answer to a bind
type BindAck struct {
	Header
	MaxXmitFrag uint16
	MaxRecvFrag uint16
	AssocGroup  uint32
	SecAddr     string
	Results     []ContextResult
}

// Accepted reports whether the first presentation context was accepted
func (a *BindAck) Accepted() bool {
	return len(a.Results) > 0 && a.Results[0].Result == 0
}

// ParseBindAck decodes a bind_ack PDU
func ParseBindAck(b []byte) (*BindAck, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if h.PacketType != PacketTypeBindAck && h.PacketType != PacketTypeAlterContextResp {
		return nil, fmt.Errorf("%w: expected bind_ack, got %s", ErrMalformed, h.PacketType)
	}
	body, err := fragment(b, h)
	if err != nil {
		return nil, err
	}

	a := &BindAck{Header: *h}
	r := encoding.NewReader(body, 0)
	r.Skip(HeaderSize)
	a.MaxXmitFrag = r.Uint16()
	a.MaxRecvFrag = r.Uint16()
	a.AssocGroup = r.Uint32()
	if n := int(r.Uint16()); n > 0 {
		addr := r.Bytes(n)
		if len(addr) > 0 && addr[len(addr)-1] == 0 {
			addr = addr[:len(addr)-1]
		}
		a.SecAddr = string(addr)
	}
	if pad := r.Offset() % 4; pad != 0 {
		r.Skip(4 - pad)
	}
	count := int(r.Uint8())
	r.Skip(3)
	for i := 0; i < count && r.Err() == nil; i++ {
		res := ContextResult{Result: r.Uint16(), Reason: r.Uint16()}
		res.Transfer.decode(r)
		a.Results = append(a.Results, res)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: bind_ack: %v", ErrMalformed, err)
	}
	return a, nil
}

// parseBindNak returns the rejection reason of a bind_nak PDU
func parseBindNak(b []byte) uint16 {
	if len(b) < HeaderSize+2 {
		return 0
	}
	return encoding.Uint16LE(b[HeaderSize:])
}

// MarshalRequest splits stub into request fragments of at most maxFrag
// bytes each. The alloc hint of every fragment is the remaining stub length.
func MarshalRequest(callID uint32, ctxID, opnum uint16, stub []byte, maxFrag int) ([][]byte, error) {
	chunk := maxFrag - requestHeaderSize
	if chunk <= 0 {
		return nil, fmt.Errorf("max fragment %d too small", maxFrag)
	}

	var frags [][]byte
	for off := 0; off == 0 || off < len(stub); off += chunk {
		end := min(off+chunk, len(stub))
		flags := uint8(0)
		if off == 0 {
			flags |= PacketFlagFirstFrag
		}
		if end == len(stub) {
			flags |= PacketFlagLastFrag
		}

		size := requestHeaderSize + end - off
		w := encoding.NewWriter(make([]byte, size), 0)
		h := Header{PacketType: PacketTypeRequest, Flags: flags, FragLength: uint16(size), CallID: callID}
		h.encode(w)
		w.Uint32(uint32(len(stub) - off))
		w.Uint16(ctxID)
		w.Uint16(opnum)
		w.Write(stub[off:end])
		if err := w.Err(); err != nil {
			return nil, err
		}
		frags = append(frags, w.Bytes())
	}
	return frags, nil
}

// Response is one decoded response fragment
type Response struct {
	Header
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	Stub        []byte
}

// ParseResponse decodes a response fragment. A fault PDU is returned as a
// *FaultError.
func ParseResponse(b []byte) (*Response, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	body, err := fragment(b, h)
	if err != nil {
		return nil, err
	}

	switch h.PacketType {
	case PacketTypeFault:
		if len(body) < responseHeaderSize+4 {
			return nil, fmt.Errorf("%w: short fault", ErrMalformed)
		}
		return nil, &FaultError{Status: encoding.Uint32LE(body[responseHeaderSize:])}
	case PacketTypeResponse:
	default:
		return nil, fmt.Errorf("%w: expected response, got %s", ErrMalformed, h.PacketType)
	}

	r := encoding.NewReader(body, 0)
	r.Skip(HeaderSize)
	resp := &Response{Header: *h, AllocHint: r.Uint32(), ContextID: r.Uint16(), CancelCount: r.Uint8()}
	r.Skip(1)

	// auth trailer, if any, sits at the end of the fragment
	stubLen := r.Remaining()
	if h.AuthLength > 0 {
		stubLen -= int(h.AuthLength) + 8
	}
	if stubLen < 0 {
		return nil, fmt.Errorf("%w: auth length %d exceeds fragment", ErrMalformed, h.AuthLength)
	}
	resp.Stub = append([]byte(nil), r.Bytes(stubLen)...)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}
	return resp, nil
}

// fragment returns exactly the bytes of the PDU described by h
func fragment(b []byte, h *Header) ([]byte, error) {
	if int(h.FragLength) > len(b) {
		return nil, fmt.Errorf("%w: fragment length %d, have %d", ErrBufferTooSmall, h.FragLength, len(b))
	}
	return b[:h.FragLength], nil
}
