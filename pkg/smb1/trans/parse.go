package trans

import (
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// maxNameLength bounds the transaction name read from a primary request.
const maxNameLength = 512

// RequestPacket is one transaction request packet read back from the wire.
// Parameters and Data are this packet's slices only; the displacements in
// Fragment place them in the whole transaction.
type RequestPacket struct {
	Fragment
	Primary             bool
	TotalParameterCount int
	TotalDataCount      int

	// Setup, SubCommand and Name are only set on primary packets.
	Setup      []byte
	SubCommand uint16
	Name       string

	Parameters []byte
	Data       []byte
}

// ParseRequest reads the transaction layout of a primary or secondary
// request. Offsets in the words are relative to the header start.
func ParseRequest(msg *types.Message) (*RequestPacket, error) {
	fam, err := familyOf(msg.Header.Command)
	if err != nil {
		return nil, err
	}
	p := &RequestPacket{Primary: msg.Header.Command == fam.primary}
	p.Command = msg.Header.Command

	rd := encoding.NewReader(msg.Words, types.WordsOffset)
	switch {
	case p.Primary && fam.wide:
		rd.Skip(3) // max setup, reserved
		p.TotalParameterCount = int(rd.Uint32())
		p.TotalDataCount = int(rd.Uint32())
		rd.Skip(8) // max parameter and data counts
		p.ParameterCount = int(rd.Uint32())
		p.ParameterOffset = int(rd.Uint32())
		p.DataCount = int(rd.Uint32())
		p.DataOffset = int(rd.Uint32())
		setupCount := int(rd.Uint8())
		p.SubCommand = rd.Uint16()
		p.Setup = rd.Bytes(2 * setupCount)
	case p.Primary:
		p.TotalParameterCount = int(rd.Uint16())
		p.TotalDataCount = int(rd.Uint16())
		rd.Skip(14) // max counts, flags, timeout
		p.ParameterCount = int(rd.Uint16())
		p.ParameterOffset = int(rd.Uint16())
		p.DataCount = int(rd.Uint16())
		p.DataOffset = int(rd.Uint16())
		setupCount := int(rd.Uint8())
		rd.Skip(1)
		p.Setup = rd.Bytes(2 * setupCount)
		if len(p.Setup) >= 2 {
			p.SubCommand = encoding.Uint16LE(p.Setup)
		}
	case fam.wide:
		rd.Skip(3)
		p.TotalParameterCount = int(rd.Uint32())
		p.TotalDataCount = int(rd.Uint32())
		p.ParameterCount = int(rd.Uint32())
		p.ParameterOffset = int(rd.Uint32())
		p.ParameterDisplacement = int(rd.Uint32())
		p.DataCount = int(rd.Uint32())
		p.DataOffset = int(rd.Uint32())
		p.DataDisplacement = int(rd.Uint32())
	default:
		p.TotalParameterCount = int(rd.Uint16())
		p.TotalDataCount = int(rd.Uint16())
		p.ParameterCount = int(rd.Uint16())
		p.ParameterOffset = int(rd.Uint16())
		p.ParameterDisplacement = int(rd.Uint16())
		p.DataCount = int(rd.Uint16())
		p.DataOffset = int(rd.Uint16())
		p.DataDisplacement = int(rd.Uint16())
	}
	if err := rd.Err(); err != nil {
		return nil, types.NewDecodeError("transaction request words", types.WordsOffset+rd.Offset(), err)
	}

	base := types.BytesOffset(msg.WordCount())
	if p.Parameters, err = section(msg.Bytes, base, p.ParameterOffset, p.ParameterCount); err != nil {
		return nil, err
	}
	if p.Data, err = section(msg.Bytes, base, p.DataOffset, p.DataCount); err != nil {
		return nil, err
	}

	if p.Primary && fam.named {
		name, _, err := encoding.ReadString(msg.Bytes, 0, base, maxNameLength, msg.Header.IsUnicode(), nil)
		if err != nil {
			return nil, types.NewDecodeError("transaction name", base, err)
		}
		p.Name = name
	}
	return p, nil
}

// section slices count bytes at the header-relative offset off out of a
// byte block starting at base.
func section(b []byte, base, off, count int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	start := off - base
	if count < 0 || start < 0 || start+count > len(b) {
		return nil, types.NewDecodeError("request fragment", off, ErrOutOfRange)
	}
	return b[start : start+count], nil
}
