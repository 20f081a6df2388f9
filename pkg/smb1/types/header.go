package types

import (
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// Header represents an SMB1 message header (32 bytes)
type Header struct {
	Protocol    [4]byte  // 0xFF 'S' 'M' 'B'
	Command     Command  // Command code
	Status      NTStatus // NT status (responses)
	Flags       uint8    // Flags
	Flags2      uint16   // Flags2
	PIDHigh     uint16   // High part of PID
	SecuritySig [8]byte  // Signature placeholder, never computed
	Reserved    uint16   // Reserved
	TID         uint16   // Tree ID
	PIDLow      uint16   // Low part of PID
	UID         uint16   // User ID
	MID         uint16   // Multiplex ID
}

// NewHeader creates a request header with canonical, case-insensitive paths,
// long names and NT status codes. Unicode adds the Unicode flag.
func NewHeader(cmd Command, mid uint16, unicode bool) *Header {
	h := &Header{
		Protocol: SMB1ProtocolID,
		Command:  cmd,
		Flags:    FlagsCaseless | FlagsCanonical,
		Flags2:   Flags2LongNames | Flags2NTStatusCode,
		MID:      mid,
	}
	if unicode {
		h.Flags2 |= Flags2Unicode
	}
	return h
}

// Encode writes the header at dst[off:] and returns HeaderSize.
func (h *Header) Encode(dst []byte, off int) (int, error) {
	if off < 0 || off+HeaderSize > len(dst) {
		return 0, ErrBufferTooSmall
	}
	b := dst[off : off+HeaderSize]

	copy(b[0:4], SMB1ProtocolID[:])
	b[4] = byte(h.Command)
	encoding.PutUint32LE(b[5:9], uint32(h.Status))
	b[9] = h.Flags
	encoding.PutUint16LE(b[10:12], h.Flags2)
	encoding.PutUint16LE(b[12:14], h.PIDHigh)
	copy(b[14:22], h.SecuritySig[:])
	encoding.PutUint16LE(b[22:24], h.Reserved)
	encoding.PutUint16LE(b[24:26], h.TID)
	encoding.PutUint16LE(b[26:28], h.PIDLow)
	encoding.PutUint16LE(b[28:30], h.UID)
	encoding.PutUint16LE(b[30:32], h.MID)

	return HeaderSize, nil
}

// Decode parses the header at src[off:] and returns HeaderSize.
func (h *Header) Decode(src []byte, off int) (int, error) {
	if off < 0 || off+HeaderSize > len(src) {
		return 0, NewDecodeError("header", off, ErrTruncated)
	}
	b := src[off : off+HeaderSize]

	copy(h.Protocol[:], b[0:4])
	switch h.Protocol {
	case SMB1ProtocolID:
	case SMB2ProtocolID:
		return 0, NewDecodeError("header", off, ErrUnsupportedProtocol)
	default:
		return 0, NewDecodeError("header", off, ErrBadMarker)
	}

	h.Command = Command(b[4])
	h.Status = NTStatus(encoding.Uint32LE(b[5:9]))
	h.Flags = b[9]
	h.Flags2 = encoding.Uint16LE(b[10:12])
	h.PIDHigh = encoding.Uint16LE(b[12:14])
	copy(h.SecuritySig[:], b[14:22])
	h.Reserved = encoding.Uint16LE(b[22:24])
	h.TID = encoding.Uint16LE(b[24:26])
	h.PIDLow = encoding.Uint16LE(b[26:28])
	h.UID = encoding.Uint16LE(b[28:30])
	h.MID = encoding.Uint16LE(b[30:32])

	return HeaderSize, nil
}

// IsResponse returns true if this is a response message
func (h *Header) IsResponse() bool {
	return h.Flags&FlagsResponse != 0
}

// IsUnicode reports whether strings in the message are UTF-16LE.
func (h *Header) IsUnicode() bool {
	return h.Flags2&Flags2Unicode != 0
}

// PID returns the 32-bit process id split across PIDHigh and PIDLow.
func (h *Header) PID() uint32 {
	return uint32(h.PIDHigh)<<16 | uint32(h.PIDLow)
}

// SetPID splits pid into PIDHigh and PIDLow.
func (h *Header) SetPID(pid uint32) {
	h.PIDHigh = uint16(pid >> 16)
	h.PIDLow = uint16(pid)
}
