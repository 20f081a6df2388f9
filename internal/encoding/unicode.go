// Package encoding provides UTF-16LE and OEM string encoding for SMB1.
// SMB1 carries strings either as UTF-16LE (when the Unicode flag is negotiated)
// or in a single-byte OEM code page.
package encoding

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// ErrStringTooLong is returned when no terminator is found within the
// caller's maximum length.
var ErrStringTooLong = errors.New("string exceeds maximum length")

// DefaultOEM is the code page used for non-Unicode strings unless configured.
var DefaultOEM = charmap.CodePage850

// OEMByName resolves a code page name as used in configuration files.
func OEMByName(name string) (*charmap.Charmap, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cp850", "ibm850":
		return charmap.CodePage850, nil
	case "cp437", "ibm437":
		return charmap.CodePage437, nil
	case "cp852", "ibm852":
		return charmap.CodePage852, nil
	case "cp866", "ibm866":
		return charmap.CodePage866, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unknown OEM code page %q", name)
	}
}

// ToUTF16LE converts a Go string to UTF-16LE encoded bytes.
func ToUTF16LE(s string) []byte {
	runes := utf16.Encode([]rune(s))

	b := make([]byte, len(runes)*2)
	for i, r := range runes {
		b[i*2] = byte(r)
		b[i*2+1] = byte(r >> 8)
	}
	return b
}

// FromUTF16LE converts UTF-16LE encoded bytes to a Go string.
func FromUTF16LE(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	// Ensure even number of bytes
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}

	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}

	return string(utf16.Decode(u16s))
}

// ToUTF16LEWithNull converts a string to UTF-16LE with a null terminator.
func ToUTF16LEWithNull(s string) []byte {
	b := ToUTF16LE(s)
	return append(b, 0, 0)
}

// ToOEM encodes s in the given code page. Runes the code page cannot
// represent become '?'.
func ToOEM(cm *charmap.Charmap, s string) []byte {
	if cm == nil {
		cm = DefaultOEM
	}
	b := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := cm.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b = append(b, c)
	}
	return b
}

// FromOEM decodes single-byte code page text.
func FromOEM(cm *charmap.Charmap, b []byte) string {
	if cm == nil {
		cm = DefaultOEM
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(cm.DecodeByte(c))
	}
	return sb.String()
}

// StringWireLength returns the number of bytes WriteString would emit for s
// when written at pos, an offset relative to the message start.
func StringWireLength(s string, pos int, unicode bool, cm *charmap.Charmap) int {
	if !unicode {
		return len(ToOEM(cm, s)) + 1
	}
	n := len(utf16.Encode([]rune(s)))*2 + 2
	if pos%2 != 0 {
		n++
	}
	return n
}

// WriteString writes a null-terminated string at off. origin is the offset of
// dst[0] relative to the message start; Unicode strings are 2-byte aligned
// relative to the message start, so one pad byte is inserted at odd positions.
func WriteString(dst []byte, off, origin int, s string, unicode bool, cm *charmap.Charmap) (int, error) {
	var enc []byte
	pad := 0
	if unicode {
		if (origin+off)%2 != 0 {
			pad = 1
		}
		enc = ToUTF16LEWithNull(s)
	} else {
		enc = append(ToOEM(cm, s), 0)
	}
	if off < 0 || off+pad+len(enc) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	if pad == 1 {
		dst[off] = 0
	}
	copy(dst[off+pad:], enc)
	return pad + len(enc), nil
}

// ReadString reads a null-terminated string at off. max bounds the encoded
// length of the string body in bytes. It returns the string and the bytes
// consumed, including alignment padding and the terminator. A body that ends
// with the source but within max is returned as-is.
func ReadString(src []byte, off, origin, max int, unicode bool, cm *charmap.Charmap) (string, int, error) {
	if off < 0 || off > len(src) {
		return "", 0, ErrShortBuffer
	}
	start := off
	if unicode {
		if (origin+off)%2 != 0 {
			off++
		}
		if off >= len(src) {
			return "", len(src) - start, nil
		}
		end := off
		for {
			if end+1 >= len(src) {
				if end-off > max {
					return "", 0, ErrStringTooLong
				}
				return FromUTF16LE(src[off:min(end, len(src))]), len(src) - start, nil
			}
			if src[end] == 0 && src[end+1] == 0 {
				break
			}
			end += 2
			if end-off > max {
				return "", 0, ErrStringTooLong
			}
		}
		return FromUTF16LE(src[off:end]), end + 2 - start, nil
	}

	end := off
	for end < len(src) && src[end] != 0 {
		end++
		if end-off > max {
			return "", 0, ErrStringTooLong
		}
	}
	if end == len(src) {
		return FromOEM(cm, src[off:end]), end - start, nil
	}
	return FromOEM(cm, src[off:end]), end + 1 - start, nil
}
