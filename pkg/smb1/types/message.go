package types

import (
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// Message is one SMB1 message: header, parameter words and byte block.
// Decode aliases Words and Bytes into the source buffer.
type Message struct {
	Header Header
	Words  []byte
	Bytes  []byte
}

// Size returns the encoded length of the message.
func (m *Message) Size() int {
	return HeaderSize + 1 + len(m.Words) + 2 + len(m.Bytes)
}

// WordsOffset is the offset of the first parameter word from the header start.
const WordsOffset = HeaderSize + 1

// BytesOffset returns the offset of the byte block from the header start for
// a message carrying wordCount words.
func BytesOffset(wordCount int) int {
	return HeaderSize + 1 + 2*wordCount + 2
}

// Encode writes the message at dst[off:] and returns the bytes written.
func (m *Message) Encode(dst []byte, off int) (int, error) {
	if len(m.Words)%2 != 0 {
		return 0, ErrOddWords
	}
	if len(m.Words)/2 > 0xFF || len(m.Bytes) > 0xFFFF {
		return 0, ErrBufferTooSmall
	}
	if off < 0 || off+m.Size() > len(dst) {
		return 0, ErrBufferTooSmall
	}

	n, err := m.Header.Encode(dst, off)
	if err != nil {
		return 0, err
	}
	p := off + n
	dst[p] = byte(len(m.Words) / 2)
	p++
	p += copy(dst[p:], m.Words)
	encoding.PutUint16LE(dst[p:], uint16(len(m.Bytes)))
	p += 2
	p += copy(dst[p:], m.Bytes)

	return p - off, nil
}

// Marshal encodes the message into a new slice.
func (m *Message) Marshal() ([]byte, error) {
	buf := make([]byte, m.Size())
	if _, err := m.Encode(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode parses a message at src[off:] and returns the bytes consumed.
func (m *Message) Decode(src []byte, off int) (int, error) {
	n, err := m.Header.Decode(src, off)
	if err != nil {
		return 0, err
	}
	p := off + n

	wc, _, err := encoding.Uint8At(src, p)
	if err != nil {
		return 0, NewDecodeError("word count", p, ErrTruncated)
	}
	p++
	if p+int(wc)*2 > len(src) {
		return 0, NewDecodeError("parameter words", p, ErrTruncated)
	}
	m.Words = src[p : p+int(wc)*2]
	p += int(wc) * 2

	bc, _, err := encoding.Uint16At(src, p)
	if err != nil {
		// Some servers omit the byte count on error responses.
		if wc == 0 && p == len(src) {
			m.Bytes = nil
			return p - off, nil
		}
		return 0, NewDecodeError("byte count", p, ErrTruncated)
	}
	p += 2
	if p+int(bc) > len(src) {
		return 0, NewDecodeError("byte block", p, ErrTruncated)
	}
	m.Bytes = src[p : p+int(bc)]
	p += int(bc)

	return p - off, nil
}

// Unmarshal decodes a whole received buffer.
func (m *Message) Unmarshal(buf []byte) error {
	_, err := m.Decode(buf, 0)
	return err
}

// WordCount returns the number of parameter words.
func (m *Message) WordCount() int {
	return len(m.Words) / 2
}
