package encoding

import (
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Writer is a bounds-checked cursor over a fixed destination. The first
// failing call records its error and turns every later call into a no-op, so
// codecs can write a whole structure and check Err once.
type Writer struct {
	buf    []byte
	off    int
	origin int
	err    error

	// Unicode selects UTF-16LE for String.
	Unicode bool
	// OEM is the code page for non-Unicode strings; nil means DefaultOEM.
	OEM *charmap.Charmap
}

// NewWriter returns a Writer over buf. origin is the offset of buf[0]
// relative to the start of the SMB message and drives string alignment.
func NewWriter(buf []byte, origin int) *Writer {
	return &Writer{buf: buf, origin: origin}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.off }

// Pos returns the current position relative to the message start.
func (w *Writer) Pos() int { return w.origin + w.off }

// Bytes returns the written prefix of the destination.
func (w *Writer) Bytes() []byte { return w.buf[:w.off] }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

func (w *Writer) advance(n int, err error) {
	if err != nil {
		w.err = err
		return
	}
	w.off += n
}

// Uint8 writes a byte.
func (w *Writer) Uint8(v uint8) {
	if w.err == nil {
		w.advance(PutUint8At(w.buf, w.off, v))
	}
}

// Uint16 writes a little-endian uint16.
func (w *Writer) Uint16(v uint16) {
	if w.err == nil {
		w.advance(PutUint16At(w.buf, w.off, v))
	}
}

// Uint32 writes a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	if w.err == nil {
		w.advance(PutUint32At(w.buf, w.off, v))
	}
}

// Uint64 writes a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	if w.err == nil {
		w.advance(PutUint64At(w.buf, w.off, v))
	}
}

// Write copies b.
func (w *Writer) Write(b []byte) {
	if w.err != nil {
		return
	}
	if w.off+len(b) > len(w.buf) {
		w.err = ErrBufferTooSmall
		return
	}
	w.off += copy(w.buf[w.off:], b)
}

// Zero writes n zero bytes.
func (w *Writer) Zero(n int) {
	if w.err != nil {
		return
	}
	if w.off+n > len(w.buf) {
		w.err = ErrBufferTooSmall
		return
	}
	clear(w.buf[w.off : w.off+n])
	w.off += n
}

// Align pads with zeros until Pos is a multiple of n.
func (w *Writer) Align(n int) {
	if p := w.Pos() % n; p != 0 {
		w.Zero(n - p)
	}
}

// String writes a null-terminated string in the writer's dialect.
func (w *Writer) String(s string) {
	if w.err == nil {
		w.advance(WriteString(w.buf, w.off, w.origin, s, w.Unicode, w.OEM))
	}
}

// OEMString writes a null-terminated string in the OEM code page regardless
// of the Unicode setting.
func (w *Writer) OEMString(s string) {
	if w.err == nil {
		w.advance(WriteString(w.buf, w.off, w.origin, s, false, w.OEM))
	}
}

// Time writes an absolute 64-bit time.
func (w *Writer) Time(t time.Time) {
	if w.err == nil {
		w.advance(WriteTime(w.buf, w.off, t))
	}
}

// UTime writes a 32-bit Unix time.
func (w *Writer) UTime(t time.Time) {
	if w.err == nil {
		w.advance(WriteUTime(w.buf, w.off, t))
	}
}

// Reader is the decoding counterpart of Writer. Reads past the end record
// ErrShortBuffer and return zero values.
type Reader struct {
	buf    []byte
	off    int
	origin int
	err    error

	Unicode bool
	OEM     *charmap.Charmap
}

// NewReader returns a Reader over buf; origin is as for NewWriter.
func NewReader(buf []byte, origin int) *Reader {
	return &Reader{buf: buf, origin: origin}
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the unread byte count.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Seek moves the cursor to an absolute offset within the buffer.
func (r *Reader) Seek(off int) {
	if r.err != nil {
		return
	}
	if off < 0 || off > len(r.buf) {
		r.err = ErrShortBuffer
		return
	}
	r.off = off
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) { r.Seek(r.off + n) }

// Uint8 reads a byte.
func (r *Reader) Uint8() uint8 {
	if r.err != nil {
		return 0
	}
	v, n, err := Uint8At(r.buf, r.off)
	r.step(n, err)
	return v
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	if r.err != nil {
		return 0
	}
	v, n, err := Uint16At(r.buf, r.off)
	r.step(n, err)
	return v
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := Uint32At(r.buf, r.off)
	r.step(n, err)
	return v
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := Uint64At(r.buf, r.off)
	r.step(n, err)
	return v
}

// Bytes returns the next n bytes, aliasing the source.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// String reads a null-terminated string in the reader's dialect whose body
// is at most max bytes.
func (r *Reader) String(max int) string {
	if r.err != nil {
		return ""
	}
	s, n, err := ReadString(r.buf, r.off, r.origin, max, r.Unicode, r.OEM)
	r.step(n, err)
	return s
}

// OEMString reads a null-terminated OEM string.
func (r *Reader) OEMString(max int) string {
	if r.err != nil {
		return ""
	}
	s, n, err := ReadString(r.buf, r.off, r.origin, max, false, r.OEM)
	r.step(n, err)
	return s
}

// Time reads an absolute 64-bit time.
func (r *Reader) Time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	t, n, err := ReadTime(r.buf, r.off)
	r.step(n, err)
	return t
}

// UTime reads a 32-bit Unix time.
func (r *Reader) UTime() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	t, n, err := ReadUTime(r.buf, r.off)
	r.step(n, err)
	return t
}

func (r *Reader) step(n int, err error) {
	if err != nil {
		r.err = err
		return
	}
	r.off += n
}
