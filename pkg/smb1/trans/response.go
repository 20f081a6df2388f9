package trans

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// DefaultMaxTotal bounds the reassembly buffer of one response.
const DefaultMaxTotal = 16 * 1024 * 1024

// Response reassembles the packets of one transaction response and hands
// the completed sections to its Codec.
type Response struct {
	codec Codec
	fam   *family

	// MaxTotal bounds totalParameterCount+totalDataCount.
	MaxTotal int

	header types.Header
	status types.NTStatus
	setup  []byte

	buf          []byte
	bufDataStart int
	allocated    bool

	totalParams int
	totalData   int

	paramsDone bool
	dataDone   bool
	more       bool
	fragments  int
}

// NewResponse prepares reassembly for c.
func NewResponse(c Codec) (*Response, error) {
	fam, err := familyOf(c.Kind().Command)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", c.Kind(), err)
	}
	return &Response{
		codec:    c,
		fam:      fam,
		MaxTotal: DefaultMaxTotal,
		more:     true,
	}, nil
}

// IsInterim reports whether msg is the empty interim response a server
// sends after a primary request announcing more secondaries.
func IsInterim(msg *types.Message) bool {
	return msg.Header.Status == types.StatusSuccess && msg.WordCount() == 0 && len(msg.Bytes) == 0
}

// HasMore reports whether more response packets are expected.
func (r *Response) HasMore() bool { return r.more }

// Status returns the status of the last packet.
func (r *Response) Status() types.NTStatus { return r.status }

// Header returns the header of the last packet.
func (r *Response) Header() types.Header { return r.header }

// Setup returns the setup words of the last packet.
func (r *Response) Setup() []byte { return r.setup }

// Codec returns the payload being decoded.
func (r *Response) Codec() Codec { return r.codec }

// ParametersDone reports whether every parameter byte has arrived.
func (r *Response) ParametersDone() bool { return r.paramsDone }

// DataDone reports whether every data byte has arrived.
func (r *Response) DataDone() bool { return r.dataDone }

// TotalParameterCount returns the announced parameter total.
func (r *Response) TotalParameterCount() int { return r.totalParams }

// TotalDataCount returns the announced data total.
func (r *Response) TotalDataCount() int { return r.totalData }

// Fragments returns the number of data-carrying packets seen.
func (r *Response) Fragments() int { return r.fragments }

// Release drops the reassembly buffer.
func (r *Response) Release() {
	r.buf = nil
}

// Decode consumes one wire message at src[off:] and returns its length.
// Any status other than success ends the transaction with nothing decoded,
// including STATUS_BUFFER_OVERFLOW; see DecodeOverflow.
func (r *Response) Decode(src []byte, off int) (int, error) {
	var msg types.Message
	n, err := msg.Decode(src, off)
	if err != nil {
		return 0, err
	}
	r.header = msg.Header
	r.status = msg.Header.Status

	if r.status != types.StatusSuccess {
		r.more = false
		r.Release()
		return n, nil
	}
	if msg.WordCount() == 0 {
		return n, nil
	}
	if msg.Header.Command != r.fam.primary {
		return 0, types.NewDecodeError("transaction response", off+4,
			fmt.Errorf("%w: %s", ErrUnexpectedCommand, msg.Header.Command))
	}

	f, setup, err := r.parseWords(msg.Words, off+types.WordsOffset)
	if err != nil {
		return 0, err
	}
	r.setup = setup

	if err := r.place(src[:off+n], off, f); err != nil {
		return 0, err
	}
	r.fragments++

	if !r.paramsDone && f.ParameterDisplacement+f.ParameterCount == r.totalParams {
		r.paramsDone = true
	}
	if !r.dataDone && f.DataDisplacement+f.DataCount == r.totalData {
		r.dataDone = true
	}

	debug.WithFields(debug.Fields{
		"command": msg.Header.Command,
		"mid":     msg.Header.MID,
		"pcount":  f.ParameterCount,
		"pdisp":   f.ParameterDisplacement,
		"dcount":  f.DataCount,
		"ddisp":   f.DataDisplacement,
		"ptotal":  r.totalParams,
		"dtotal":  r.totalData,
	}, "transaction response fragment")

	if r.paramsDone && r.dataDone {
		r.more = false
		if err := r.finish(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// parseWords reads the response word block. wordsOff is only used for
// error reporting.
func (r *Response) parseWords(words []byte, wordsOff int) (Fragment, []byte, error) {
	var f Fragment
	var totalParams, totalData int

	rd := encoding.NewReader(words, 0)
	if r.fam.wide {
		rd.Skip(3)
		totalParams = int(rd.Uint32())
		totalData = int(rd.Uint32())
		f.ParameterCount = int(rd.Uint32())
		f.ParameterOffset = int(rd.Uint32())
		f.ParameterDisplacement = int(rd.Uint32())
		f.DataCount = int(rd.Uint32())
		f.DataOffset = int(rd.Uint32())
		f.DataDisplacement = int(rd.Uint32())
	} else {
		totalParams = int(rd.Uint16())
		totalData = int(rd.Uint16())
		rd.Skip(2)
		f.ParameterCount = int(rd.Uint16())
		f.ParameterOffset = int(rd.Uint16())
		f.ParameterDisplacement = int(rd.Uint16())
		f.DataCount = int(rd.Uint16())
		f.DataOffset = int(rd.Uint16())
		f.DataDisplacement = int(rd.Uint16())
	}
	setupCount := int(rd.Uint8())
	if !r.fam.wide {
		rd.Skip(1)
	}
	setup := rd.Bytes(2 * setupCount)
	if err := rd.Err(); err != nil {
		return f, nil, types.NewDecodeError("transaction words", wordsOff+rd.Offset(), err)
	}
	f.Command = r.fam.primary

	if !r.allocated {
		if totalParams < 0 || totalData < 0 || totalParams+totalData > r.MaxTotal {
			return f, nil, types.NewDecodeError("transaction totals", wordsOff, ErrTooLarge)
		}
		r.totalParams = totalParams
		r.totalData = totalData
		r.buf = make([]byte, totalParams+totalData)
		r.bufDataStart = totalParams
		r.allocated = true
	} else {
		if totalParams > r.totalParams || totalData > r.totalData {
			return f, nil, types.NewDecodeError("transaction totals", wordsOff, ErrTotalsGrew)
		}
		r.totalParams = totalParams
		r.totalData = totalData
	}
	return f, setup, nil
}

// place copies the fragment's slices into the reassembly buffer. Offsets
// are relative to the header start at off.
func (r *Response) place(src []byte, off int, f Fragment) error {
	if r.buf == nil {
		return types.NewDecodeError("transaction fragment", off, fmt.Errorf("%w: response released", ErrOutOfRange))
	}
	if f.ParameterCount > 0 {
		start := off + f.ParameterOffset
		if f.ParameterCount < 0 || start < off || start+f.ParameterCount > len(src) {
			return types.NewDecodeError("parameter fragment", start, ErrOutOfRange)
		}
		if f.ParameterDisplacement < 0 || f.ParameterDisplacement+f.ParameterCount > r.totalParams {
			return types.NewDecodeError("parameter displacement", start, ErrOutOfRange)
		}
		copy(r.buf[f.ParameterDisplacement:], src[start:start+f.ParameterCount])
	}
	if f.DataCount > 0 {
		start := off + f.DataOffset
		if f.DataCount < 0 || start < off || start+f.DataCount > len(src) {
			return types.NewDecodeError("data fragment", start, ErrOutOfRange)
		}
		if f.DataDisplacement < 0 || f.DataDisplacement+f.DataCount > r.totalData {
			return types.NewDecodeError("data displacement", start, ErrOutOfRange)
		}
		copy(r.buf[r.bufDataStart+f.DataDisplacement:], src[start:start+f.DataCount])
	}
	return nil
}

func (r *Response) finish() error {
	defer r.Release()

	if d, ok := r.codec.(Dialected); ok {
		d.SetDialect(r.header.IsUnicode(), nil)
	}
	if err := r.codec.DecodeSetup(r.setup); err != nil {
		return fmt.Errorf("decode %v setup: %w", r.codec.Kind(), err)
	}
	if _, err := r.codec.DecodeParameters(r.buf[:r.totalParams]); err != nil {
		return fmt.Errorf("decode %v parameters: %w", r.codec.Kind(), err)
	}
	data := r.buf[r.bufDataStart : r.bufDataStart+r.totalData]
	if _, err := r.codec.DecodeData(data); err != nil {
		return fmt.Errorf("decode %v data: %w", r.codec.Kind(), err)
	}
	return nil
}

// DecodeOverflow decodes a single response packet that carried
// STATUS_BUFFER_OVERFLOW into codec. The packet must hold every parameter
// and data byte it announces; servers send this for a named pipe reply
// that did not fit, leaving the rest to be read from the pipe.
func DecodeOverflow(codec Codec, src []byte, off int) error {
	if len(src) < off+types.HeaderSize {
		return types.NewDecodeError("overflow response", off, ErrBufferTooSmall)
	}
	pkt := append([]byte(nil), src[off:]...)
	encoding.PutUint32LE(pkt[5:], uint32(types.StatusSuccess))

	r, err := NewResponse(codec)
	if err != nil {
		return err
	}
	if _, err := r.Decode(pkt, 0); err != nil {
		return err
	}
	if r.HasMore() {
		r.Release()
		return types.NewDecodeError("overflow response", off, ErrIncomplete)
	}
	return nil
}
