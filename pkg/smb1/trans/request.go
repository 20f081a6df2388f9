package trans

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Fragment describes the packet a Request will encode next.
type Fragment struct {
	Command               types.Command
	ParameterCount        int
	ParameterOffset       int
	ParameterDisplacement int
	DataCount             int
	DataOffset            int
	DataDisplacement      int
}

// Request splits one logical transaction into wire packets. Call Next to
// advance to a packet and Encode to write it, until HasMore is false.
type Request struct {
	codec  Codec
	opts   Options
	header types.Header
	fam    *family
	name   string

	setup []byte
	buf   []byte // serialized parameters followed by data

	totalParams int
	totalData   int

	started bool
	more    bool
	frag    Fragment
}

// NewRequest prepares c for sending with the given base header. The header's
// command is replaced by the family's primary or secondary command.
func NewRequest(c Codec, h types.Header, opts Options) (*Request, error) {
	fam, err := familyOf(c.Kind().Command)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", c.Kind(), err)
	}
	if l, ok := c.(Limiter); ok {
		l.Limit(&opts)
	}
	if d, ok := c.(Dialected); ok {
		d.SetDialect(opts.Unicode, opts.OEM)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Unicode {
		h.Flags2 |= types.Flags2Unicode
	} else {
		h.Flags2 &^= types.Flags2Unicode
	}

	r := &Request{
		codec:  c,
		opts:   opts,
		header: h,
		fam:    fam,
		more:   true,
	}
	if n, ok := c.(Named); ok && fam.named {
		r.name = n.Name()
	}
	return r, nil
}

// HasMore reports whether another packet remains to be produced.
func (r *Request) HasMore() bool { return r.more }

// Header returns the header of the current packet.
func (r *Request) Header() types.Header { return r.header }

// Fragment returns the layout of the current packet.
func (r *Request) Fragment() Fragment { return r.frag }

// TotalParameterCount returns the serialized parameter length.
func (r *Request) TotalParameterCount() int { return r.totalParams }

// TotalDataCount returns the serialized data length.
func (r *Request) TotalDataCount() int { return r.totalData }

// Parameters returns the full serialized parameter section.
func (r *Request) Parameters() []byte { return r.buf[:r.totalParams] }

// Data returns the full serialized data section.
func (r *Request) Data() []byte { return r.buf[r.totalParams : r.totalParams+r.totalData] }

// Setup returns the serialized setup words.
func (r *Request) Setup() []byte { return r.setup }

// Next advances to the next packet.
func (r *Request) Next() error {
	if !r.more {
		return ErrNoMoreFragments
	}
	var err error
	if !r.started {
		err = r.primary()
	} else {
		err = r.secondary()
	}
	if err != nil {
		r.more = false
		return err
	}

	f := r.frag
	if f.ParameterDisplacement+f.ParameterCount >= r.totalParams &&
		f.DataDisplacement+f.DataCount >= r.totalData {
		r.more = false
	}

	debug.WithFields(debug.Fields{
		"command": f.Command,
		"mid":     r.header.MID,
		"pcount":  f.ParameterCount,
		"pdisp":   f.ParameterDisplacement,
		"dcount":  f.DataCount,
		"ddisp":   f.DataDisplacement,
		"more":    r.more,
	}, "transaction request fragment")
	return nil
}

func (r *Request) serialize() error {
	r.buf = make([]byte, r.opts.BufferSize)

	sw := encoding.NewWriter(make([]byte, 2*0xFF), 0)
	if err := r.codec.EncodeSetup(sw); err != nil {
		return fmt.Errorf("encode setup: %w", err)
	}
	r.setup = sw.Bytes()

	pw := encoding.NewWriter(r.buf, 0)
	pw.Unicode, pw.OEM = r.opts.Unicode, r.opts.OEM
	if err := r.codec.EncodeParameters(pw); err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	r.totalParams = pw.Len()

	dw := encoding.NewWriter(r.buf[r.totalParams:], 0)
	dw.Unicode, dw.OEM = r.opts.Unicode, r.opts.OEM
	if err := r.codec.EncodeData(dw); err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	r.totalData = dw.Len()

	if r.totalParams > r.fam.maxCount() || r.totalData > r.fam.maxCount() {
		return ErrTooLarge
	}
	return nil
}

func (r *Request) primary() error {
	r.started = true
	if err := r.serialize(); err != nil {
		return err
	}

	off := r.fam.primarySetupOffset() + len(r.setup) + 2
	if r.fam.named {
		off += encoding.StringWireLength(r.name, off, r.opts.Unicode, r.opts.OEM)
	}
	r.header.Command = r.fam.primary
	return r.fill(align(off), 0, 0)
}

func (r *Request) secondary() error {
	pdisp := r.frag.ParameterDisplacement + r.frag.ParameterCount
	ddisp := r.frag.DataDisplacement + r.frag.DataCount
	r.header.Command = r.fam.secondary
	return r.fill(align(r.fam.secondaryParameterOffset()), pdisp, ddisp)
}

// fill computes the counts and offsets of a packet whose parameter section
// may start at paramOff.
func (r *Request) fill(paramOff, pdisp, ddisp int) error {
	limit := r.opts.MaxBufferSize

	pcount := min(r.totalParams-pdisp, room(limit, paramOff))
	dataOff := align(paramOff + pcount)
	dcount := 0
	if pdisp+pcount == r.totalParams {
		dcount = min(r.totalData-ddisp, room(limit, dataOff))
	}

	remaining := r.totalParams - pdisp + r.totalData - ddisp
	if remaining > 0 && pcount == 0 && dcount == 0 {
		return fmt.Errorf("%d byte packets: %w", limit, ErrBufferTooSmall)
	}

	r.frag = Fragment{
		Command:               r.header.Command,
		ParameterCount:        pcount,
		ParameterDisplacement: pdisp,
		DataCount:             dcount,
		DataDisplacement:      ddisp,
	}
	if pcount > 0 {
		r.frag.ParameterOffset = paramOff
	}
	if dcount > 0 {
		r.frag.DataOffset = dataOff
	}
	return nil
}

func room(limit, off int) int {
	if off >= limit {
		return 0
	}
	return limit - off
}

// Encode writes the current packet at dst[off:] and returns its length.
func (r *Request) Encode(dst []byte, off int) (int, error) {
	if !r.started {
		return 0, fmt.Errorf("encode before Next: %w", ErrNoMoreFragments)
	}
	primary := r.header.Command == r.fam.primary

	words, err := r.words(primary)
	if err != nil {
		return 0, err
	}
	bytesStart := types.BytesOffset(len(words) / 2)

	end := bytesStart
	if primary && r.fam.named {
		end += encoding.StringWireLength(r.name, bytesStart, r.opts.Unicode, r.opts.OEM)
	}
	f := r.frag
	if f.ParameterCount > 0 {
		end = max(end, f.ParameterOffset+f.ParameterCount)
	}
	if f.DataCount > 0 {
		end = max(end, f.DataOffset+f.DataCount)
	}

	block := make([]byte, end-bytesStart)
	if primary && r.fam.named {
		if _, err := encoding.WriteString(block, 0, bytesStart, r.name, r.opts.Unicode, r.opts.OEM); err != nil {
			return 0, err
		}
	}
	if f.ParameterCount > 0 {
		copy(block[f.ParameterOffset-bytesStart:], r.buf[f.ParameterDisplacement:f.ParameterDisplacement+f.ParameterCount])
	}
	if f.DataCount > 0 {
		src := r.buf[r.totalParams+f.DataDisplacement:]
		copy(block[f.DataOffset-bytesStart:], src[:f.DataCount])
	}

	msg := types.Message{Header: r.header, Words: words, Bytes: block}
	return msg.Encode(dst, off)
}

func (r *Request) words(primary bool) ([]byte, error) {
	f := r.frag
	w := encoding.NewWriter(make([]byte, 2*0xFF), 0)

	switch {
	case primary && r.fam.wide:
		w.Uint8(r.opts.MaxSetupCount)
		w.Zero(2)
		w.Uint32(uint32(r.totalParams))
		w.Uint32(uint32(r.totalData))
		w.Uint32(r.opts.MaxParameterCount)
		w.Uint32(r.opts.MaxDataCount)
		w.Uint32(uint32(f.ParameterCount))
		w.Uint32(uint32(f.ParameterOffset))
		w.Uint32(uint32(f.DataCount))
		w.Uint32(uint32(f.DataOffset))
		w.Uint8(uint8(len(r.setup) / 2))
		w.Uint16(r.codec.Kind().SubCommand)
		w.Write(r.setup)
	case primary:
		w.Uint16(uint16(r.totalParams))
		w.Uint16(uint16(r.totalData))
		w.Uint16(uint16(min(r.opts.MaxParameterCount, 0xFFFF)))
		w.Uint16(uint16(min(r.opts.MaxDataCount, 0xFFFF)))
		w.Uint8(r.opts.MaxSetupCount)
		w.Zero(1)
		w.Uint16(r.opts.Flags)
		w.Uint32(r.opts.Timeout)
		w.Zero(2)
		w.Uint16(uint16(f.ParameterCount))
		w.Uint16(uint16(f.ParameterOffset))
		w.Uint16(uint16(f.DataCount))
		w.Uint16(uint16(f.DataOffset))
		w.Uint8(uint8(len(r.setup) / 2))
		w.Zero(1)
		w.Write(r.setup)
	case r.fam.wide:
		w.Zero(3)
		w.Uint32(uint32(r.totalParams))
		w.Uint32(uint32(r.totalData))
		w.Uint32(uint32(f.ParameterCount))
		w.Uint32(uint32(f.ParameterOffset))
		w.Uint32(uint32(f.ParameterDisplacement))
		w.Uint32(uint32(f.DataCount))
		w.Uint32(uint32(f.DataOffset))
		w.Uint32(uint32(f.DataDisplacement))
		w.Zero(1)
	default:
		w.Uint16(uint16(r.totalParams))
		w.Uint16(uint16(r.totalData))
		w.Uint16(uint16(f.ParameterCount))
		w.Uint16(uint16(f.ParameterOffset))
		w.Uint16(uint16(f.ParameterDisplacement))
		w.Uint16(uint16(f.DataCount))
		w.Uint16(uint16(f.DataOffset))
		w.Uint16(uint16(f.DataDisplacement))
		if r.fam == trans2Family {
			w.Uint16(0xFFFF)
		}
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode words: %w", err)
	}
	return w.Bytes(), nil
}
