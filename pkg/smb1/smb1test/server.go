// Package smb1test is an in-memory SMB1 server for tests. It answers
// plain commands through per-command Handlers and reassembles
// transactions before passing them to a single callback.
package smb1test

import (
	"io"
	"testing"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// TransResult is what OnTrans answers with. A status other than success
// or buffer overflow is sent as an empty error response.
type TransResult struct {
	Status types.NTStatus
	Setup  []byte
	Params []byte
	Data   []byte
	// PacketStatus overrides the header status of the reply packets in
	// order; packets past its end keep Status.
	PacketStatus []types.NTStatus
}

// TransCall is a reassembled transaction request.
type TransCall struct {
	Command types.Command
	// Sub is the first setup word, or the NT Trans function.
	Sub    uint16
	Name   string
	Setup  []byte
	Params []byte
	Data   []byte

	totalParams, totalData int
	gotParams, gotData     int
}

// Server is an in-memory SMB1 server. Handlers answer per command;
// transactions are reassembled and passed to OnTrans.
type Server struct {
	t               testing.TB
	Handlers        map[types.Command]func(req *types.Message) [][]byte
	OnTrans         func(call *TransCall) TransResult
	ReplyBufferSize int

	Requests []*types.Message
	queue    [][]byte
	pending  *TransCall
	Closed   bool
}

// NewServer returns a server that fails t on malformed traffic.
func NewServer(t testing.TB) *Server {
	return &Server{
		t:               t,
		Handlers:        map[types.Command]func(*types.Message) [][]byte{},
		ReplyBufferSize: 16644,
	}
}

// Send accepts one request and queues its responses.
func (s *Server) Send(b []byte) error {
	b = append([]byte(nil), b...)
	var m types.Message
	if err := m.Unmarshal(b); err != nil {
		s.t.Fatalf("smb1test: bad request: %v", err)
	}
	s.Requests = append(s.Requests, &m)

	switch m.Header.Command {
	case types.CommandTrans, types.CommandTrans2, types.CommandNTTrans:
		s.queue = append(s.queue, s.primary(&m)...)
	case types.CommandTransSecondary, types.CommandTrans2Secondary, types.CommandNTTransSecondary:
		s.queue = append(s.queue, s.secondary(&m)...)
	default:
		if h, ok := s.Handlers[m.Header.Command]; ok {
			s.queue = append(s.queue, h(&m)...)
		} else {
			s.queue = append(s.queue, Reply(&m, types.StatusSuccess, nil, nil))
		}
	}
	return nil
}

// Recv pops the next queued response; io.EOF when none is left.
func (s *Server) Recv() ([]byte, error) {
	if len(s.queue) == 0 {
		return nil, io.EOF
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b, nil
}

// Close marks the server closed.
func (s *Server) Close() error {
	s.Closed = true
	return nil
}

// Commands returns the command of every request received.
func (s *Server) Commands() []types.Command {
	var cmds []types.Command
	for _, r := range s.Requests {
		cmds = append(cmds, r.Header.Command)
	}
	return cmds
}

// section returns count bytes at the header-relative offset ofs.
func section(m *types.Message, off, count int) []byte {
	if count == 0 {
		return nil
	}
	start := off - types.BytesOffset(m.WordCount())
	return m.Bytes[start : start+count]
}

func (s *Server) primary(m *types.Message) [][]byte {
	w := m.Words
	call := &TransCall{Command: m.Header.Command}
	var pcount, poff, dcount, doff int
	if m.Header.Command == types.CommandNTTrans {
		call.totalParams = int(encoding.Uint32LE(w[3:]))
		call.totalData = int(encoding.Uint32LE(w[7:]))
		pcount = int(encoding.Uint32LE(w[19:]))
		poff = int(encoding.Uint32LE(w[23:]))
		dcount = int(encoding.Uint32LE(w[27:]))
		doff = int(encoding.Uint32LE(w[31:]))
		n := int(w[35])
		call.Sub = encoding.Uint16LE(w[36:])
		call.Setup = w[38 : 38+2*n]
	} else {
		call.totalParams = int(encoding.Uint16LE(w[0:]))
		call.totalData = int(encoding.Uint16LE(w[2:]))
		pcount = int(encoding.Uint16LE(w[18:]))
		poff = int(encoding.Uint16LE(w[20:]))
		dcount = int(encoding.Uint16LE(w[22:]))
		doff = int(encoding.Uint16LE(w[24:]))
		n := int(w[26])
		call.Setup = w[28 : 28+2*n]
		if n > 0 {
			call.Sub = encoding.Uint16LE(call.Setup)
		}
		if m.Header.Command == types.CommandTrans {
			call.Name, _, _ = encoding.ReadString(m.Bytes, 0, types.BytesOffset(m.WordCount()), 512,
				m.Header.IsUnicode(), nil)
		}
	}
	call.Params = make([]byte, call.totalParams)
	call.Data = make([]byte, call.totalData)
	copy(call.Params, section(m, poff, pcount))
	copy(call.Data, section(m, doff, dcount))
	call.gotParams, call.gotData = pcount, dcount

	if call.gotParams < call.totalParams || call.gotData < call.totalData {
		s.pending = call
		return [][]byte{Reply(m, types.StatusSuccess, nil, nil)}
	}
	return s.answer(m, call)
}

func (s *Server) secondary(m *types.Message) [][]byte {
	call := s.pending
	if call == nil {
		s.t.Fatalf("smb1test: secondary without primary")
	}
	w := m.Words
	var pcount, poff, pdisp, dcount, doff, ddisp int
	if m.Header.Command == types.CommandNTTransSecondary {
		pcount = int(encoding.Uint32LE(w[11:]))
		poff = int(encoding.Uint32LE(w[15:]))
		pdisp = int(encoding.Uint32LE(w[19:]))
		dcount = int(encoding.Uint32LE(w[23:]))
		doff = int(encoding.Uint32LE(w[27:]))
		ddisp = int(encoding.Uint32LE(w[31:]))
	} else {
		pcount = int(encoding.Uint16LE(w[4:]))
		poff = int(encoding.Uint16LE(w[6:]))
		pdisp = int(encoding.Uint16LE(w[8:]))
		dcount = int(encoding.Uint16LE(w[10:]))
		doff = int(encoding.Uint16LE(w[12:]))
		ddisp = int(encoding.Uint16LE(w[14:]))
	}
	copy(call.Params[pdisp:], section(m, poff, pcount))
	copy(call.Data[ddisp:], section(m, doff, dcount))
	call.gotParams += pcount
	call.gotData += dcount
	if call.gotParams < call.totalParams || call.gotData < call.totalData {
		return nil
	}
	s.pending = nil
	return s.answer(m, call)
}

func (s *Server) answer(m *types.Message, call *TransCall) [][]byte {
	if s.OnTrans == nil {
		s.t.Fatalf("smb1test: unexpected transaction %s", m.Header.Command)
	}
	res := s.OnTrans(call)
	if res.Status != types.StatusSuccess && res.Status != types.StatusBufferOverflow {
		return [][]byte{Reply(m, res.Status, nil, nil)}
	}
	h := m.Header
	h.Status = res.Status
	pkts, err := trans.Reply(h, call.Command, res.Setup, res.Params, res.Data, s.ReplyBufferSize)
	if err != nil {
		s.t.Fatalf("smb1test: reply: %v", err)
	}
	for i, st := range res.PacketStatus {
		if i < len(pkts) {
			encoding.PutUint32LE(pkts[i][5:], uint32(st))
		}
	}
	return pkts
}

// Reply encodes a response to req.
func Reply(req *types.Message, status types.NTStatus, words, bytes []byte) []byte {
	h := req.Header
	h.Flags |= types.FlagsResponse
	h.Status = status
	m := types.Message{Header: h, Words: words, Bytes: bytes}
	b, err := m.Marshal()
	if err != nil {
		panic(err)
	}
	return b
}

// WithTID and WithUID patch a response header.
func WithTID(b []byte, tid uint16) []byte {
	encoding.PutUint16LE(b[24:], tid)
	return b
}

func WithUID(b []byte, uid uint16) []byte {
	encoding.PutUint16LE(b[28:], uid)
	return b
}

// U16 concatenates little-endian words.
func U16(vs ...uint16) []byte {
	var b []byte
	for _, v := range vs {
		b = encoding.AppendUint16LE(b, v)
	}
	return b
}

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}
