package trans

import (
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// PipeName is the transaction name for handle-based pipe operations.
const PipeName = `\PIPE\`

// Pipe states reported by PeekNamedPipe
const (
	PipeStateDisconnected uint16 = 1
	PipeStateListening    uint16 = 2
	PipeStateConnected    uint16 = 3
	PipeStateClosing      uint16 = 4
)

// WaitForever is the WaitNamedPipe timeout that never expires.
const WaitForever uint32 = 0xFFFFFFFF

// pipeOutput collects the response data of a pipe transaction.
type pipeOutput struct {
	Output []byte
}

func (p *pipeOutput) DecodeData(b []byte) (int, error) {
	p.Output = append(p.Output[:0], b...)
	return len(b), nil
}

// TransactNamedPipe writes a request to an open message pipe and reads the
// reply in one exchange.
type TransactNamedPipe struct {
	pipeOutput

	FID   uint16
	Input []byte

	// MaxOutput bounds the reply; larger replies end with
	// STATUS_BUFFER_OVERFLOW and must be drained with reads.
	MaxOutput uint32
}

// NewTransactNamedPipe sends input on fid.
func NewTransactNamedPipe(fid uint16, input []byte) *TransactNamedPipe {
	return &TransactNamedPipe{FID: fid, Input: input, MaxOutput: 4280}
}

func (t *TransactNamedPipe) Kind() Kind { return KindTransactNamedPipe }

func (t *TransactNamedPipe) Name() string { return PipeName }

func (t *TransactNamedPipe) Limit(o *Options) {
	o.MaxParameterCount = 0
	o.MaxDataCount = t.MaxOutput
	o.MaxSetupCount = 0
}

func (t *TransactNamedPipe) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, TransTransactNamedPipe, t.FID)
}

func (t *TransactNamedPipe) EncodeParameters(*encoding.Writer) error { return nil }

func (t *TransactNamedPipe) EncodeData(w *encoding.Writer) error {
	w.Write(t.Input)
	return w.Err()
}

func (t *TransactNamedPipe) DecodeSetup([]byte) error { return nil }

func (t *TransactNamedPipe) DecodeParameters([]byte) (int, error) { return 0, nil }

// CallNamedPipe opens a pipe by name, transacts once and closes it.
type CallNamedPipe struct {
	pipeOutput

	Path      string
	Input     []byte
	MaxOutput uint32
}

// NewCallNamedPipe calls the pipe at path, for example \PIPE\srvsvc.
func NewCallNamedPipe(path string, input []byte) *CallNamedPipe {
	return &CallNamedPipe{Path: path, Input: input, MaxOutput: 4280}
}

func (c *CallNamedPipe) Kind() Kind { return KindCallNamedPipe }

func (c *CallNamedPipe) Name() string { return c.Path }

func (c *CallNamedPipe) Limit(o *Options) {
	o.MaxParameterCount = 0
	o.MaxDataCount = c.MaxOutput
	o.MaxSetupCount = 0
}

func (c *CallNamedPipe) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, TransCallNamedPipe, 0)
}

func (c *CallNamedPipe) EncodeParameters(*encoding.Writer) error { return nil }

func (c *CallNamedPipe) EncodeData(w *encoding.Writer) error {
	w.Write(c.Input)
	return w.Err()
}

func (c *CallNamedPipe) DecodeSetup([]byte) error { return nil }

func (c *CallNamedPipe) DecodeParameters([]byte) (int, error) { return 0, nil }

// WaitNamedPipe waits until an instance of the named pipe is available.
type WaitNamedPipe struct {
	noSetup
	noData

	Path    string
	Timeout uint32
}

// NewWaitNamedPipe waits for path up to timeout milliseconds.
func NewWaitNamedPipe(path string, timeout uint32) *WaitNamedPipe {
	return &WaitNamedPipe{Path: path, Timeout: timeout}
}

func (p *WaitNamedPipe) Kind() Kind { return KindWaitNamedPipe }

func (p *WaitNamedPipe) Name() string { return p.Path }

func (p *WaitNamedPipe) Limit(o *Options) {
	o.MaxParameterCount = 0
	o.MaxDataCount = 0
	o.MaxSetupCount = 0
	o.Timeout = p.Timeout
}

func (p *WaitNamedPipe) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, TransWaitNamedPipe, 0)
}

func (p *WaitNamedPipe) EncodeParameters(*encoding.Writer) error { return nil }

func (p *WaitNamedPipe) DecodeParameters([]byte) (int, error) { return 0, nil }

func (p *WaitNamedPipe) DecodeData([]byte) (int, error) { return 0, nil }

// PeekNamedPipe reports the bytes waiting on an open pipe without
// consuming them.
type PeekNamedPipe struct {
	noSetup
	noData

	FID uint16

	Available    uint16
	MessageBytes uint16
	State        uint16
}

// NewPeekNamedPipe peeks fid.
func NewPeekNamedPipe(fid uint16) *PeekNamedPipe {
	return &PeekNamedPipe{FID: fid}
}

func (p *PeekNamedPipe) Kind() Kind { return KindPeekNamedPipe }

func (p *PeekNamedPipe) Name() string { return PipeName }

func (p *PeekNamedPipe) Limit(o *Options) {
	o.MaxParameterCount = 6
	o.MaxDataCount = 1
	o.MaxSetupCount = 0
}

func (p *PeekNamedPipe) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, TransPeekNamedPipe, p.FID)
}

func (p *PeekNamedPipe) EncodeParameters(*encoding.Writer) error { return nil }

func (p *PeekNamedPipe) DecodeParameters(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	p.Available = r.Uint16()
	p.MessageBytes = r.Uint16()
	p.State = r.Uint16()
	return r.Offset(), r.Err()
}

func (p *PeekNamedPipe) DecodeData([]byte) (int, error) { return 0, nil }
