// Package trans implements the SMB1 transaction engine: splitting a logical
// request into primary and secondary packets bounded by the negotiated
// buffer size, reassembling multi-packet responses, and the concrete
// Trans, Trans2 and NT Trans payloads carried over it.
package trans

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

var (
	// ErrBufferTooSmall is returned when a packet cannot carry any progress.
	ErrBufferTooSmall = encoding.ErrBufferTooSmall

	// ErrUnknownCommand is returned for a Kind outside the three
	// transaction families.
	ErrUnknownCommand = errors.New("not a transaction command")

	// ErrNoMoreFragments is returned by Next after the last packet.
	ErrNoMoreFragments = errors.New("no more fragments")

	// ErrTooLarge is returned when a count does not fit the family's fields.
	ErrTooLarge = errors.New("transaction too large")

	// ErrTotalsGrew is returned when a fragment raises a total announced
	// by an earlier fragment.
	ErrTotalsGrew = errors.New("transaction totals grew between fragments")

	// ErrOutOfRange is returned for offsets, counts or displacements that
	// point outside the message or the reassembly buffer.
	ErrOutOfRange = errors.New("fragment out of range")

	// ErrUnexpectedCommand is returned when a response belongs to another
	// command family.
	ErrUnexpectedCommand = errors.New("unexpected response command")

	// ErrIncomplete is returned when a packet expected to hold a whole
	// response covers only part of it.
	ErrIncomplete = errors.New("incomplete transaction response")
)

// Kind is the dispatch tag of a transaction payload.
type Kind struct {
	Command    types.Command
	SubCommand uint16
}

func (k Kind) String() string {
	return fmt.Sprintf("%s/0x%04X", k.Command, k.SubCommand)
}

// Codec is one concrete transaction payload. Encode methods write the
// request; Decode methods receive the reassembled response sections and
// return the bytes they consumed.
type Codec interface {
	Kind() Kind
	EncodeSetup(w *encoding.Writer) error
	EncodeParameters(w *encoding.Writer) error
	EncodeData(w *encoding.Writer) error
	DecodeSetup(setup []byte) error
	DecodeParameters(b []byte) (int, error)
	DecodeData(b []byte) (int, error)
}

// Named is implemented by SMB_COM_TRANSACTION payloads that carry a
// transaction name such as \PIPE\LANMAN.
type Named interface {
	Name() string
}

// Limiter is implemented by payloads that override the default response
// limits or timeout.
type Limiter interface {
	Limit(o *Options)
}

// Dialected is implemented by payloads whose strings depend on the
// negotiated Unicode setting.
type Dialected interface {
	SetDialect(unicode bool, oem *charmap.Charmap)
}

// DefaultBufferSize is the staging buffer for serialized parameters and data.
const DefaultBufferSize = 0xFFFF

// Options configures one transaction.
type Options struct {
	MaxParameterCount uint32
	MaxDataCount      uint32
	MaxSetupCount     uint8
	Flags             uint16
	Timeout           uint32

	// MaxBufferSize bounds every packet, header included.
	MaxBufferSize int
	// BufferSize is the staging capacity for parameters plus data.
	BufferSize int

	Unicode bool
	OEM     *charmap.Charmap
}

// DefaultOptions mirrors a typical NT LM 0.12 client.
func DefaultOptions() Options {
	return Options{
		MaxParameterCount: 1024,
		MaxDataCount:      DefaultBufferSize - 512,
		MaxBufferSize:     16644,
		BufferSize:        DefaultBufferSize,
		Unicode:           true,
	}
}

// dialect is embedded by payloads that implement Dialected.
type dialect struct {
	unicode bool
	oem     *charmap.Charmap
}

// SetDialect records the string dialect; a nil oem keeps the current page.
func (d *dialect) SetDialect(unicode bool, oem *charmap.Charmap) {
	d.unicode = unicode
	if oem != nil {
		d.oem = oem
	}
}

func (d *dialect) reader(b []byte) *encoding.Reader {
	r := encoding.NewReader(b, 0)
	r.Unicode = d.unicode
	r.OEM = d.oem
	return r
}

// setupWords writes a setup block.
func setupWords(w *encoding.Writer, words ...uint16) error {
	for _, v := range words {
		w.Uint16(v)
	}
	return w.Err()
}

// noSetup is embedded by payloads without request setup words or response
// setup to parse.
type noSetup struct{}

func (noSetup) EncodeSetup(*encoding.Writer) error { return nil }
func (noSetup) DecodeSetup([]byte) error           { return nil }

// noData is embedded by payloads without a request data section.
type noData struct{}

func (noData) EncodeData(*encoding.Writer) error { return nil }
