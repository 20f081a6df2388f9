package trans

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// LANMANName is the transaction name of Remote Administration Protocol
// calls.
const LANMANName = `\PIPE\LANMAN`

// RAP status codes
const (
	RAPSuccess       uint16 = 0
	RAPErrorMoreData uint16 = 234
)

// Server type bits for NetServerEnum2
const (
	SVTypeWorkstation uint32 = 0x00000001
	SVTypeServer      uint32 = 0x00000002
	SVTypeDomainCtrl  uint32 = 0x00000008
	SVTypeNT          uint32 = 0x00001000
	SVTypeDomainEnum  uint32 = 0x80000000
	SVTypeAll         uint32 = 0xFFFFFFFF
)

// Share types
const (
	ShareTypeDisk    uint32 = 0
	ShareTypePrintQ  uint32 = 1
	ShareTypeDevice  uint32 = 2
	ShareTypeIPC     uint32 = 3
	ShareTypeSpecial uint32 = 0x80000000
)

const (
	rapTimeout          = 5000
	defaultRAPDataCount = 16384
	shareEntrySize      = 20
	serverEntrySize     = 26
	maxRemarkLength     = 128
	maxCommentLength    = 48
)

// RAPError is a non-zero RAP status other than ERROR_MORE_DATA.
type RAPError struct {
	Status uint16
}

func (e *RAPError) Error() string {
	return fmt.Sprintf("rap call failed with status %d", e.Status)
}

// rapHeader holds the common RAP response parameters.
type rapHeader struct {
	Status    uint16
	Converter uint16
	Returned  int
	Available int
}

// More reports whether further entries remain.
func (h *rapHeader) More() bool {
	return h.Status == RAPErrorMoreData
}

func (h *rapHeader) DecodeParameters(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	h.Status = r.Uint16()
	h.Converter = r.Uint16()
	h.Returned = int(r.Uint16())
	h.Available = int(r.Uint16())
	if err := r.Err(); err != nil {
		return 0, err
	}
	if h.Status != RAPSuccess && h.Status != RAPErrorMoreData {
		return r.Offset(), &RAPError{Status: h.Status}
	}
	return r.Offset(), nil
}

// pointer resolves a RAP string pointer against the data section.
func (h *rapHeader) pointer(b []byte, ptr uint32, max int, cm *charmap.Charmap) string {
	off := int(ptr&0xFFFF) - int(h.Converter)
	if off < 0 || off >= len(b) {
		return ""
	}
	s, _, err := encoding.ReadString(b, off, 0, max, false, cm)
	if err != nil {
		return ""
	}
	return s
}

// fixedString decodes a null-padded OEM field.
func fixedString(b []byte, cm *charmap.Charmap) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return encoding.FromOEM(cm, b)
}

// ShareInfo is one NetShareEnum level 1 entry.
type ShareInfo struct {
	Name   string
	Type   uint32
	Remark string
}

// Hidden reports whether the share name ends with $.
func (s ShareInfo) Hidden() bool { return strings.HasSuffix(s.Name, "$") }

// TypeString names the share type.
func (s ShareInfo) TypeString() string {
	switch s.Type &^ ShareTypeSpecial {
	case ShareTypeDisk:
		return "Disk"
	case ShareTypePrintQ:
		return "Printer"
	case ShareTypeDevice:
		return "Device"
	case ShareTypeIPC:
		return "IPC"
	default:
		return fmt.Sprintf("Type%d", s.Type)
	}
}

// NetShareEnum lists the shares of a server over \PIPE\LANMAN.
type NetShareEnum struct {
	noSetup
	noData
	dialect
	rapHeader

	MaxData uint16
	Shares  []ShareInfo
}

// NewNetShareEnum requests share level 1 information.
func NewNetShareEnum() *NetShareEnum {
	return &NetShareEnum{MaxData: DefaultBufferSize - 512}
}

func (n *NetShareEnum) Kind() Kind { return KindNetShareEnum }

func (n *NetShareEnum) Name() string { return LANMANName }

func (n *NetShareEnum) Limit(o *Options) {
	o.MaxParameterCount = 8
	o.MaxDataCount = uint32(n.MaxData)
	o.MaxSetupCount = 0
	o.Timeout = rapTimeout
}

func (n *NetShareEnum) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(RAPNetShareEnum)
	w.Write([]byte("WrLeh\x00B13BWz\x00"))
	w.Uint16(1)
	w.Uint16(n.MaxData)
	return w.Err()
}

func (n *NetShareEnum) DecodeData(b []byte) (int, error) {
	n.Shares = n.Shares[:0]
	off := 0
	for i := 0; i < n.Returned; i++ {
		if off+shareEntrySize > len(b) {
			return off, fmt.Errorf("share entry %d: %w", i, encoding.ErrShortBuffer)
		}
		e := b[off : off+shareEntrySize]
		n.Shares = append(n.Shares, ShareInfo{
			Name:   fixedString(e[:13], n.oem),
			Type:   uint32(encoding.Uint16LE(e[14:])),
			Remark: n.pointer(b, encoding.Uint32LE(e[16:]), maxRemarkLength, n.oem),
		})
		off += shareEntrySize
	}
	return off, nil
}

// ServerInfo is one NetServerEnum2 level 1 entry.
type ServerInfo struct {
	Name         string
	VersionMajor uint8
	VersionMinor uint8
	Type         uint32
	Comment      string
}

// NetServerEnum2 lists servers or domains known to the browser. Set
// LastName to continue an enumeration with NetServerEnum3.
type NetServerEnum2 struct {
	noSetup
	noData
	dialect
	rapHeader

	Domain      string
	ServerTypes uint32
	LastName    string
	MaxData     uint16

	Servers []ServerInfo
}

// NewNetServerEnum2 enumerates servers of the given types in domain.
func NewNetServerEnum2(domain string, types uint32) *NetServerEnum2 {
	return &NetServerEnum2{Domain: domain, ServerTypes: types, MaxData: defaultRAPDataCount}
}

// Continue returns the NetServerEnum3 call resuming after the last entry.
func (n *NetServerEnum2) Continue() *NetServerEnum2 {
	next := NewNetServerEnum2(n.Domain, n.ServerTypes)
	next.MaxData = n.MaxData
	next.LastName = n.LastEntry()
	return next
}

// LastEntry returns the name of the last server decoded.
func (n *NetServerEnum2) LastEntry() string {
	if len(n.Servers) == 0 {
		return ""
	}
	return n.Servers[len(n.Servers)-1].Name
}

func (n *NetServerEnum2) Kind() Kind {
	if n.LastName != "" {
		return KindNetServerEnum3
	}
	return KindNetServerEnum2
}

func (n *NetServerEnum2) Name() string { return LANMANName }

func (n *NetServerEnum2) Limit(o *Options) {
	o.MaxParameterCount = 8
	o.MaxDataCount = uint32(n.MaxData)
	o.MaxSetupCount = 0
	o.Timeout = rapTimeout
}

func (n *NetServerEnum2) EncodeParameters(w *encoding.Writer) error {
	if n.LastName != "" {
		w.Uint16(RAPNetServerEnum3)
		w.Write([]byte("WrLehDz\x00B16BBDz\x00"))
	} else {
		w.Uint16(RAPNetServerEnum2)
		w.Write([]byte("WrLehDO\x00B16BBDz\x00"))
	}
	w.Uint16(1)
	w.Uint16(n.MaxData)
	w.Uint32(n.ServerTypes)
	w.OEMString(strings.ToUpper(n.Domain))
	if n.LastName != "" {
		w.OEMString(strings.ToUpper(n.LastName))
	}
	return w.Err()
}

func (n *NetServerEnum2) DecodeData(b []byte) (int, error) {
	n.Servers = n.Servers[:0]
	off := 0
	for i := 0; i < n.Returned; i++ {
		if off+serverEntrySize > len(b) {
			return off, fmt.Errorf("server entry %d: %w", i, encoding.ErrShortBuffer)
		}
		e := b[off : off+serverEntrySize]
		s := ServerInfo{
			Name:         fixedString(e[:16], n.oem),
			VersionMajor: e[16],
			VersionMinor: e[17],
			Type:         encoding.Uint32LE(e[18:]),
			Comment:      n.pointer(b, encoding.Uint32LE(e[22:]), maxCommentLength, n.oem),
		}
		off += serverEntrySize
		// NetServerEnum3 repeats the resume entry first.
		if i == 0 && n.LastName != "" && strings.EqualFold(s.Name, n.LastName) {
			continue
		}
		n.Servers = append(n.Servers, s)
	}
	return off, nil
}
