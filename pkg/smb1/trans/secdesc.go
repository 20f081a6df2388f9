package trans

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// Security information selectors
const (
	SecurityInfoOwner uint32 = 0x01
	SecurityInfoGroup uint32 = 0x02
	SecurityInfoDACL  uint32 = 0x04
	SecurityInfoSACL  uint32 = 0x08

	SecurityInfoDefault = SecurityInfoOwner | SecurityInfoGroup | SecurityInfoDACL
)

// ACE types
const (
	ACEAccessAllowed uint8 = 0
	ACEAccessDenied  uint8 = 1
	ACESystemAudit   uint8 = 2
)

var errBadSID = errors.New("invalid SID")

// SID is a Windows security identifier.
type SID struct {
	Revision       uint8
	Authority      uint64
	SubAuthorities []uint32
}

// String returns the S-1-... form.
func (s SID) String() string {
	var sb strings.Builder
	sb.WriteString("S-")
	sb.WriteString(strconv.Itoa(int(s.Revision)))
	sb.WriteString("-")
	sb.WriteString(strconv.FormatUint(s.Authority, 10))
	for _, sub := range s.SubAuthorities {
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(uint64(sub), 10))
	}
	return sb.String()
}

// RID returns the last sub-authority.
func (s SID) RID() uint32 {
	if len(s.SubAuthorities) == 0 {
		return 0
	}
	return s.SubAuthorities[len(s.SubAuthorities)-1]
}

var wellKnownSIDs = map[string]string{
	"S-1-0-0":      "Nobody",
	"S-1-1-0":      "Everyone",
	"S-1-2-0":      "Local",
	"S-1-3-0":      "Creator Owner",
	"S-1-3-1":      "Creator Group",
	"S-1-5-2":      "Network",
	"S-1-5-7":      "Anonymous",
	"S-1-5-11":     "Authenticated Users",
	"S-1-5-18":     "SYSTEM",
	"S-1-5-19":     "Local Service",
	"S-1-5-20":     "Network Service",
	"S-1-5-32-544": "BUILTIN\\Administrators",
	"S-1-5-32-545": "BUILTIN\\Users",
	"S-1-5-32-546": "BUILTIN\\Guests",
	"S-1-5-32-547": "BUILTIN\\Power Users",
	"S-1-5-32-551": "BUILTIN\\Backup Operators",
}

var domainRIDs = map[uint32]string{
	500: "Administrator",
	501: "Guest",
	502: "KRBTGT",
	512: "Domain Admins",
	513: "Domain Users",
	514: "Domain Guests",
	515: "Domain Computers",
	516: "Domain Controllers",
}

// WellKnownName returns a display name for built-in and domain SIDs, or ""
// when the SID is not recognized.
func (s SID) WellKnownName() string {
	str := s.String()
	if name, ok := wellKnownSIDs[str]; ok {
		return name
	}
	if strings.HasPrefix(str, "S-1-5-21-") && len(s.SubAuthorities) >= 5 {
		return domainRIDs[s.RID()]
	}
	return ""
}

// DecodeSID parses a SID at the start of b and returns its encoded length.
func DecodeSID(b []byte) (SID, int, error) {
	var s SID
	if len(b) < 8 {
		return s, 0, errBadSID
	}
	s.Revision = b[0]
	n := int(b[1])
	if len(b) < 8+4*n {
		return s, 0, errBadSID
	}
	var auth [8]byte
	copy(auth[2:], b[2:8])
	s.Authority = binary.BigEndian.Uint64(auth[:])
	s.SubAuthorities = make([]uint32, n)
	for i := 0; i < n; i++ {
		s.SubAuthorities[i] = encoding.Uint32LE(b[8+4*i:])
	}
	return s, 8 + 4*n, nil
}

// ACE is one access control entry.
type ACE struct {
	Type  uint8
	Flags uint8
	Size  uint16
	Mask  uint32
	SID   SID
}

// IsAllow reports whether the entry grants access.
func (a ACE) IsAllow() bool { return a.Type == ACEAccessAllowed }

// TypeString names the ACE type.
func (a ACE) TypeString() string {
	switch a.Type {
	case ACEAccessAllowed:
		return "ALLOW"
	case ACEAccessDenied:
		return "DENY"
	case ACESystemAudit:
		return "AUDIT"
	default:
		return fmt.Sprintf("TYPE_%d", a.Type)
	}
}

// ACL is an access control list.
type ACL struct {
	Revision uint8
	Entries  []ACE
}

// SecurityDescriptor is a self-relative security descriptor.
type SecurityDescriptor struct {
	Revision uint8
	Control  uint16
	Owner    *SID
	Group    *SID
	SACL     *ACL
	DACL     *ACL
}

// DecodeSecurityDescriptor parses a self-relative security descriptor.
func DecodeSecurityDescriptor(b []byte) (*SecurityDescriptor, error) {
	if len(b) < 20 {
		return nil, fmt.Errorf("security descriptor: %w", encoding.ErrShortBuffer)
	}
	sd := &SecurityDescriptor{
		Revision: b[0],
		Control:  encoding.Uint16LE(b[2:]),
	}
	owner := int(encoding.Uint32LE(b[4:]))
	group := int(encoding.Uint32LE(b[8:]))
	sacl := int(encoding.Uint32LE(b[12:]))
	dacl := int(encoding.Uint32LE(b[16:]))

	var err error
	if sd.Owner, err = sidAt(b, owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if sd.Group, err = sidAt(b, group); err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}
	if sd.SACL, err = aclAt(b, sacl); err != nil {
		return nil, fmt.Errorf("sacl: %w", err)
	}
	if sd.DACL, err = aclAt(b, dacl); err != nil {
		return nil, fmt.Errorf("dacl: %w", err)
	}
	return sd, nil
}

func sidAt(b []byte, off int) (*SID, error) {
	if off == 0 {
		return nil, nil
	}
	if off >= len(b) {
		return nil, errBadSID
	}
	s, _, err := DecodeSID(b[off:])
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func aclAt(b []byte, off int) (*ACL, error) {
	if off == 0 {
		return nil, nil
	}
	if off+8 > len(b) {
		return nil, encoding.ErrShortBuffer
	}
	acl := &ACL{Revision: b[off]}
	count := int(encoding.Uint16LE(b[off+4:]))
	pos := off + 8
	for i := 0; i < count; i++ {
		if pos+8 > len(b) {
			return nil, encoding.ErrShortBuffer
		}
		ace := ACE{
			Type:  b[pos],
			Flags: b[pos+1],
			Size:  encoding.Uint16LE(b[pos+2:]),
			Mask:  encoding.Uint32LE(b[pos+4:]),
		}
		if ace.Size < 8 || pos+int(ace.Size) > len(b) {
			return nil, fmt.Errorf("ace %d: %w", i, encoding.ErrShortBuffer)
		}
		sid, _, err := DecodeSID(b[pos+8 : pos+int(ace.Size)])
		if err != nil {
			return nil, fmt.Errorf("ace %d: %w", i, err)
		}
		ace.SID = sid
		acl.Entries = append(acl.Entries, ace)
		pos += int(ace.Size)
	}
	return acl, nil
}

// AccessMaskString renders the generic, standard and file rights in mask.
func AccessMaskString(mask uint32) string {
	rights := []struct {
		bit  uint32
		name string
	}{
		{0x80000000, "GENERIC_READ"},
		{0x40000000, "GENERIC_WRITE"},
		{0x20000000, "GENERIC_EXECUTE"},
		{0x10000000, "GENERIC_ALL"},
		{0x00010000, "DELETE"},
		{0x00020000, "READ_CONTROL"},
		{0x00040000, "WRITE_DAC"},
		{0x00080000, "WRITE_OWNER"},
		{0x00000001, "READ_DATA"},
		{0x00000002, "WRITE_DATA"},
		{0x00000004, "APPEND_DATA"},
		{0x00000020, "EXECUTE"},
	}
	var perms []string
	for _, r := range rights {
		if mask&r.bit != 0 {
			perms = append(perms, r.name)
		}
	}
	if len(perms) == 0 {
		return fmt.Sprintf("0x%08X", mask)
	}
	return strings.Join(perms, " | ")
}

// ACEFlagsString renders inheritance flags.
func ACEFlagsString(flags uint8) string {
	var f []string
	if flags&0x01 != 0 {
		f = append(f, "OBJECT_INHERIT")
	}
	if flags&0x02 != 0 {
		f = append(f, "CONTAINER_INHERIT")
	}
	if flags&0x04 != 0 {
		f = append(f, "NO_PROPAGATE")
	}
	if flags&0x08 != 0 {
		f = append(f, "INHERIT_ONLY")
	}
	return strings.Join(f, " | ")
}

// QuerySecurityDesc reads the security descriptor of an open file.
type QuerySecurityDesc struct {
	noSetup
	noData

	FID          uint16
	SecurityInfo uint32

	Length     uint32
	Descriptor *SecurityDescriptor
}

// NewQuerySecurityDesc queries owner, group and DACL of fid.
func NewQuerySecurityDesc(fid uint16) *QuerySecurityDesc {
	return &QuerySecurityDesc{FID: fid, SecurityInfo: SecurityInfoDefault}
}

func (q *QuerySecurityDesc) Kind() Kind { return KindQuerySecurityDesc }

func (q *QuerySecurityDesc) Limit(o *Options) {
	o.MaxParameterCount = 4
	o.MaxSetupCount = 0
}

func (q *QuerySecurityDesc) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(q.FID)
	w.Uint16(0)
	w.Uint32(q.SecurityInfo)
	return w.Err()
}

func (q *QuerySecurityDesc) DecodeParameters(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	q.Length = r.Uint32()
	return r.Offset(), r.Err()
}

func (q *QuerySecurityDesc) DecodeData(b []byte) (int, error) {
	if len(b) == 0 {
		q.Descriptor = nil
		return 0, nil
	}
	sd, err := DecodeSecurityDescriptor(b)
	if err != nil {
		return 0, err
	}
	q.Descriptor = sd
	return len(b), nil
}
