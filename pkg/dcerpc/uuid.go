package dcerpc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// UUID is a DCE UUID in wire order (first three fields little-endian)
type UUID [16]byte

func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		encoding.Uint32LE(u[0:4]),
		encoding.Uint16LE(u[4:6]),
		encoding.Uint16LE(u[6:8]),
		u[8:10],
		u[10:16])
}

// ParseUUID parses the textual form, with or without dashes or braces
func ParseUUID(s string) (UUID, error) {
	s = strings.Trim(strings.ReplaceAll(s, "-", ""), "{}")
	if len(s) != 32 {
		return UUID{}, fmt.Errorf("invalid UUID length: %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID: %w", err)
	}

	var u UUID
	encoding.PutUint32LE(u[0:4], uint32(raw[0])<<24|uint32(raw[1])<<16|uint32(raw[2])<<8|uint32(raw[3]))
	encoding.PutUint16LE(u[4:6], uint16(raw[4])<<8|uint16(raw[5]))
	encoding.PutUint16LE(u[6:8], uint16(raw[6])<<8|uint16(raw[7]))
	copy(u[8:], raw[8:])
	return u, nil
}

// MustParseUUID is ParseUUID for constants
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// SyntaxID names an interface or transfer syntax and its version. Version
// carries major in the low 16 bits and minor in the high 16 bits.
type SyntaxID struct {
	UUID    UUID
	Version uint32
}

// ParseSyntax parses "uuid" or "uuid:major.minor"
func ParseSyntax(s string) (SyntaxID, error) {
	id, ver, _ := strings.Cut(s, ":")
	u, err := ParseUUID(id)
	if err != nil {
		return SyntaxID{}, err
	}
	syn := SyntaxID{UUID: u}
	if ver == "" {
		return syn, nil
	}
	majS, minS, _ := strings.Cut(ver, ".")
	major, err := strconv.ParseUint(majS, 10, 16)
	if err != nil {
		return SyntaxID{}, fmt.Errorf("invalid version %q", ver)
	}
	var minor uint64
	if minS != "" {
		if minor, err = strconv.ParseUint(minS, 10, 16); err != nil {
			return SyntaxID{}, fmt.Errorf("invalid version %q", ver)
		}
	}
	syn.Version = uint32(major) | uint32(minor)<<16
	return syn, nil
}

func (s SyntaxID) String() string {
	return fmt.Sprintf("%s v%d.%d", s.UUID, s.Version&0xFFFF, s.Version>>16)
}

func (s SyntaxID) encode(w *encoding.Writer) {
	w.Write(s.UUID[:])
	w.Uint32(s.Version)
}

func (s *SyntaxID) decode(r *encoding.Reader) {
	copy(s.UUID[:], r.Bytes(16))
	s.Version = r.Uint32()
}

// Transfer syntaxes
var (
	NDRSyntax   = SyntaxID{UUID: MustParseUUID("8a885d04-1ceb-11c9-9fe8-08002b104860"), Version: 2}
	NDR64Syntax = SyntaxID{UUID: MustParseUUID("71710533-beba-4937-8319-b5dbef9ccc36"), Version: 1}
)

// Interface describes a well-known RPC interface reachable over a pipe
type Interface struct {
	Name        string
	Syntax      SyntaxID
	Pipe        string
	Description string
}

// WellKnownInterfaces lists interfaces commonly exposed on IPC$
var WellKnownInterfaces = []Interface{
	{"SRVS", SyntaxID{MustParseUUID("4b324fc8-1670-01d3-1278-5a47bf6ee188"), 3}, "srvsvc", "Server Service"},
	{"WKST", SyntaxID{MustParseUUID("6bffd098-a112-3610-9833-46c3f87e345a"), 1}, "wkssvc", "Workstation Service"},
	{"SAMR", SyntaxID{MustParseUUID("12345778-1234-abcd-ef00-0123456789ac"), 1}, "samr", "SAM Remote Protocol"},
	{"LSAR", SyntaxID{MustParseUUID("12345778-1234-abcd-ef00-0123456789ab"), 0}, "lsarpc", "LSA Remote Protocol"},
	{"NETLOGON", SyntaxID{MustParseUUID("12345678-1234-abcd-ef00-01234567cffb"), 1}, "netlogon", "Netlogon Remote Protocol"},
	{"SVCCTL", SyntaxID{MustParseUUID("367abb81-9844-35f1-ad32-98f038001003"), 2}, "svcctl", "Service Control Manager"},
	{"WINREG", SyntaxID{MustParseUUID("338cd001-2244-31f1-aaaa-900038001003"), 1}, "winreg", "Remote Registry"},
	{"RPRN", SyntaxID{MustParseUUID("12345678-1234-abcd-ef00-0123456789ab"), 1}, "spoolss", "Print System Remote"},
	{"DFSNM", SyntaxID{MustParseUUID("4fc742e0-4a10-11cf-8273-00aa004ae673"), 3}, "netdfs", "DFS Namespace Management"},
	{"EPM", SyntaxID{MustParseUUID("e1af8308-5d1f-11c9-91a4-08002b14a0fa"), 3}, "epmapper", "Endpoint Mapper"},
}

// LookupInterface finds a well-known interface by name (case-insensitive)
// or by UUID string.
func LookupInterface(key string) *Interface {
	u, uerr := ParseUUID(key)
	for i := range WellKnownInterfaces {
		iface := &WellKnownInterfaces[i]
		if strings.EqualFold(iface.Name, key) || (uerr == nil && iface.Syntax.UUID == u) {
			return iface
		}
	}
	return nil
}
