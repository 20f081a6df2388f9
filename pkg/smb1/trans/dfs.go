package trans

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// ErrReferralVersion is returned for referral entries of an unknown version.
var ErrReferralVersion = errors.New("unsupported referral version")

// Referral entry flags
const (
	ReferralNameListReferral  uint16 = 0x0002
	ReferralTargetSetBoundary uint16 = 0x0004
)

// Referral header flags
const (
	ReferralServers        uint32 = 0x00000001
	ReferralStorageServers uint32 = 0x00000002
	ReferralTargetFailback uint32 = 0x00000004
)

// maxReferralLevel is the highest referral version requested.
const maxReferralLevel = 3

// Referral is one DFS referral entry.
type Referral struct {
	Version    uint16
	Size       uint16
	ServerType uint16
	Flags      uint16
	Proximity  uint32
	TTL        uint32

	// Path is the DFS path the referral resolves; Node is the target.
	Path          string
	AlternatePath string
	Node          string

	// SpecialName and Expanded are set for name list referrals.
	SpecialName string
	Expanded    []string

	ServiceSiteGUID [16]byte
}

// GetDfsReferral resolves a DFS path.
type GetDfsReferral struct {
	noSetup
	noData

	Path     string
	MaxLevel uint16

	// PathConsumed is in characters.
	PathConsumed int
	HeaderFlags  uint32
	Referrals    []Referral
}

// NewGetDfsReferral requests referrals for path.
func NewGetDfsReferral(path string) *GetDfsReferral {
	return &GetDfsReferral{Path: path, MaxLevel: maxReferralLevel}
}

// Clone returns a deep copy of g.
func (g *GetDfsReferral) Clone() *GetDfsReferral {
	c := *g
	c.Referrals = make([]Referral, len(g.Referrals))
	for i, r := range g.Referrals {
		r.Expanded = slices.Clone(r.Expanded)
		c.Referrals[i] = r
	}
	return &c
}

func (g *GetDfsReferral) Kind() Kind { return KindGetDfsReferral }

func (g *GetDfsReferral) Limit(o *Options) {
	o.MaxParameterCount = 0
	o.MaxDataCount = 4096
	o.MaxSetupCount = 0
}

func (g *GetDfsReferral) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2GetDfsReferral)
}

// EncodeParameters always writes the path in Unicode.
func (g *GetDfsReferral) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(g.MaxLevel)
	w.Write(encoding.ToUTF16LEWithNull(g.Path))
	return w.Err()
}

func (g *GetDfsReferral) DecodeParameters([]byte) (int, error) { return 0, nil }

func (g *GetDfsReferral) DecodeData(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	g.PathConsumed = int(r.Uint16()) / 2
	n := int(r.Uint16())
	g.HeaderFlags = uint32(r.Uint16())
	r.Skip(2)
	if err := r.Err(); err != nil {
		return 0, err
	}

	g.Referrals = make([]Referral, 0, n)
	off := r.Offset()
	for i := 0; i < n; i++ {
		ref, size, err := decodeReferral(b, off)
		if err != nil {
			return off, fmt.Errorf("referral %d: %w", i, err)
		}
		g.Referrals = append(g.Referrals, ref)
		off += size
	}
	return off, nil
}

func decodeReferral(b []byte, start int) (Referral, int, error) {
	var ref Referral
	if start > len(b) {
		return ref, 0, encoding.ErrShortBuffer
	}
	r := encoding.NewReader(b[start:], 0)
	ref.Version = r.Uint16()
	ref.Size = r.Uint16()
	ref.ServerType = r.Uint16()
	ref.Flags = r.Uint16()
	if err := r.Err(); err != nil {
		return ref, 0, err
	}

	var err error
	switch ref.Version {
	case 1:
		ref.Node, err = stringAt(b, start+r.Offset())
	case 2:
		ref.Proximity = r.Uint32()
		ref.TTL = r.Uint32()
		err = ref.targets(b, start, r)
	case 3, 4:
		ref.TTL = r.Uint32()
		if ref.Flags&ReferralNameListReferral != 0 {
			err = ref.nameList(b, start, r)
		} else {
			err = ref.targets(b, start, r)
			if err == nil && ref.Size >= 34 {
				copy(ref.ServiceSiteGUID[:], r.Bytes(16))
			}
		}
	default:
		return ref, 0, fmt.Errorf("%w: %d", ErrReferralVersion, ref.Version)
	}
	if err != nil {
		return ref, 0, err
	}
	size := int(ref.Size)
	if size == 0 {
		size = r.Offset()
	}
	return ref, size, nil
}

func (ref *Referral) targets(b []byte, start int, r *encoding.Reader) error {
	path := int(r.Uint16())
	alt := int(r.Uint16())
	node := int(r.Uint16())
	if err := r.Err(); err != nil {
		return err
	}
	var err error
	if ref.Path, err = optionalStringAt(b, start, path); err != nil {
		return err
	}
	if ref.AlternatePath, err = optionalStringAt(b, start, alt); err != nil {
		return err
	}
	ref.Node, err = optionalStringAt(b, start, node)
	return err
}

func (ref *Referral) nameList(b []byte, start int, r *encoding.Reader) error {
	special := int(r.Uint16())
	count := int(r.Uint16())
	expanded := int(r.Uint16())
	if err := r.Err(); err != nil {
		return err
	}
	var err error
	if ref.SpecialName, err = optionalStringAt(b, start, special); err != nil {
		return err
	}
	if expanded == 0 {
		return nil
	}
	off := start + expanded
	for i := 0; i < count; i++ {
		s, n, err := encoding.ReadString(b, off, off%2, len(b), true, nil)
		if err != nil {
			return err
		}
		ref.Expanded = append(ref.Expanded, s)
		off += n
	}
	return nil
}

func optionalStringAt(b []byte, start, rel int) (string, error) {
	if rel == 0 {
		return "", nil
	}
	return stringAt(b, start+rel)
}

func stringAt(b []byte, off int) (string, error) {
	s, _, err := encoding.ReadString(b, off, off%2, len(b), true, nil)
	return s, err
}
