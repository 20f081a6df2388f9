package trans

import (
	"slices"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// FSInfo is the decoded QueryFSInformation response. Fields a level does
// not carry stay zero.
type FSInfo struct {
	Level uint16

	// Allocation and size levels
	FileSystemID    uint32
	SectorsPerUnit  uint32
	BytesPerSector  uint32
	TotalUnits      uint64
	FreeUnits       uint64
	CallerFreeUnits uint64

	// Volume level
	Created      time.Time
	SerialNumber uint32
	Label        string

	// Attribute level
	Attributes     uint32
	MaxNameLength  uint32
	FileSystemName string
}

// Capacity returns the total size in bytes.
func (i FSInfo) Capacity() uint64 {
	return i.TotalUnits * uint64(i.SectorsPerUnit) * uint64(i.BytesPerSector)
}

// Free returns the free size in bytes.
func (i FSInfo) Free() uint64 {
	return i.FreeUnits * uint64(i.SectorsPerUnit) * uint64(i.BytesPerSector)
}

// QueryFSInformation reads volume information for the connected share.
type QueryFSInformation struct {
	noData
	dialect

	Level uint16
	Info  FSInfo
}

// NewQueryFSInformation queries level; it must be one of SupportedFSLevels.
func NewQueryFSInformation(level uint16) *QueryFSInformation {
	return &QueryFSInformation{Level: level}
}

func (q *QueryFSInformation) Kind() Kind { return KindQueryFSInformation }

func (q *QueryFSInformation) Limit(o *Options) {
	o.MaxParameterCount = 0
	o.MaxDataCount = 800
	o.MaxSetupCount = 0
}

func (q *QueryFSInformation) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2QueryFSInformation)
}

func (q *QueryFSInformation) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(q.Level)
	return w.Err()
}

func (q *QueryFSInformation) DecodeSetup([]byte) error { return nil }

func (q *QueryFSInformation) DecodeParameters([]byte) (int, error) { return 0, nil }

func (q *QueryFSInformation) DecodeData(b []byte) (int, error) {
	q.Info = FSInfo{Level: q.Level}
	if !slices.Contains(SupportedFSLevels, q.Level) {
		return 0, nil
	}
	i := &q.Info
	r := q.reader(b)
	switch q.Level {
	case LevelFSAllocation:
		i.FileSystemID = r.Uint32()
		i.SectorsPerUnit = r.Uint32()
		i.TotalUnits = uint64(r.Uint32())
		i.FreeUnits = uint64(r.Uint32())
		i.BytesPerSector = uint32(r.Uint16())
		i.CallerFreeUnits = i.FreeUnits
	case LevelFSVolume:
		i.Created = r.Time()
		i.SerialNumber = r.Uint32()
		n := int(r.Uint32())
		r.Skip(2)
		i.Label = q.counted(r.Bytes(n))
	case LevelFSSize:
		i.TotalUnits = r.Uint64()
		i.FreeUnits = r.Uint64()
		i.SectorsPerUnit = r.Uint32()
		i.BytesPerSector = r.Uint32()
		i.CallerFreeUnits = i.FreeUnits
	case LevelFSAttribute:
		i.Attributes = r.Uint32()
		i.MaxNameLength = r.Uint32()
		n := int(r.Uint32())
		i.FileSystemName = encoding.FromUTF16LE(r.Bytes(n))
	case LevelFSFullSize:
		i.TotalUnits = r.Uint64()
		i.CallerFreeUnits = r.Uint64()
		i.FreeUnits = r.Uint64()
		i.SectorsPerUnit = r.Uint32()
		i.BytesPerSector = r.Uint32()
	}
	return r.Offset(), r.Err()
}

func (q *QueryFSInformation) counted(b []byte) string {
	if q.unicode {
		return encoding.FromUTF16LE(b)
	}
	return encoding.FromOEM(q.oem, b)
}
