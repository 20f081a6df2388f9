package trans

import (
	"slices"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// BasicInfo carries file times and attributes.
type BasicInfo struct {
	Created    time.Time
	LastAccess time.Time
	LastWrite  time.Time
	Changed    time.Time
	Attributes uint32
}

// StandardInfo carries sizes and link state.
type StandardInfo struct {
	AllocationSize uint64
	EndOfFile      uint64
	Links          uint32
	DeletePending  bool
	Directory      bool
}

// FileInformation is the decoded result of a path or file query. Only the
// part matching Level is populated.
type FileInformation struct {
	Level       uint16
	Basic       BasicInfo
	Standard    StandardInfo
	IndexNumber uint64
}

// fileInfoResult is shared by QueryPathInformation and QueryFileInformation.
type fileInfoResult struct {
	noSetup
	noData

	Level uint16
	Info  FileInformation
}

func (f *fileInfoResult) Limit(o *Options) {
	o.MaxParameterCount = 2
	o.MaxDataCount = 40
	o.MaxSetupCount = 0
}

func (f *fileInfoResult) DecodeParameters([]byte) (int, error) { return 0, nil }

func (f *fileInfoResult) DecodeData(b []byte) (int, error) {
	f.Info = FileInformation{Level: f.Level}
	if !slices.Contains(SupportedPathLevels, f.Level) {
		return 0, nil
	}
	r := encoding.NewReader(b, 0)
	switch f.Level {
	case LevelQueryBasic, LevelPassthroughBasic:
		f.Info.Basic = readBasic(r)
		r.Skip(4)
	case LevelQueryStandard, LevelPassthroughStandard:
		s := &f.Info.Standard
		s.AllocationSize = r.Uint64()
		s.EndOfFile = r.Uint64()
		s.Links = r.Uint32()
		s.DeletePending = r.Uint8() != 0
		s.Directory = r.Uint8() != 0
		r.Skip(2)
	case LevelPassthroughInternal:
		f.Info.IndexNumber = r.Uint64()
	}
	return r.Offset(), r.Err()
}

func readBasic(r *encoding.Reader) BasicInfo {
	return BasicInfo{
		Created:    r.Time(),
		LastAccess: r.Time(),
		LastWrite:  r.Time(),
		Changed:    r.Time(),
		Attributes: r.Uint32(),
	}
}

// QueryPathInformation queries a file by path.
type QueryPathInformation struct {
	fileInfoResult
	Path string
}

// NewQueryPathInformation queries path at level, which must be one of
// SupportedPathLevels.
func NewQueryPathInformation(path string, level uint16) *QueryPathInformation {
	return &QueryPathInformation{fileInfoResult: fileInfoResult{Level: level}, Path: path}
}

func (q *QueryPathInformation) Kind() Kind { return KindQueryPathInformation }

func (q *QueryPathInformation) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2QueryPathInformation)
}

func (q *QueryPathInformation) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(q.Level)
	w.Uint32(0)
	w.String(q.Path)
	return w.Err()
}

// QueryFileInformation queries an open file by FID.
type QueryFileInformation struct {
	fileInfoResult
	FID uint16
}

// NewQueryFileInformation queries fid at level.
func NewQueryFileInformation(fid, level uint16) *QueryFileInformation {
	return &QueryFileInformation{fileInfoResult: fileInfoResult{Level: level}, FID: fid}
}

func (q *QueryFileInformation) Kind() Kind { return KindQueryFileInformation }

func (q *QueryFileInformation) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2QueryFileInformation)
}

func (q *QueryFileInformation) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(q.FID)
	w.Uint16(q.Level)
	return w.Err()
}

// SetFileInformation updates times and attributes of an open file. Zero
// times are sent as 0 and leave the server's value unchanged.
type SetFileInformation struct {
	noSetup

	FID        uint16
	Attributes uint32
	Created    time.Time
	LastAccess time.Time
	LastWrite  time.Time
	Changed    time.Time
}

func (s *SetFileInformation) Kind() Kind { return KindSetFileInformation }

func (s *SetFileInformation) Limit(o *Options) {
	o.MaxParameterCount = 6
	o.MaxDataCount = 0
	o.MaxSetupCount = 0
}

func (s *SetFileInformation) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2SetFileInformation)
}

func (s *SetFileInformation) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(s.FID)
	w.Uint16(LevelSetBasic)
	w.Uint16(0)
	return w.Err()
}

func (s *SetFileInformation) EncodeData(w *encoding.Writer) error {
	w.Time(s.Created)
	w.Time(s.LastAccess)
	w.Time(s.LastWrite)
	w.Time(s.Changed)
	w.Uint32(s.Attributes)
	w.Uint32(0)
	return w.Err()
}

func (s *SetFileInformation) DecodeParameters([]byte) (int, error) { return 0, nil }

func (s *SetFileInformation) DecodeData([]byte) (int, error) { return 0, nil }
