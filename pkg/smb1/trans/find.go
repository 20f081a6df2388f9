package trans

import (
	"fmt"
	"slices"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// FindFirst2 request flags
const (
	FindCloseAfterRequest uint16 = 0x0001
	FindCloseAtEOS        uint16 = 0x0002
	FindReturnResumeKeys  uint16 = 0x0004
	FindContinueFromLast  uint16 = 0x0008
)

// DefaultSearchAttributes selects hidden, system and directory entries.
const DefaultSearchAttributes uint16 = 0x0016

// FileInfo is one directory entry returned by a search.
type FileInfo struct {
	NextEntryOffset uint32
	FileIndex       uint32
	Created         time.Time
	LastAccess      time.Time
	LastWrite       time.Time
	Changed         time.Time
	EndOfFile       uint64
	AllocationSize  uint64
	Attributes      uint32
	EASize          uint32
	ShortName       string
	Name            string
}

// IsDir reports whether the entry is a directory.
func (f FileInfo) IsDir() bool { return f.Attributes&0x10 != 0 }

// searchResult holds what FindFirst2 and FindNext2 responses share.
type searchResult struct {
	dialect

	Count          int
	EndOfSearch    bool
	EAErrorOffset  uint16
	LastNameOffset uint16
	Entries        []FileInfo

	level uint16
}

// LastFileName returns the name to continue a search from.
func (s *searchResult) LastFileName() string {
	if len(s.Entries) == 0 {
		return ""
	}
	return s.Entries[len(s.Entries)-1].Name
}

// LastFileIndex returns the file index of the last entry.
func (s *searchResult) LastFileIndex() uint32 {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[len(s.Entries)-1].FileIndex
}

// DecodeData decodes Count entries; an unsupported level decodes nothing.
func (s *searchResult) DecodeData(b []byte) (int, error) {
	s.Entries = s.Entries[:0]
	if !slices.Contains(SupportedFindLevels, s.level) {
		return 0, nil
	}
	off := 0
	for i := 0; i < s.Count; i++ {
		if off >= len(b) {
			break
		}
		fi, n, err := s.decodeEntry(b[off:])
		if err != nil {
			return off, fmt.Errorf("entry %d: %w", i, err)
		}
		s.Entries = append(s.Entries, fi)
		if fi.NextEntryOffset == 0 {
			off += n
			break
		}
		off += int(fi.NextEntryOffset)
	}
	return min(off, len(b)), nil
}

func (s *searchResult) decodeEntry(b []byte) (FileInfo, int, error) {
	var fi FileInfo
	r := s.reader(b)
	fi.NextEntryOffset = r.Uint32()
	fi.FileIndex = r.Uint32()
	if s.level == LevelFindNamesInfo {
		n := int(r.Uint32())
		fi.Name = s.counted(r.Bytes(n))
		return fi, r.Offset(), r.Err()
	}
	fi.Created = r.Time()
	fi.LastAccess = r.Time()
	fi.LastWrite = r.Time()
	fi.Changed = r.Time()
	fi.EndOfFile = r.Uint64()
	fi.AllocationSize = r.Uint64()
	fi.Attributes = r.Uint32()
	n := int(r.Uint32())
	if s.level != LevelFindDirectoryInfo {
		fi.EASize = r.Uint32()
	}
	if s.level == LevelFindBothDirectoryInfo {
		short := int(r.Uint8())
		r.Skip(1)
		raw := r.Bytes(24)
		if r.Err() == nil {
			fi.ShortName = s.counted(raw[:min(short, 24)])
		}
	}
	fi.Name = s.counted(r.Bytes(n))
	return fi, r.Offset(), r.Err()
}

// counted decodes a length-prefixed name, dropping a trailing terminator.
func (s *searchResult) counted(b []byte) string {
	if s.unicode {
		if len(b) >= 2 && b[len(b)-1] == 0 && b[len(b)-2] == 0 {
			b = b[:len(b)-2]
		}
		return encoding.FromUTF16LE(b)
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return encoding.FromOEM(s.oem, b)
}

func (s *searchResult) limit(o *Options) {
	o.MaxParameterCount = 10
	o.MaxSetupCount = 0
}

// FindFirst2 starts a directory search.
type FindFirst2 struct {
	noData
	searchResult

	Pattern     string
	Attributes  uint16
	SearchCount uint16
	Flags       uint16
	Level       uint16

	// SID is the search handle returned by the server.
	SID uint16
}

// NewFindFirst2 searches pattern with the both-directory level.
func NewFindFirst2(pattern string, count uint16) *FindFirst2 {
	return &FindFirst2{
		Pattern:     pattern,
		Attributes:  DefaultSearchAttributes,
		SearchCount: count,
		Flags:       FindCloseAtEOS,
		Level:       LevelFindBothDirectoryInfo,
	}
}

func (f *FindFirst2) Kind() Kind { return KindFindFirst2 }

func (f *FindFirst2) Limit(o *Options) { f.limit(o) }

func (f *FindFirst2) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2FindFirst2)
}

func (f *FindFirst2) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(f.Attributes & 0x37)
	w.Uint16(f.SearchCount)
	w.Uint16(f.Flags)
	w.Uint16(f.Level)
	w.Uint32(0)
	w.String(f.Pattern)
	return w.Err()
}

func (f *FindFirst2) DecodeSetup([]byte) error { return nil }

func (f *FindFirst2) DecodeParameters(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	f.SID = r.Uint16()
	f.Count = int(r.Uint16())
	f.EndOfSearch = r.Uint16() != 0
	f.EAErrorOffset = r.Uint16()
	f.LastNameOffset = r.Uint16()
	f.level = f.Level
	return r.Offset(), r.Err()
}

// FindNext2 continues a search opened by FindFirst2.
type FindNext2 struct {
	noData
	searchResult

	SID         uint16
	SearchCount uint16
	Level       uint16
	ResumeKey   uint32
	Flags       uint16
	FileName    string
}

// NewFindNext2 continues the search sid from the entry named name.
func NewFindNext2(sid, count, level uint16, resumeKey uint32, name string) *FindNext2 {
	return &FindNext2{
		SID:         sid,
		SearchCount: count,
		Level:       level,
		ResumeKey:   resumeKey,
		Flags:       FindCloseAtEOS | FindContinueFromLast,
		FileName:    name,
	}
}

// Next returns the FindNext2 continuing this search.
func (f *FindFirst2) Next() *FindNext2 {
	return NewFindNext2(f.SID, f.SearchCount, f.Level, f.LastFileIndex(), f.LastFileName())
}

// Next returns the FindNext2 continuing this search.
func (f *FindNext2) Next() *FindNext2 {
	return NewFindNext2(f.SID, f.SearchCount, f.Level, f.LastFileIndex(), f.LastFileName())
}

func (f *FindNext2) Kind() Kind { return KindFindNext2 }

func (f *FindNext2) Limit(o *Options) { f.limit(o) }

func (f *FindNext2) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, Trans2FindNext2)
}

func (f *FindNext2) EncodeParameters(w *encoding.Writer) error {
	w.Uint16(f.SID)
	w.Uint16(f.SearchCount)
	w.Uint16(f.Level)
	w.Uint32(f.ResumeKey)
	w.Uint16(f.Flags)
	w.String(f.FileName)
	return w.Err()
}

func (f *FindNext2) DecodeSetup([]byte) error { return nil }

func (f *FindNext2) DecodeParameters(b []byte) (int, error) {
	r := encoding.NewReader(b, 0)
	f.Count = int(r.Uint16())
	f.EndOfSearch = r.Uint16() != 0
	f.EAErrorOffset = r.Uint16()
	f.LastNameOffset = r.Uint16()
	f.level = f.Level
	return r.Offset(), r.Err()
}
