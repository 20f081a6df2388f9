package encoding

import "time"

// millisecondsBetween1970And1601 is the distance between the Unix epoch and
// the Windows FILETIME epoch.
const millisecondsBetween1970And1601 = 11644473600000

// unixTimeUnset is written for a zero Unix time; servers read it as
// "leave unchanged".
const unixTimeUnset = 0xFFFFFFFF

// FileTime converts t to 100ns ticks since 1601-01-01 at millisecond
// precision. The zero time maps to 0.
func FileTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli()+millisecondsBetween1970And1601) * 10000
}

// FromFileTime is the inverse of FileTime.
func FromFileTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ft/10000) - millisecondsBetween1970And1601)
}

// WriteTime writes t as an absolute 64-bit time at off.
func WriteTime(dst []byte, off int, t time.Time) (int, error) {
	return PutUint64At(dst, off, FileTime(t))
}

// ReadTime reads an absolute 64-bit time at off.
func ReadTime(src []byte, off int) (time.Time, int, error) {
	v, n, err := Uint64At(src, off)
	if err != nil {
		return time.Time{}, 0, err
	}
	return FromFileTime(v), n, nil
}

// WriteUTime writes t as 32-bit seconds since 1970.
func WriteUTime(dst []byte, off int, t time.Time) (int, error) {
	if t.IsZero() {
		return PutUint32At(dst, off, unixTimeUnset)
	}
	return PutUint32At(dst, off, uint32(t.Unix()))
}

// ReadUTime reads 32-bit seconds since 1970. 0 and 0xFFFFFFFF read as the
// zero time.
func ReadUTime(src []byte, off int) (time.Time, int, error) {
	v, n, err := Uint32At(src, off)
	if err != nil {
		return time.Time{}, 0, err
	}
	if v == 0 || v == unixTimeUnset {
		return time.Time{}, n, nil
	}
	return time.Unix(int64(v), 0), n, nil
}
