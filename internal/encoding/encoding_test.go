package encoding

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestTimeRoundTrip(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())

	tests := []struct {
		name string
		in   time.Time
	}{
		{"zero", time.Time{}},
		{"now", now},
		{"epoch", time.UnixMilli(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 8)
			n, err := WriteTime(buf, 0, tt.in)
			if err != nil || n != 8 {
				t.Fatalf("WriteTime = %d, %v", n, err)
			}
			got, n, err := ReadTime(buf, 0)
			if err != nil || n != 8 {
				t.Fatalf("ReadTime = %d, %v", n, err)
			}
			if !got.Equal(tt.in) {
				t.Errorf("got %v, want %v", got, tt.in)
			}
		})
	}
}

func TestTimeZeroEncodesZero(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := WriteTime(buf, 0, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, make([]byte, 8)) {
		t.Errorf("zero time encoded as %x", buf)
	}
}

func TestFileTimeEpoch(t *testing.T) {
	// 1970-01-01 in FILETIME ticks
	const unixEpoch = 116444736000000000
	if got := FileTime(time.Unix(0, 0)); got != unixEpoch {
		t.Errorf("FileTime(epoch) = %d, want %d", got, unixEpoch)
	}
}

func TestUTimeRoundTrip(t *testing.T) {
	buf := make([]byte, 4)

	now := time.Unix(time.Now().Unix(), 0)
	if _, err := WriteUTime(buf, 0, now); err != nil {
		t.Fatal(err)
	}
	got, n, err := ReadUTime(buf, 0)
	if err != nil || n != 4 {
		t.Fatalf("ReadUTime = %d, %v", n, err)
	}
	if !got.Equal(now) {
		t.Errorf("got %v, want %v", got, now)
	}

	if _, err := WriteUTime(buf, 0, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if Uint32LE(buf) != 0xFFFFFFFF {
		t.Errorf("zero UTime encoded as %#x", Uint32LE(buf))
	}
	for _, raw := range []uint32{0, 0xFFFFFFFF} {
		PutUint32LE(buf, raw)
		got, _, _ := ReadUTime(buf, 0)
		if !got.IsZero() {
			t.Errorf("%#x decoded as %v, want zero time", raw, got)
		}
	}
}

func TestOEMStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "A", "TEST_DOMAIN", "café"} {
		buf := make([]byte, 64)
		n, err := WriteString(buf, 0, 0, s, false, nil)
		if err != nil {
			t.Fatalf("WriteString(%q): %v", s, err)
		}
		if want := len([]rune(s)) + 1; n != want {
			t.Errorf("WriteString(%q) wrote %d, want %d", s, n, want)
		}
		got, m, err := ReadString(buf, 0, 0, 64, false, nil)
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if got != s || m != n {
			t.Errorf("ReadString = %q, %d; want %q, %d", got, m, s, n)
		}
	}
}

func TestUnicodeStringRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		off    int
		origin int
		want   int
	}{
		{"even", "share", 0, 0, 12},
		{"odd offset", "share", 1, 0, 13},
		{"odd origin", "share", 0, 33, 13},
		{"odd both", "share", 1, 33, 12},
		{"empty", "", 0, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 64)
			n, err := WriteString(buf, tt.off, tt.origin, tt.s, true, nil)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("wrote %d, want %d", n, tt.want)
			}
			if n != StringWireLength(tt.s, tt.origin+tt.off, true, nil) {
				t.Errorf("StringWireLength disagrees with WriteString")
			}
			got, m, err := ReadString(buf, tt.off, tt.origin, 64, true, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.s || m != n {
				t.Errorf("ReadString = %q, %d; want %q, %d", got, m, tt.s, n)
			}
		})
	}
}

func TestReadStringTooLong(t *testing.T) {
	buf := append([]byte("ABCDEFGH"), 0)
	if _, _, err := ReadString(buf, 0, 0, 4, false, nil); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("OEM: got %v, want ErrStringTooLong", err)
	}

	u := ToUTF16LEWithNull("ABCDEFGH")
	if _, _, err := ReadString(u, 0, 0, 4, true, nil); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("Unicode: got %v, want ErrStringTooLong", err)
	}
}

func TestReadStringAtEndOfSource(t *testing.T) {
	var tests = []struct {
		name    string
		src     []byte
		off     int
		origin  int
		unicode bool
		want    string
		n       int
	}{
		{"empty unicode at odd position", []byte{}, 0, 41, true, "", 0},
		{"empty unicode at even position", []byte{}, 0, 40, true, "", 0},
		{"unicode at end, odd position", []byte{1, 2, 3}, 3, 0, true, "", 0},
		{"pad byte is the last byte", []byte{0}, 0, 1, true, "", 1},
		{"unterminated after pad", []byte{0, 'A', 0}, 0, 1, true, "A", 3},
		{"empty OEM", []byte{}, 0, 0, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := ReadString(tt.src, tt.off, tt.origin, 256, tt.unicode, nil)
			if err != nil {
				t.Fatalf("ReadString: %v", err)
			}
			if got != tt.want || n != tt.n {
				t.Errorf("ReadString = %q, %d; want %q, %d", got, n, tt.want, tt.n)
			}
		})
	}

	if _, _, err := ReadString([]byte{0}, 2, 0, 8, true, nil); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("offset past source: got %v, want ErrShortBuffer", err)
	}
}

func TestWriteStringBufferTooSmall(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := WriteString(buf, 0, 0, "ABCDEFGH", false, nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("got %v, want ErrBufferTooSmall", err)
	}
}

func TestOffsetHelpersBounds(t *testing.T) {
	buf := make([]byte, 3)
	if _, err := PutUint32At(buf, 0, 1); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("PutUint32At: got %v", err)
	}
	if _, _, err := Uint16At(buf, 2); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Uint16At: got %v", err)
	}
	if n, err := PutUint16At(buf, 1, 0xBEEF); err != nil || n != 2 {
		t.Fatalf("PutUint16At = %d, %v", n, err)
	}
	if v, n, err := Uint16At(buf, 1); err != nil || n != 2 || v != 0xBEEF {
		t.Errorf("Uint16At = %#x, %d, %v", v, n, err)
	}
}

func TestWriterReader(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriter(buf, 1)
	w.Unicode = true
	w.Uint8(0xAA)
	w.Uint16(0x1234)
	w.Uint32(0xDEADBEEF)
	w.Align(4)
	w.Uint64(42)
	w.String("x")
	w.OEMString("Y")
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes(), 1)
	r.Unicode = true
	if v := r.Uint8(); v != 0xAA {
		t.Errorf("Uint8 = %#x", v)
	}
	if v := r.Uint16(); v != 0x1234 {
		t.Errorf("Uint16 = %#x", v)
	}
	if v := r.Uint32(); v != 0xDEADBEEF {
		t.Errorf("Uint32 = %#x", v)
	}
	// origin 1 + 7 bytes written: aligned to 8 with no padding
	if v := r.Uint64(); v != 42 {
		t.Errorf("Uint64 = %d", v)
	}
	if s := r.String(16); s != "x" {
		t.Errorf("String = %q", s)
	}
	if s := r.OEMString(16); s != "Y" {
		t.Errorf("OEMString = %q", s)
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d", r.Remaining())
	}
}

func TestWriterStickyError(t *testing.T) {
	w := NewWriter(make([]byte, 3), 0)
	w.Uint16(1)
	w.Uint16(2)
	w.Uint8(3)
	if !errors.Is(w.Err(), ErrBufferTooSmall) {
		t.Fatalf("Err = %v", w.Err())
	}
	if w.Len() != 2 {
		t.Errorf("Len = %d, want 2", w.Len())
	}
}

func TestReaderShort(t *testing.T) {
	r := NewReader([]byte{1, 2, 3}, 0)
	r.Uint16()
	if v := r.Uint32(); v != 0 {
		t.Errorf("Uint32 = %d", v)
	}
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Errorf("Err = %v", r.Err())
	}
}
