package types

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(CommandTrans2, 0x1234, true)
	h.Status = StatusAccessDenied
	h.TID = 7
	h.UID = 0x800
	h.SetPID(0x00ABCDEF)
	copy(h.SecuritySig[:], "SIGNATUR")

	buf := make([]byte, 40)
	n, err := h.Encode(buf, 4)
	if err != nil || n != HeaderSize {
		t.Fatalf("Encode = %d, %v", n, err)
	}
	if !bytes.Equal(buf[4:8], []byte{0xFF, 'S', 'M', 'B'}) {
		t.Errorf("marker = %x", buf[4:8])
	}

	var got Header
	n, err = got.Decode(buf, 4)
	if err != nil || n != HeaderSize {
		t.Fatalf("Decode = %d, %v", n, err)
	}
	if got != *h {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, *h)
	}
	if got.PID() != 0x00ABCDEF {
		t.Errorf("PID = %#x", got.PID())
	}
	if !got.IsUnicode() || got.IsResponse() {
		t.Error("unexpected flags")
	}
}

func TestHeaderDecodeMarker(t *testing.T) {
	tests := []struct {
		name   string
		marker []byte
		want   error
	}{
		{"smb2", []byte{0xFE, 'S', 'M', 'B'}, ErrUnsupportedProtocol},
		{"garbage", []byte{0x00, 'S', 'M', 'B'}, ErrBadMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, HeaderSize)
			copy(buf, tt.marker)
			var h Header
			_, err := h.Decode(buf, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Offset != 0 {
				t.Errorf("expected DecodeError at offset 0, got %v", err)
			}
		})
	}
}

func TestHeaderEncodeTooSmall(t *testing.T) {
	h := NewHeader(CommandEcho, 1, false)
	if _, err := h.Encode(make([]byte, 31), 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("got %v, want ErrBufferTooSmall", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		Header: *NewHeader(CommandEcho, 9, false),
		Words:  []byte{1, 0},
		Bytes:  []byte("ping"),
	}

	buf := make([]byte, 64)
	n, err := m.Encode(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != m.Size() || n != HeaderSize+1+2+2+4 {
		t.Fatalf("Encode wrote %d, Size %d", n, m.Size())
	}

	var got Message
	consumed, err := got.Decode(buf[:n], 0)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != n {
		t.Errorf("consumed %d, want %d", consumed, n)
	}
	if got.WordCount() != 1 || !bytes.Equal(got.Words, m.Words) || !bytes.Equal(got.Bytes, m.Bytes) {
		t.Errorf("got words %x bytes %q", got.Words, got.Bytes)
	}
	if got.Header.MID != 9 {
		t.Errorf("MID = %d", got.Header.MID)
	}
}

func TestMessageEncodeErrors(t *testing.T) {
	m := Message{Header: *NewHeader(CommandEcho, 1, false), Words: []byte{1}}
	if _, err := m.Encode(make([]byte, 64), 0); !errors.Is(err, ErrOddWords) {
		t.Errorf("odd words: got %v", err)
	}

	m.Words = []byte{1, 0}
	if _, err := m.Encode(make([]byte, 36), 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("small buffer: got %v", err)
	}
}

func TestMessageDecodeTruncated(t *testing.T) {
	m := Message{Header: *NewHeader(CommandEcho, 1, false), Words: []byte{1, 0}, Bytes: []byte("abc")}
	buf, err := m.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var got Message
	_, err = got.Decode(buf[:len(buf)-1], 0)
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want truncated DecodeError", err)
	}
}

func TestMIDAllocatorSkipsReserved(t *testing.T) {
	var a MIDAllocator
	a.next.Store(0xFFFD)

	if got := a.Next(); got != 0xFFFE {
		t.Errorf("got %#x, want 0xFFFE", got)
	}
	// 0xFFFF and 0 are skipped
	if got := a.Next(); got != 1 {
		t.Errorf("got %#x, want 1", got)
	}
}

func TestMIDAllocatorConcurrent(t *testing.T) {
	var a MIDAllocator
	seen := make(chan uint16, 1000)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				seen <- a.Next()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(seen)

	uniq := make(map[uint16]bool)
	for mid := range seen {
		if uniq[mid] {
			t.Fatalf("duplicate MID %d", mid)
		}
		uniq[mid] = true
	}
	if len(uniq) != 1000 {
		t.Errorf("got %d unique MIDs", len(uniq))
	}
}
