package dcerpc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/pipe"
)

var _ Transport = (*pipe.Pipe)(nil)

// fakePipe answers Transact through handle and serves Read from queued
type fakePipe struct {
	handle func(pdu []byte) []byte
	queued [][]byte
	writes [][]byte
	reads  int
}

func (f *fakePipe) Transact(ctx context.Context, b []byte) ([]byte, error) {
	return f.handle(b), nil
}

func (f *fakePipe) Read(ctx context.Context, n int) ([]byte, bool, error) {
	f.reads++
	if len(f.queued) == 0 {
		return nil, false, nil
	}
	b := f.queued[0]
	f.queued = f.queued[1:]
	return b, len(f.queued) > 0, nil
}

func (f *fakePipe) Write(ctx context.Context, b []byte) (int, error) {
	f.writes = append(f.writes, b)
	return len(b), nil
}

func bindAck(callID uint32, result uint16) []byte {
	w := encoding.NewWriter(make([]byte, 68), 0)
	h := Header{PacketType: PacketTypeBindAck, Flags: 3, FragLength: 68, CallID: callID}
	h.encode(w)
	w.Uint16(1024)
	w.Uint16(2048)
	w.Uint32(0x1234)
	w.Uint16(13)
	w.Write([]byte("\\PIPE\\srvsvc\x00"))
	w.Zero(1)
	w.Uint8(1)
	w.Zero(3)
	w.Uint16(result)
	w.Uint16(0)
	NDRSyntax.encode(w)
	return w.Bytes()
}

func response(callID uint32, flags uint8, stub []byte) []byte {
	size := responseHeaderSize + len(stub)
	w := encoding.NewWriter(make([]byte, size), 0)
	h := Header{PacketType: PacketTypeResponse, Flags: flags, FragLength: uint16(size), CallID: callID}
	h.encode(w)
	w.Uint32(uint32(len(stub)))
	w.Zero(4)
	w.Write(stub)
	return w.Bytes()
}

func fault(callID uint32, status uint32) []byte {
	w := encoding.NewWriter(make([]byte, 32), 0)
	h := Header{PacketType: PacketTypeFault, Flags: 3, FragLength: 32, CallID: callID}
	h.encode(w)
	w.Zero(8)
	w.Uint32(status)
	w.Zero(4)
	return w.Bytes()
}

// server binds anything and hands each request to call
func server(t *testing.T, call func(h *Header, stub []byte) []byte) *fakePipe {
	return &fakePipe{handle: func(pdu []byte) []byte {
		h, err := ParseHeader(pdu)
		if err != nil {
			t.Fatalf("bad pdu: %v", err)
		}
		if h.PacketType == PacketTypeBind {
			return bindAck(h.CallID, 0)
		}
		return call(h, pdu[requestHeaderSize:])
	}}
}

func TestParseUUID(t *testing.T) {
	uuid, err := ParseUUID("4b324fc8-1670-01d3-1278-5a47bf6ee188")
	if err != nil {
		t.Fatalf("failed to parse valid UUID: %v", err)
	}
	if s := uuid.String(); s != "4b324fc8-1670-01d3-1278-5a47bf6ee188" {
		t.Errorf("round trip gave %s", s)
	}
	if uuid[0] != 0xc8 || uuid[4] != 0x70 || uuid[8] != 0x12 {
		t.Errorf("wrong wire order: % x", uuid[:])
	}

	uuid2, err := ParseUUID("{4b324fc8167001d312785a47bf6ee188}")
	if err != nil {
		t.Fatalf("failed to parse compact UUID: %v", err)
	}
	if uuid != uuid2 {
		t.Error("UUIDs should be equal regardless of format")
	}

	if _, err := ParseUUID("4b324fc8-1670"); err == nil {
		t.Error("expected error for short UUID")
	}
	if _, err := ParseUUID("zzzzzzzz-1670-01d3-1278-5a47bf6ee188"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestParseSyntax(t *testing.T) {
	s, err := ParseSyntax("367abb81-9844-35f1-ad32-98f038001003:2.1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 2|1<<16 {
		t.Errorf("version 0x%X", s.Version)
	}
	if s.String() != "367abb81-9844-35f1-ad32-98f038001003 v2.1" {
		t.Errorf("string %s", s)
	}
	if _, err := ParseSyntax("367abb81-9844-35f1-ad32-98f038001003:x"); err == nil {
		t.Error("expected error for bad version")
	}
}

func TestLookupInterface(t *testing.T) {
	iface := LookupInterface("srvs")
	if iface == nil || iface.Pipe != "srvsvc" {
		t.Fatalf("lookup by name gave %+v", iface)
	}
	if got := LookupInterface(iface.Syntax.UUID.String()); got != iface {
		t.Errorf("lookup by UUID gave %+v", got)
	}
	if LookupInterface("nonexistent") != nil {
		t.Error("expected nil for unknown interface")
	}
}

func TestHeaderRejectsBadVersion(t *testing.T) {
	b := response(1, 3, nil)
	b[0] = 4
	if _, err := ParseHeader(b); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	if _, err := ParseHeader(b[:10]); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestBindMarshal(t *testing.T) {
	iface := LookupInterface("SRVS").Syntax
	b := Bind{CallID: 7, MaxXmitFrag: 4280, MaxRecvFrag: 4280, Abstract: iface}
	pdu, err := b.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if len(pdu) != 72 {
		t.Fatalf("expected 72 bytes, got %d", len(pdu))
	}
	h, err := ParseHeader(pdu)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketType != PacketTypeBind || h.FragLength != 72 || h.CallID != 7 || !h.First() || !h.Last() {
		t.Errorf("header %+v", h)
	}
	if pdu[24] != 1 {
		t.Errorf("context count %d", pdu[24])
	}
	if !bytes.Equal(pdu[32:48], iface.UUID[:]) {
		t.Error("abstract syntax not at offset 32")
	}
	if !bytes.Equal(pdu[52:68], NDRSyntax.UUID[:]) {
		t.Error("transfer syntax should default to NDR")
	}
}

func TestParseBindAck(t *testing.T) {
	ack, err := ParseBindAck(bindAck(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Accepted() || ack.SecAddr != `\PIPE\srvsvc` || ack.AssocGroup != 0x1234 {
		t.Errorf("ack %+v", ack)
	}
	if ack.Results[0].Transfer != NDRSyntax {
		t.Errorf("transfer %s", ack.Results[0].Transfer)
	}
	if _, err := ParseBindAck(bindAck(3, 0)[:40]); err == nil {
		t.Error("expected error for truncated bind_ack")
	}
}

func TestMarshalRequestFragments(t *testing.T) {
	stub := bytes.Repeat([]byte{0xAB}, 100)
	frags, err := MarshalRequest(9, 0, 15, stub, requestHeaderSize+40)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}

	wantFlags := []uint8{PacketFlagFirstFrag, 0, PacketFlagLastFrag}
	wantHint := []uint32{100, 60, 20}
	var joined []byte
	for i, f := range frags {
		h, err := ParseHeader(f)
		if err != nil {
			t.Fatal(err)
		}
		if h.Flags != wantFlags[i] || int(h.FragLength) != len(f) {
			t.Errorf("fragment %d: %+v", i, h)
		}
		if hint := encoding.Uint32LE(f[16:]); hint != wantHint[i] {
			t.Errorf("fragment %d: alloc hint %d", i, hint)
		}
		if op := encoding.Uint16LE(f[22:]); op != 15 {
			t.Errorf("fragment %d: opnum %d", i, op)
		}
		joined = append(joined, f[requestHeaderSize:]...)
	}
	if !bytes.Equal(joined, stub) {
		t.Error("fragments do not reassemble to the stub")
	}

	frags, err = MarshalRequest(1, 0, 0, nil, DefaultMaxFrag)
	if err != nil || len(frags) != 1 || frags[0][3] != PacketFlagFirstFrag|PacketFlagLastFrag {
		t.Errorf("empty stub: %v %d", err, len(frags))
	}
	if _, err := MarshalRequest(1, 0, 0, stub, requestHeaderSize); err == nil {
		t.Error("expected error for tiny max fragment")
	}
}

func TestClientBindAndCall(t *testing.T) {
	p := server(t, func(h *Header, stub []byte) []byte {
		out := append([]byte("ok:"), stub...)
		return response(h.CallID, 3, out)
	})
	c := NewClient(p)
	ctx := context.Background()

	if _, err := c.Call(ctx, 0, nil); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}

	iface := LookupInterface("SRVS").Syntax
	if err := c.Bind(ctx, iface); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !c.Bound() || c.Interface() != iface {
		t.Error("client not bound")
	}
	if x, r := c.MaxFrag(); x != 1024 || r != 2048 {
		t.Errorf("max frag %d/%d", x, r)
	}

	out, err := c.Call(ctx, 15, []byte("stub"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ok:stub" {
		t.Errorf("reply %q", out)
	}
}

func TestClientFragmentedRequest(t *testing.T) {
	var got []byte
	p := server(t, func(h *Header, stub []byte) []byte {
		return response(h.CallID, 3, []byte{byte(len(stub) >> 8), byte(len(stub))})
	})
	c := NewClient(p)
	ctx := context.Background()
	if err := c.Bind(ctx, LookupInterface("SAMR").Syntax); err != nil {
		t.Fatal(err)
	}

	stub := bytes.Repeat([]byte{1}, 2500)
	out, err := c.Call(ctx, 1, stub)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.writes) != 2 {
		t.Fatalf("expected 2 written fragments, got %d", len(p.writes))
	}
	for _, w := range p.writes {
		if len(w) > 1024 {
			t.Errorf("fragment of %d bytes exceeds max xmit", len(w))
		}
		got = append(got, w[requestHeaderSize:]...)
	}
	if len(got) != 2000 || out[0] != 0x01 || out[1] != 0xF4 {
		t.Errorf("wrote %d stub bytes, last fragment carried 0x%02X%02X", len(got), out[0], out[1])
	}
}

func TestClientFragmentedResponse(t *testing.T) {
	p := &fakePipe{}
	p.handle = func(pdu []byte) []byte {
		h, _ := ParseHeader(pdu)
		if h.PacketType == PacketTypeBind {
			return bindAck(h.CallID, 0)
		}
		first := response(h.CallID, PacketFlagFirstFrag, []byte("hello "))
		second := response(h.CallID, 0, []byte("big "))
		last := response(h.CallID, PacketFlagLastFrag, []byte("world"))
		// the transaction reply stops halfway through the second fragment
		p.queued = [][]byte{second[10:], last}
		return append(first, second[:10]...)
	}

	c := NewClient(p)
	ctx := context.Background()
	if err := c.Bind(ctx, LookupInterface("LSAR").Syntax); err != nil {
		t.Fatal(err)
	}
	out, err := c.Call(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello big world" {
		t.Errorf("reassembled %q", out)
	}
	if p.reads != 2 {
		t.Errorf("expected 2 reads, got %d", p.reads)
	}
}

func TestClientFault(t *testing.T) {
	p := server(t, func(h *Header, stub []byte) []byte {
		return fault(h.CallID, StatusOpRangeError)
	})
	c := NewClient(p)
	ctx := context.Background()
	if err := c.Bind(ctx, LookupInterface("SRVS").Syntax); err != nil {
		t.Fatal(err)
	}
	_, err := c.Call(ctx, 99, nil)
	if !IsFault(err, StatusOpRangeError) {
		t.Fatalf("expected op range fault, got %v", err)
	}
	if err.Error() != "RPC fault: nca_s_op_rng_error (0x1C010002)" {
		t.Errorf("message %q", err)
	}
}

func TestClientCallIDMismatch(t *testing.T) {
	p := server(t, func(h *Header, stub []byte) []byte {
		return response(h.CallID+5, 3, nil)
	})
	c := NewClient(p)
	ctx := context.Background()
	if err := c.Bind(ctx, LookupInterface("SRVS").Syntax); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Call(ctx, 0, nil); !errors.Is(err, ErrCallMismatch) {
		t.Errorf("expected ErrCallMismatch, got %v", err)
	}
}

func TestClientBindRefused(t *testing.T) {
	tests := []struct {
		name  string
		reply func(callID uint32) []byte
	}{
		{"rejected context", func(id uint32) []byte { return bindAck(id, 2) }},
		{"nak", func(id uint32) []byte {
			w := encoding.NewWriter(make([]byte, 20), 0)
			h := Header{PacketType: PacketTypeBindNak, Flags: 3, FragLength: 20, CallID: id}
			h.encode(w)
			w.Uint16(4)
			w.Zero(2)
			return w.Bytes()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipe{handle: func(pdu []byte) []byte {
				h, _ := ParseHeader(pdu)
				return tt.reply(h.CallID)
			}}
			c := NewClient(p)
			err := c.Bind(context.Background(), LookupInterface("EPM").Syntax)
			if !errors.Is(err, ErrBindFailed) {
				t.Fatalf("expected ErrBindFailed, got %v", err)
			}
			if c.Bound() {
				t.Error("client bound after refusal")
			}
		})
	}
}
