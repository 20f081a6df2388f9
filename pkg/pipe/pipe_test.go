package pipe

import (
	"context"
	"testing"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/smb1test"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

func connect(t *testing.T, service string) (*smb1.Tree, *smb1test.Server) {
	t.Helper()
	ctx := context.Background()
	srv := smb1test.NewServer(t)
	srv.Accept(0x0800, 1, service)

	c := smb1.NewClient(srv, smb1.DefaultConfig())
	if _, err := c.Negotiate(ctx); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if _, err := c.SessionSetup(ctx, smb1.Credentials{}); err != nil {
		t.Fatalf("session setup: %v", err)
	}
	tree, err := c.TreeConnect(ctx, smb1.UNC("srv", smb1.IPCShare))
	if err != nil {
		t.Fatalf("tree connect: %v", err)
	}
	return tree, srv
}

func TestOpenRequiresIPC(t *testing.T) {
	tree, _ := connect(t, smb1.ServiceDisk)
	if _, err := Open(context.Background(), tree, PipeSrvsvc); err == nil {
		t.Fatal("expected error on a disk share")
	}
}

func TestPipeTransact(t *testing.T) {
	tree, srv := connect(t, smb1.ServicePipe)
	srv.Handlers[types.CommandNTCreateAndX] = func(req *types.Message) [][]byte {
		name, _, _ := encoding.ReadString(req.Bytes, 0, types.BytesOffset(req.WordCount()), 64, true, nil)
		if name != `\srvsvc` {
			t.Errorf("opened %q", name)
		}
		return [][]byte{smb1test.OpenReply(req, 0x4000, smb1.FileTypeMessagePipe, false)}
	}
	srv.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.TransTransactNamedPipe {
			t.Errorf("sub-command 0x%X", call.Sub)
		}
		return smb1test.TransResult{Data: append([]byte("re:"), call.Data...)}
	}

	ctx := context.Background()
	p, err := Open(ctx, tree, PipeSrvsvc)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if p.Name() != PipeSrvsvc || p.Tree() != tree {
		t.Errorf("unexpected pipe %s", p.Name())
	}

	out, err := p.Transact(ctx, []byte("bind"))
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if string(out) != "re:bind" {
		t.Errorf("reply %q", out)
	}

	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}
	cmds := srv.Commands()
	if cmds[len(cmds)-1] != types.CommandClose {
		t.Errorf("last command %s", cmds[len(cmds)-1])
	}
}

func TestPipeWriteRead(t *testing.T) {
	tree, srv := connect(t, smb1.ServicePipe)
	srv.Handlers[types.CommandNTCreateAndX] = func(req *types.Message) [][]byte {
		return [][]byte{smb1test.OpenReply(req, 0x4001, smb1.FileTypeMessagePipe, false)}
	}
	var written []byte
	srv.Handlers[types.CommandWriteAndX] = func(req *types.Message) [][]byte {
		n := encoding.Uint16LE(req.Words[20:])
		written = append(written, req.Bytes[1:1+n]...)
		words := make([]byte, 12)
		words[0] = 0xFF
		encoding.PutUint16LE(words[4:], n)
		return [][]byte{smb1test.Reply(req, types.StatusSuccess, words, nil)}
	}
	srv.Handlers[types.CommandReadAndX] = func(req *types.Message) [][]byte {
		words := make([]byte, 24)
		words[0] = 0xFF
		encoding.PutUint16LE(words[10:], 4)
		encoding.PutUint16LE(words[12:], uint16(types.BytesOffset(12)+1))
		return [][]byte{smb1test.Reply(req, types.StatusBufferOverflow, words, []byte("\x00part"))}
	}

	ctx := context.Background()
	p, err := Open(ctx, tree, PipeLsarpc)
	if err != nil {
		t.Fatal(err)
	}
	n, err := p.Write(ctx, []byte("hello"))
	if err != nil || n != 5 || string(written) != "hello" {
		t.Fatalf("wrote %d (%v), server saw %q", n, err, written)
	}
	data, more, err := p.Read(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "part" || !more {
		t.Errorf("read %q more=%v", data, more)
	}
}

func TestCheckPipeWithStatus(t *testing.T) {
	var tests = []struct {
		name   string
		status types.NTStatus
		want   string
	}{
		{"available", types.StatusSuccess, StatusAvailable},
		{"denied", types.StatusAccessDenied, StatusAccessDenied},
		{"missing", types.StatusObjectNameNotFound, StatusNotFound},
		{"busy", types.StatusPipeNotAvailable, StatusBusy},
		{"other", types.StatusSharingViolation, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, srv := connect(t, smb1.ServicePipe)
			srv.Handlers[types.CommandNTCreateAndX] = func(req *types.Message) [][]byte {
				if tt.status != types.StatusSuccess {
					return [][]byte{smb1test.Reply(req, tt.status, nil, nil)}
				}
				return [][]byte{smb1test.OpenReply(req, 1, smb1.FileTypeMessagePipe, false)}
			}
			got := CheckPipeWithStatus(context.Background(), tree, PipeSamr)
			if got.Status != tt.want {
				t.Errorf("status %q, want %q (%v)", got.Status, tt.want, got.Error)
			}
		})
	}
}

func TestCommonPipes(t *testing.T) {
	pipes := CommonPipes()
	seen := map[string]bool{}
	for _, p := range pipes {
		if seen[p] {
			t.Errorf("duplicate pipe %s", p)
		}
		seen[p] = true
	}
	if !seen[PipeSrvsvc] || !seen[PipeLsarpc] {
		t.Error("missing well-known pipes")
	}
	if seen[PipeLanman] {
		t.Error("RAP pipe listed as openable")
	}
	if Service(PipeSamr) == "" || Service("nosuch") != "" {
		t.Errorf("service lookup: %q, %q", Service(PipeSamr), Service("nosuch"))
	}
}

func namesEntry(next uint32, name string) []byte {
	n := encoding.ToUTF16LE(name)
	b := encoding.AppendUint32LE(nil, next)
	b = encoding.AppendUint32LE(b, 0)
	b = encoding.AppendUint32LE(b, uint32(len(n)))
	return append(b, n...)
}

func TestEnumerate(t *testing.T) {
	tree, srv := connect(t, smb1.ServicePipe)
	first := namesEntry(0, "srvsvc")
	encoding.PutUint32LE(first, uint32(len(first)))
	data := smb1test.Cat(first, namesEntry(0, "lsarpc"))

	srv.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.Trans2FindFirst2 {
			t.Fatalf("unexpected sub-command %d", call.Sub)
		}
		if level := encoding.Uint16LE(call.Params[6:]); level != trans.LevelFindNamesInfo {
			t.Errorf("level 0x%04X", level)
		}
		return smb1test.TransResult{Params: smb1test.U16(1, 2, 1, 0, 0), Data: data}
	}

	names, err := Enumerate(context.Background(), tree)
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if len(names) != 2 || names[0] != "lsarpc" || names[1] != "srvsvc" {
		t.Errorf("names %q", names)
	}
}
