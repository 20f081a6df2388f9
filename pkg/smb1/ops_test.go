package smb1

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/smb1test"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

func ipcHandler(f *smb1test.Server, tid uint16) {
	f.Handlers[types.CommandTreeConnectAndX] = func(req *types.Message) [][]byte {
		b := encoding.NewWriter(make([]byte, 16), types.BytesOffset(3))
		b.Unicode = true
		b.OEMString(ServicePipe)
		b.String("")
		return [][]byte{smb1test.WithTID(smb1test.Reply(req, types.StatusSuccess, []byte{0xFF, 0, 0, 0, 0, 0}, b.Bytes()), tid)}
	}
}

func shareEntry(name string, typ uint16, remark uint32) []byte {
	e := make([]byte, 20)
	copy(e, name)
	encoding.PutUint16LE(e[14:], typ)
	encoding.PutUint32LE(e[16:], remark)
	return e
}

func serverEntry(name string, typ, comment uint32) []byte {
	e := make([]byte, 26)
	copy(e, name)
	e[16], e[17] = 6, 1
	encoding.PutUint32LE(e[18:], typ)
	encoding.PutUint32LE(e[22:], comment)
	return e
}

func TestListShares(t *testing.T) {
	c, f := newTestClient(t)
	ipcHandler(f, 3)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Name != `\PIPE\LANMAN` {
			t.Errorf("transaction name %q", call.Name)
		}
		if !bytes.HasPrefix(call.Params, cat(u16(0), []byte("WrLeh\x00B13BWz\x00"))) {
			t.Errorf("parameters %q", call.Params)
		}
		data := cat(
			shareEntry("IPC$", 3, 40),
			shareEntry("DATA", 0, 51),
			[]byte("Remote IPC\x00"),
			[]byte("\x00"),
		)
		return smb1test.TransResult{Params: u16(0, 0, 2, 2), Data: data}
	}

	shares, err := c.ListShares(context.Background(), "srv")
	if err != nil {
		t.Fatalf("list shares failed: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("got %d shares", len(shares))
	}
	if shares[0].Name != "IPC$" || shares[0].Remark != "Remote IPC" || shares[1].Name != "DATA" {
		t.Errorf("unexpected shares %+v", shares)
	}

	want := []types.Command{types.CommandTreeConnectAndX, types.CommandTrans, types.CommandTreeDisconnect}
	got := f.Commands()
	if len(got) != len(want) {
		t.Fatalf("commands %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: %s, want %s", i, got[i], want[i])
		}
	}
	if f.Requests[1].Header.TID != 3 {
		t.Errorf("transaction on tid %d", f.Requests[1].Header.TID)
	}
}

func TestListSharesRAPError(t *testing.T) {
	c, f := newTestClient(t)
	ipcHandler(f, 3)
	f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult {
		return smb1test.TransResult{Params: u16(5, 0, 0, 0)}
	}
	_, err := c.ListShares(context.Background(), "srv")
	if !IsRAPError(err) {
		t.Fatalf("expected a RAP error, got %v", err)
	}
	if cmds := f.Commands(); cmds[len(cmds)-1] != types.CommandTreeDisconnect {
		t.Error("IPC$ tree left connected")
	}
}

func TestListServersContinues(t *testing.T) {
	c, f := newTestClient(t)
	ipcHandler(f, 3)
	calls := 0
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		calls++
		switch calls {
		case 1:
			if encoding.Uint16LE(call.Params) != trans.RAPNetServerEnum2 {
				t.Errorf("first call 0x%X", encoding.Uint16LE(call.Params))
			}
			data := cat(serverEntry("FILES", 0x3, 52), serverEntry("PRINT", 0x3, 52), []byte("\x00"))
			return smb1test.TransResult{Params: u16(trans.RAPErrorMoreData, 0, 2, 3), Data: data}
		default:
			if encoding.Uint16LE(call.Params) != trans.RAPNetServerEnum3 {
				t.Errorf("continuation 0x%X", encoding.Uint16LE(call.Params))
			}
			if !bytes.HasSuffix(call.Params, []byte("CORP\x00PRINT\x00")) {
				t.Errorf("continuation parameters %q", call.Params)
			}
			data := cat(serverEntry("PRINT", 0x3, 52), serverEntry("WEB", 0x3, 52), []byte("\x00"))
			return smb1test.TransResult{Params: u16(0, 0, 2, 2), Data: data}
		}
	}

	servers, err := c.ListServers(context.Background(), "srv", "corp", trans.SVTypeAll)
	if err != nil {
		t.Fatalf("list servers failed: %v", err)
	}
	var names []string
	for _, s := range servers {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "FILES,PRINT,WEB" {
		t.Errorf("servers %v", names)
	}
	if calls != 2 {
		t.Errorf("%d calls", calls)
	}
}

func findEntry(next, index uint32, name string, attrs uint32) []byte {
	n := encoding.ToUTF16LE(name)
	w := encoding.NewWriter(make([]byte, 94+len(n)), 0)
	w.Uint32(next)
	w.Uint32(index)
	for i := 0; i < 4; i++ {
		w.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	w.Uint64(uint64(len(name)))
	w.Uint64(4096)
	w.Uint32(attrs)
	w.Uint32(uint32(len(n)))
	w.Uint32(0)
	w.Zero(26)
	w.Write(n)
	return w.Bytes()
}

// findData chains entries through NextEntryOffset.
func findData(start uint32, names ...string) []byte {
	var out []byte
	for i, name := range names {
		e := findEntry(0, start+uint32(i), name, 0x20)
		if i < len(names)-1 {
			encoding.PutUint32LE(e, uint32(len(e)))
		}
		out = append(out, e...)
	}
	return out
}

func TestTreeList(t *testing.T) {
	c, f := newTestClient(t)
	f.ReplyBufferSize = 300
	tree := testTree(c, 5)

	var first, next []string
	for i := 0; i < 6; i++ {
		first = append(first, "file"+string(rune('a'+i))+".txt")
	}
	first = append([]string{".", ".."}, first...)
	next = []string{"zeta"}

	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		switch call.Sub {
		case trans.Trans2FindFirst2:
			pattern, _, _ := encoding.ReadString(call.Params, 12, 0, 256, true, nil)
			if pattern != `\docs\*` {
				t.Errorf("pattern %q", pattern)
			}
			return smb1test.TransResult{Params: u16(0x0A, uint16(len(first)), 0, 0, 0), Data: findData(1, first...)}
		case trans.Trans2FindNext2:
			if encoding.Uint16LE(call.Params) != 0x0A {
				t.Errorf("sid %x", call.Params[:2])
			}
			resume, _, _ := encoding.ReadString(call.Params, 12, 0, 256, true, nil)
			if resume != "filef.txt" {
				t.Errorf("resume name %q", resume)
			}
			return smb1test.TransResult{Params: u16(1, 1, 0, 0), Data: findData(100, next...)}
		}
		t.Fatalf("unexpected sub-command %d", call.Sub)
		return smb1test.TransResult{}
	}

	entries, err := tree.List(context.Background(), `\docs\*`)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Name != "filea.txt" || entries[6].Name != "zeta" {
		t.Errorf("entries %q .. %q", entries[0].Name, entries[6].Name)
	}

	for _, r := range f.Requests {
		if r.Header.Command == types.CommandFindClose2 {
			t.Error("search closed explicitly after end of search")
		}
	}
	if len(f.Requests) != 2 {
		t.Errorf("%d requests, want FindFirst2 and FindNext2", len(f.Requests))
	}
}

func TestTreeListNoMatch(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult {
		return smb1test.TransResult{Status: types.StatusNoSuchFile}
	}
	entries, err := testTree(c, 5).List(context.Background(), `\empty\*`)
	if err != nil || len(entries) != 0 {
		t.Fatalf("got %v, %v", entries, err)
	}
}

func TestTreeListClosesOnFailure(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub == trans.Trans2FindFirst2 {
			return smb1test.TransResult{Params: u16(0x0B, 1, 0, 0, 0), Data: findData(1, "a")}
		}
		return smb1test.TransResult{Status: types.StatusAccessDenied}
	}
	_, err := testTree(c, 5).List(context.Background(), `\*`)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	last := f.Requests[len(f.Requests)-1]
	if last.Header.Command != types.CommandFindClose2 || encoding.Uint16LE(last.Words) != 0x0B {
		t.Errorf("search handle not closed: %s", last.Header.Command)
	}
}

func TestTreeListClosesOnEmptyContinuation(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub == trans.Trans2FindFirst2 {
			return smb1test.TransResult{Params: u16(0x0C, 1, 0, 0, 0), Data: findData(1, "a")}
		}
		// no entries and no end of search
		return smb1test.TransResult{Params: u16(0, 0, 0, 0)}
	}
	entries, err := testTree(c, 5).List(context.Background(), `\*`)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries", len(entries))
	}
	last := f.Requests[len(f.Requests)-1]
	if last.Header.Command != types.CommandFindClose2 || encoding.Uint16LE(last.Words) != 0x0C {
		t.Errorf("search handle not closed: %s", last.Header.Command)
	}
}

func TestTreeListUnsupportedLevel(t *testing.T) {
	c, f := newTestClient(t)
	_, err := testTree(c, 5).ListLevel(context.Background(), `\*`, 0x0001)
	if !errors.Is(err, ErrUnsupportedLevel) {
		t.Fatalf("expected ErrUnsupportedLevel, got %v", err)
	}
	if len(f.Requests) != 0 {
		t.Errorf("%d requests sent", len(f.Requests))
	}
}

func TestStat(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.Trans2QueryPathInformation || encoding.Uint16LE(call.Params) != trans.LevelQueryStandard {
			t.Errorf("sub 0x%X params %x", call.Sub, call.Params)
		}
		data := cat(encoding.AppendUint32LE(encoding.AppendUint32LE(nil, 8192), 0),
			encoding.AppendUint32LE(encoding.AppendUint32LE(nil, 5000), 0),
			[]byte{1, 0, 0, 0, 0, 1, 0, 0})
		return smb1test.TransResult{Params: u16(0), Data: data}
	}
	info, err := testTree(c, 5).Stat(context.Background(), `\a\b.txt`, trans.LevelQueryStandard)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Standard.EndOfFile != 5000 || !info.Standard.Directory {
		t.Errorf("unexpected %+v", info.Standard)
	}
}

func TestStatNotFound(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult {
		return smb1test.TransResult{Status: types.StatusObjectNameNotFound}
	}
	_, err := testTree(c, 5).Stat(context.Background(), `\missing`, trans.LevelQueryBasic)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("sentinel expected, got %v", se)
	}
}

func TestUnsupportedLevelNotSent(t *testing.T) {
	c, f := newTestClient(t)
	tree := testTree(c, 5)
	if _, err := tree.Stat(context.Background(), `\x`, 0x0999); !errors.Is(err, ErrUnsupportedLevel) {
		t.Errorf("stat: %v", err)
	}
	if _, err := tree.DiskInfo(context.Background(), 0x0999); !errors.Is(err, ErrUnsupportedLevel) {
		t.Errorf("disk info: %v", err)
	}
	if len(f.Requests) != 0 {
		t.Errorf("%d requests sent", len(f.Requests))
	}
}

func TestDiskInfo(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.Trans2QueryFSInformation {
			t.Errorf("sub 0x%X", call.Sub)
		}
		data := cat(encoding.AppendUint32LE(encoding.AppendUint32LE(nil, 1000), 0),
			encoding.AppendUint32LE(encoding.AppendUint32LE(nil, 250), 0),
			[]byte{8, 0, 0, 0}, []byte{0, 2, 0, 0})
		return smb1test.TransResult{Data: data}
	}
	info, err := testTree(c, 5).DiskInfo(context.Background(), trans.LevelFSSize)
	if err != nil {
		t.Fatal(err)
	}
	if info.Capacity() != 1000*8*512 || info.Free() != 250*8*512 {
		t.Errorf("capacity %d free %d", info.Capacity(), info.Free())
	}
}

func createHandler(f *smb1test.Server, fid, fileType uint16, dir bool) {
	f.Handlers[types.CommandNTCreateAndX] = func(req *types.Message) [][]byte {
		return [][]byte{smb1test.OpenReply(req, fid, fileType, dir)}
	}
}

func TestOpenAndClose(t *testing.T) {
	c, f := newTestClient(t)
	createHandler(f, 0x4001, FileTypeDisk, true)
	tree := testTree(c, 5)

	file, err := tree.Open(context.Background(), `\dir`, ReadOnly)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if file.FID != 0x4001 || !file.Directory || file.IsPipe() {
		t.Errorf("unexpected file %+v", file)
	}
	req := f.Requests[0]
	if nameLen := encoding.Uint16LE(req.Words[5:]); nameLen != 8 {
		t.Errorf("name length %d", nameLen)
	}
	name, _, err := encoding.ReadString(req.Bytes, 0, types.BytesOffset(ntCreateWords), 64, true, nil)
	if err != nil || name != `\dir` {
		t.Errorf("name %q (%v)", name, err)
	}

	if err := file.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	cl := f.Requests[1]
	if cl.Header.Command != types.CommandClose || encoding.Uint16LE(cl.Words) != 0x4001 {
		t.Errorf("close sent %s %x", cl.Header.Command, cl.Words)
	}
}

func TestSecurityDescriptor(t *testing.T) {
	c, f := newTestClient(t)
	createHandler(f, 0x22, FileTypeDisk, false)
	sd := make([]byte, 20)
	sd[0] = 1
	encoding.PutUint32LE(sd[4:], 20)
	sd = append(sd, 1, 1, 0, 0, 0, 0, 0, 5, 18, 0, 0, 0)

	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Command != types.CommandNTTrans || call.Sub != trans.NTTransQuerySecurityDesc {
			t.Errorf("%s sub %d", call.Command, call.Sub)
		}
		if encoding.Uint16LE(call.Params) != 0x22 {
			t.Errorf("fid %x", call.Params[:2])
		}
		return smb1test.TransResult{Params: encoding.AppendUint32LE(nil, uint32(len(sd))), Data: sd}
	}

	desc, err := testTree(c, 5).SecurityDescriptor(context.Background(), `\f.txt`)
	if err != nil {
		t.Fatalf("security descriptor failed: %v", err)
	}
	if desc.Owner == nil || desc.Owner.String() != "S-1-5-18" {
		t.Errorf("owner %v", desc.Owner)
	}
	if last := f.Requests[len(f.Requests)-1]; last.Header.Command != types.CommandClose {
		t.Errorf("handle not closed, last %s", last.Header.Command)
	}
}

func TestTransactPipeOverflow(t *testing.T) {
	c, f := newTestClient(t)
	file := &File{FID: 0x10, Name: `\srvsvc`, FileType: FileTypeMessagePipe, tree: testTree(c, 3)}

	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.TransTransactNamedPipe || encoding.Uint16LE(call.Setup[2:]) != 0x10 {
			t.Errorf("setup %x", call.Setup)
		}
		if string(call.Data) != "request" {
			t.Errorf("input %q", call.Data)
		}
		return smb1test.TransResult{Status: types.StatusBufferOverflow, Data: []byte("first-")}
	}
	f.Handlers[types.CommandReadAndX] = func(req *types.Message) [][]byte {
		words := make([]byte, 24)
		words[0] = 0xFF
		encoding.PutUint16LE(words[10:], 6)
		encoding.PutUint16LE(words[12:], uint16(types.BytesOffset(12)+1))
		return [][]byte{smb1test.Reply(req, types.StatusSuccess, words, []byte("\x00second"))}
	}

	out, err := file.TransactPipe(context.Background(), []byte("request"))
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if string(out) != "first-second" {
		t.Errorf("output %q", out)
	}
}

func TestCallPipeMultiPacketRequest(t *testing.T) {
	c, f := newTestClient(t)
	c.maxBufferSize = 1024
	input := bytes.Repeat([]byte("0123456789"), 300)

	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Name != `\PIPE\echo` {
			t.Errorf("name %q", call.Name)
		}
		return smb1test.TransResult{Data: call.Data}
	}
	out, err := testTree(c, 3).CallPipe(context.Background(), "echo", input)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("echoed %d bytes, want %d", len(out), len(input))
	}

	secondaries := 0
	for _, r := range f.Requests {
		if r.Header.Command == types.CommandTransSecondary {
			secondaries++
			if r.Header.MID != f.Requests[0].Header.MID {
				t.Errorf("secondary mid %d", r.Header.MID)
			}
		}
		if r.Size() > c.maxBufferSize {
			t.Errorf("%s of %d bytes exceeds %d", r.Header.Command, r.Size(), c.maxBufferSize)
		}
	}
	if secondaries < 2 {
		t.Errorf("%d secondaries", secondaries)
	}
}

func TestPeekAndWaitPipe(t *testing.T) {
	c, f := newTestClient(t)
	tree := testTree(c, 3)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		switch call.Sub {
		case trans.TransPeekNamedPipe:
			return smb1test.TransResult{Params: u16(12, 12, trans.PipeStateConnected)}
		case trans.TransWaitNamedPipe:
			if call.Name != `\PIPE\lsarpc` {
				t.Errorf("wait name %q", call.Name)
			}
			return smb1test.TransResult{Status: types.StatusPipeBusy}
		}
		return smb1test.TransResult{}
	}

	file := &File{FID: 0x11, FileType: FileTypeMessagePipe, tree: tree}
	p, err := file.PeekPipe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.Available != 12 || p.State != trans.PipeStateConnected {
		t.Errorf("peek %+v", p)
	}

	if err := tree.WaitPipe(context.Background(), `\lsarpc`, time.Second); !errors.Is(err, ErrPipeBusy) {
		t.Errorf("expected ErrPipeBusy, got %v", err)
	}
}

func TestWatchDirectory(t *testing.T) {
	c, f := newTestClient(t)
	createHandler(f, 0x30, FileTypeDisk, true)
	name := encoding.ToUTF16LE("new.txt")
	record := cat(encoding.AppendUint32LE(nil, 0), encoding.AppendUint32LE(nil, trans.ActionAdded),
		encoding.AppendUint32LE(nil, uint32(len(name))), name)
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		if call.Sub != trans.NTTransNotifyChange {
			t.Errorf("sub %d", call.Sub)
		}
		return smb1test.TransResult{Params: record}
	}

	changes, err := testTree(c, 5).WatchDirectory(context.Background(), `\dir`, true)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if len(changes) != 1 || changes[0].FileName != "new.txt" || changes[0].Action != trans.ActionAdded {
		t.Errorf("changes %+v", changes)
	}
}

func TestDfsReferralCached(t *testing.T) {
	c, f := newTestClient(t)
	node := encoding.ToUTF16LEWithNull(`\\FS1\share`)
	data := cat(u16(uint16(2*len(`\corp\dfs`)), 1, 0, 0), u16(1, uint16(8+len(node)), 0, 0), node)
	calls := 0
	f.OnTrans = func(call *smb1test.TransCall) smb1test.TransResult {
		calls++
		if call.Sub != trans.Trans2GetDfsReferral {
			t.Errorf("sub 0x%X", call.Sub)
		}
		return smb1test.TransResult{Data: data}
	}

	tree := testTree(c, 3)
	for i := 0; i < 2; i++ {
		ref, err := tree.DfsReferral(context.Background(), `\corp\dfs`)
		if err != nil {
			t.Fatalf("referral failed: %v", err)
		}
		if len(ref.Referrals) != 1 || ref.Referrals[0].Node != `\\FS1\share` || ref.PathConsumed != 9 {
			t.Fatalf("unexpected referral %+v", ref)
		}
	}
	if calls != 1 {
		t.Errorf("%d server calls, want 1", calls)
	}

	c.FlushDfs()
	if _, err := tree.DfsReferral(context.Background(), `\corp\dfs`); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("flush did not drop the cache")
	}
}

func TestDfsReferralCacheReturnsCopies(t *testing.T) {
	c, f := newTestClient(t)
	node := encoding.ToUTF16LEWithNull(`\\FS1\share`)
	data := cat(u16(uint16(2*len(`\corp\dfs`)), 1, 0, 0), u16(1, uint16(8+len(node)), 0, 0), node)
	f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult { return smb1test.TransResult{Data: data} }

	tree := testTree(c, 3)
	for i := 0; i < 3; i++ {
		ref, err := tree.DfsReferral(context.Background(), `\corp\dfs`)
		if err != nil {
			t.Fatalf("referral failed: %v", err)
		}
		if len(ref.Referrals) != 1 || ref.Referrals[0].Node != `\\FS1\share` {
			t.Fatalf("cached referral changed: %+v", ref)
		}
		ref.Referrals[0].Node = "changed"
		ref.Referrals = append(ref.Referrals, trans.Referral{})
	}
}

func TestTransactCanceled(t *testing.T) {
	c, f := newTestClient(t)
	f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult { return smb1test.TransResult{} }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testTree(c, 3).DiskInfo(ctx, trans.LevelFSSize); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.Requests) != 0 {
		t.Error("request sent after cancellation")
	}
}

func TestTransactOverflowAcrossPackets(t *testing.T) {
	tests := []struct {
		name   string
		result smb1test.TransResult
		want   error
	}{
		{
			name:   "first of several packets",
			result: smb1test.TransResult{Status: types.StatusBufferOverflow, Data: bytes.Repeat([]byte("x"), 1000)},
			want:   trans.ErrIncomplete,
		},
		{
			name: "after a successful fragment",
			result: smb1test.TransResult{
				Data:         bytes.Repeat([]byte("x"), 1000),
				PacketStatus: []types.NTStatus{types.StatusSuccess, types.StatusBufferOverflow},
			},
			want: ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, f := newTestClient(t)
			f.ReplyBufferSize = 300
			f.OnTrans = func(*smb1test.TransCall) smb1test.TransResult { return tt.result }

			raw := &trans.Raw{Command: types.CommandTrans, TransName: `\PIPE\`, SetupWords: []uint16{trans.TransTransactNamedPipe, 0x10}}
			status, err := c.Transact(context.Background(), 3, raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if status != types.StatusBufferOverflow {
				t.Errorf("status %#x", uint32(status))
			}
			if raw.ResponseData != nil {
				t.Errorf("partial data decoded: %d bytes", len(raw.ResponseData))
			}
		})
	}
}
