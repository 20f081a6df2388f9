package smb1

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// IPCShare is the share carrying named pipes and RAP calls.
const IPCShare = "IPC$"

// listCount is the number of entries asked for per search packet.
const listCount = 200

// withIPC runs fn on a temporary IPC$ tree.
func (c *Client) withIPC(ctx context.Context, host string, fn func(*Tree) error) error {
	t, err := c.TreeConnect(ctx, UNC(host, IPCShare))
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Disconnect(ctx); err != nil {
			debug.Printf("disconnect %s: %v\n", t.Share, err)
		}
	}()
	return fn(t)
}

// ListShares returns the shares of host using NetShareEnum over IPC$.
func (c *Client) ListShares(ctx context.Context, host string) ([]trans.ShareInfo, error) {
	var shares []trans.ShareInfo
	err := c.withIPC(ctx, host, func(t *Tree) error {
		enum := trans.NewNetShareEnum()
		if _, err := c.Transact(ctx, t.TID, enum); err != nil {
			return fmt.Errorf("share enumeration failed: %w", err)
		}
		shares = enum.Shares
		return nil
	})
	return shares, err
}

// ListServers enumerates servers of serverTypes in domain through the
// browser on host. A domain of "" asks for the server's own domain.
// Partial results are continued with NetServerEnum3 from the last name.
func (c *Client) ListServers(ctx context.Context, host, domain string, serverTypes uint32) ([]trans.ServerInfo, error) {
	var servers []trans.ServerInfo
	err := c.withIPC(ctx, host, func(t *Tree) error {
		enum := trans.NewNetServerEnum2(domain, serverTypes)
		for {
			if _, err := c.Transact(ctx, t.TID, enum); err != nil {
				return fmt.Errorf("server enumeration failed: %w", err)
			}
			servers = append(servers, enum.Servers...)
			if !enum.More() || len(enum.Servers) == 0 {
				return nil
			}
			debug.WithFields(debug.Fields{
				"returned":  enum.Returned,
				"available": enum.Available,
				"last":      enum.LastEntry(),
			}, "continuing server enumeration")
			enum = enum.Continue()
		}
	})
	return servers, err
}

// List returns the entries matching pattern, such as `\dir\*`. The "."
// and ".." entries are dropped.
func (t *Tree) List(ctx context.Context, pattern string) ([]trans.FileInfo, error) {
	return t.ListLevel(ctx, pattern, trans.LevelFindBothDirectoryInfo)
}

// ListLevel is List at a find level, one of trans.SupportedFindLevels.
func (t *Tree) ListLevel(ctx context.Context, pattern string, level uint16) ([]trans.FileInfo, error) {
	if err := checkLevel(level, trans.SupportedFindLevels); err != nil {
		return nil, err
	}
	c := t.client
	first := trans.NewFindFirst2(pattern, listCount)
	first.Level = level
	status, err := c.Transact(ctx, t.TID, first)
	if status == types.StatusNoSuchFile {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}

	var entries []trans.FileInfo
	keep := func(infos []trans.FileInfo) {
		for _, fi := range infos {
			if fi.Name != "." && fi.Name != ".." {
				entries = append(entries, fi)
			}
		}
	}
	// The server only drops the handle itself at the end of the search.
	closeSearch := func() {
		if cerr := t.FindClose2(context.WithoutCancel(ctx), first.SID); cerr != nil {
			debug.Printf("find close: %v\n", cerr)
		}
	}
	keep(first.Entries)

	eos, count := first.EndOfSearch, first.Count
	next := first.Next()
	for !eos && count > 0 {
		if _, err := c.Transact(ctx, t.TID, next); err != nil {
			closeSearch()
			return entries, fmt.Errorf("list %s: %w", pattern, err)
		}
		keep(next.Entries)
		eos, count = next.EndOfSearch, next.Count
		next = next.Next()
	}
	if !eos {
		closeSearch()
	}
	return entries, nil
}

// checkLevel rejects levels that have no decoder.
func checkLevel(level uint16, allowed []uint16) error {
	if !slices.Contains(allowed, level) {
		return fmt.Errorf("%w: 0x%04X", ErrUnsupportedLevel, level)
	}
	return nil
}

// Stat queries path at level, one of trans.SupportedPathLevels.
func (t *Tree) Stat(ctx context.Context, path string, level uint16) (*trans.FileInformation, error) {
	if err := checkLevel(level, trans.SupportedPathLevels); err != nil {
		return nil, err
	}
	q := trans.NewQueryPathInformation(path, level)
	if _, err := t.client.Transact(ctx, t.TID, q); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &q.Info, nil
}

// Stat queries the open file at level, one of trans.SupportedPathLevels.
func (f *File) Stat(ctx context.Context, level uint16) (*trans.FileInformation, error) {
	if err := checkLevel(level, trans.SupportedPathLevels); err != nil {
		return nil, err
	}
	q := trans.NewQueryFileInformation(f.FID, level)
	if _, err := f.tree.client.Transact(ctx, f.tree.TID, q); err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name, err)
	}
	return &q.Info, nil
}

// SetTimes sets the times and attributes of the open file. Zero values
// leave the server's values unchanged.
func (f *File) SetTimes(ctx context.Context, created, access, write time.Time, attrs uint32) error {
	s := &trans.SetFileInformation{
		FID:        f.FID,
		Attributes: attrs,
		Created:    created,
		LastAccess: access,
		LastWrite:  write,
	}
	if _, err := f.tree.client.Transact(ctx, f.tree.TID, s); err != nil {
		return fmt.Errorf("set times %s: %w", f.Name, err)
	}
	return nil
}

// DiskInfo queries the volume at level, one of trans.SupportedFSLevels.
func (t *Tree) DiskInfo(ctx context.Context, level uint16) (*trans.FSInfo, error) {
	if err := checkLevel(level, trans.SupportedFSLevels); err != nil {
		return nil, err
	}
	q := trans.NewQueryFSInformation(level)
	if _, err := t.client.Transact(ctx, t.TID, q); err != nil {
		return nil, fmt.Errorf("disk info: %w", err)
	}
	return &q.Info, nil
}

// SecurityDescriptor reads the owner, group and DACL of path.
func (t *Tree) SecurityDescriptor(ctx context.Context, path string) (*trans.SecurityDescriptor, error) {
	f, err := t.Open(ctx, path, OpenOptions{
		Access:      ReadControl,
		ShareAccess: FileShareRead | FileShareWrite | FileShareDelete,
		Disposition: FileOpen,
	})
	if err != nil {
		return nil, err
	}
	defer f.Close(context.WithoutCancel(ctx))

	q := trans.NewQuerySecurityDesc(f.FID)
	if _, err := t.client.Transact(ctx, t.TID, q); err != nil {
		return nil, fmt.Errorf("security descriptor %s: %w", path, err)
	}
	return q.Descriptor, nil
}

// pipePath prefixes name with \PIPE\ unless already present.
func pipePath(name string) string {
	if strings.HasPrefix(strings.ToUpper(name), trans.PipeName) {
		return name
	}
	return trans.PipeName + strings.TrimLeft(name, `\`)
}

// OpenPipe opens the named pipe on an IPC$ tree.
func (t *Tree) OpenPipe(ctx context.Context, name string) (*File, error) {
	return t.Open(ctx, `\`+strings.TrimLeft(name, `\`), PipeAccess)
}

// TransactPipe writes input to the pipe and returns the whole reply. A
// reply larger than one transaction is drained with reads.
func (f *File) TransactPipe(ctx context.Context, input []byte) ([]byte, error) {
	c := f.tree.client
	tp := trans.NewTransactNamedPipe(f.FID, input)
	status, err := c.Transact(ctx, f.tree.TID, tp)
	if err != nil {
		return nil, fmt.Errorf("transact pipe %s: %w", f.Name, err)
	}
	out := tp.Output
	for more := status == types.StatusBufferOverflow; more; {
		var chunk []byte
		chunk, more, err = f.ReadAt(ctx, 0, c.maxBufferSize)
		if err != nil {
			return out, fmt.Errorf("read pipe %s: %w", f.Name, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// PeekPipe reports what is waiting on the pipe.
func (f *File) PeekPipe(ctx context.Context) (*trans.PeekNamedPipe, error) {
	p := trans.NewPeekNamedPipe(f.FID)
	if _, err := f.tree.client.Transact(ctx, f.tree.TID, p); err != nil {
		return nil, fmt.Errorf("peek pipe %s: %w", f.Name, err)
	}
	return p, nil
}

// WaitPipe waits up to timeout for an instance of the named pipe.
func (t *Tree) WaitPipe(ctx context.Context, name string, timeout time.Duration) error {
	ms := trans.WaitForever
	if timeout > 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	w := trans.NewWaitNamedPipe(pipePath(name), ms)
	if _, err := t.client.Transact(ctx, t.TID, w); err != nil {
		return fmt.Errorf("wait pipe %s: %w", name, err)
	}
	return nil
}

// CallPipe opens the named pipe, writes input, reads the reply and
// closes the pipe in one exchange.
func (t *Tree) CallPipe(ctx context.Context, name string, input []byte) ([]byte, error) {
	call := trans.NewCallNamedPipe(pipePath(name), input)
	if _, err := t.client.Transact(ctx, t.TID, call); err != nil {
		return nil, fmt.Errorf("call pipe %s: %w", name, err)
	}
	return call.Output, nil
}

// WatchDirectory blocks until something under path changes and returns
// the changes. An empty result means the server dropped the details
// (STATUS_NOTIFY_ENUM_DIR) and the directory should be re-read.
func (t *Tree) WatchDirectory(ctx context.Context, path string, recursive bool) ([]trans.Change, error) {
	dir, err := t.Open(ctx, path, OpenOptions{
		Access:      FileReadData | Synchronize,
		ShareAccess: FileShareRead | FileShareWrite | FileShareDelete,
		Disposition: FileOpen,
		Options:     FileDirectoryFile,
	})
	if err != nil {
		return nil, err
	}
	defer dir.Close(context.WithoutCancel(ctx))

	n := trans.NewNotifyChange(dir.FID, recursive)
	status, err := t.client.Transact(ctx, t.TID, n)
	if status == types.StatusNotifyEnumDir {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return n.Changes, nil
}

// IsRAPError reports a RAP call rejected by the server.
func IsRAPError(err error) bool {
	var re *trans.RAPError
	return errors.As(err, &re)
}
