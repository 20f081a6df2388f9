// Package pipe provides named pipe operations over SMB1.
package pipe

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

// Pipe represents a named pipe connection
type Pipe struct {
	file *smb1.File
	tree *smb1.Tree
	name string
}

// Open opens a named pipe on the IPC$ share
func Open(ctx context.Context, tree *smb1.Tree, pipeName string) (*Pipe, error) {
	if !tree.IsPipe() {
		return nil, fmt.Errorf("tree is not an IPC$ share")
	}

	file, err := tree.OpenPipe(ctx, pipeName)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipe %s: %w", pipeName, err)
	}

	return &Pipe{
		file: file,
		tree: tree,
		name: pipeName,
	}, nil
}

// OpenWait waits up to timeout for a free instance of the pipe and opens it.
func OpenWait(ctx context.Context, tree *smb1.Tree, pipeName string, timeout time.Duration) (*Pipe, error) {
	if err := tree.WaitPipe(ctx, pipeName, timeout); err != nil {
		return nil, err
	}
	return Open(ctx, tree, pipeName)
}

// Read reads one message, or the part of it that fits in n bytes. more is
// set when the message continues.
// Named pipes MUST use offset 0, not tracked file offset!
func (p *Pipe) Read(ctx context.Context, n int) (data []byte, more bool, err error) {
	return p.file.ReadAt(ctx, 0, n)
}

// Write writes data to the pipe
func (p *Pipe) Write(ctx context.Context, data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := p.file.WriteAt(ctx, 0, data[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("pipe %s accepted no data", p.name)
		}
		written += n
	}
	return written, nil
}

// Transact writes request and reads the whole reply in one
// TransactNamedPipe exchange (common for RPC).
func (p *Pipe) Transact(ctx context.Context, request []byte) ([]byte, error) {
	return p.file.TransactPipe(ctx, request)
}

// Peek reports the bytes waiting on the pipe and its state.
func (p *Pipe) Peek(ctx context.Context) (*trans.PeekNamedPipe, error) {
	return p.file.PeekPipe(ctx)
}

// Close closes the pipe
func (p *Pipe) Close(ctx context.Context) error {
	if p.file != nil {
		return p.file.Close(ctx)
	}
	return nil
}

// Name returns the pipe name
func (p *Pipe) Name() string {
	return p.name
}

// Tree returns the parent tree
func (p *Pipe) Tree() *smb1.Tree {
	return p.tree
}

// Call runs a one-shot CallNamedPipe on pipeName without keeping a handle.
func Call(ctx context.Context, tree *smb1.Tree, pipeName string, request []byte) ([]byte, error) {
	return tree.CallPipe(ctx, pipeName, request)
}
