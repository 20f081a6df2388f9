package smb1

import (
	"context"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Service types
const (
	ServiceDisk    = "A:"
	ServicePrinter = "LPT1:"
	ServicePipe    = "IPC"
	ServiceAny     = "?????"
)

// Tree represents an SMB1 tree (share) connection
type Tree struct {
	TID              uint16
	Share            string
	Service          string
	NativeFileSystem string
	OptionalSupport  uint16

	client *Client
}

// UNC returns the \\host\share form of name.
func UNC(host, share string) string {
	return `\\` + strings.TrimLeft(host, `\`) + `\` + strings.Trim(share, `\`)
}

// TreeConnect connects to path, a UNC share name.
func (c *Client) TreeConnect(ctx context.Context, path string) (*Tree, error) {
	const wc = 4

	words := encoding.NewWriter(make([]byte, 2*wc), 0)
	words.Uint8(uint8(types.CommandNoAndX))
	words.Uint8(0)
	words.Uint16(0)
	words.Uint16(0) // flags
	words.Uint16(1)

	bytes := encoding.NewWriter(make([]byte, 4*len(path)+64), types.BytesOffset(wc))
	bytes.Unicode, bytes.OEM = c.unicode, c.cfg.OEM()
	bytes.Uint8(0)
	bytes.String(strings.ToUpper(path))
	bytes.OEMString(ServiceAny)
	if err := bytes.Err(); err != nil {
		return nil, fmt.Errorf("tree connect request: %w", err)
	}

	h := c.header(types.CommandTreeConnectAndX, 0)
	resp, err := c.roundTrip(ctx, &types.Message{Header: *h, Words: words.Bytes(), Bytes: bytes.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("tree connect %s failed: %w", path, err)
	}

	t := &Tree{TID: resp.Header.TID, Share: path, client: c}
	if resp.WordCount() >= 3 {
		t.OptionalSupport = encoding.Uint16LE(resp.Words[4:])
	}
	r := encoding.NewReader(resp.Bytes, types.BytesOffset(resp.WordCount()))
	r.Unicode, r.OEM = resp.Header.IsUnicode(), c.cfg.OEM()
	t.Service = r.OEMString(16)
	if r.Err() == nil && r.Remaining() > 0 {
		t.NativeFileSystem = r.String(256)
	}

	debug.WithFields(debug.Fields{
		"share":   path,
		"tid":     t.TID,
		"service": t.Service,
		"fs":      t.NativeFileSystem,
	}, "tree connected")
	return t, nil
}

// TreeDisconnect disconnects from a share
func (c *Client) TreeDisconnect(ctx context.Context, tid uint16) error {
	h := c.header(types.CommandTreeDisconnect, tid)
	if _, err := c.roundTrip(ctx, &types.Message{Header: *h}); err != nil {
		return fmt.Errorf("tree disconnect failed: %w", err)
	}
	return nil
}

// IsPipe reports an IPC$ tree.
func (t *Tree) IsPipe() bool {
	return t.Service == ServicePipe
}

// Client returns the owning client.
func (t *Tree) Client() *Client {
	return t.client
}

// Disconnect disconnects from this tree
func (t *Tree) Disconnect(ctx context.Context) error {
	return t.client.TreeDisconnect(ctx, t.TID)
}
