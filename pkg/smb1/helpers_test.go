package smb1

import (
	"testing"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/smb1test"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// newTestClient returns a negotiated Unicode client on a fake server.
func newTestClient(t *testing.T) (*Client, *smb1test.Server) {
	t.Helper()
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	f := smb1test.NewServer(t)
	c := NewClient(f, cfg)
	c.negotiated = &NegotiateResponse{
		SecurityMode: types.SecurityUserLevel | types.SecurityEncryptPasswords,
		Capabilities: types.CapUnicode | types.CapNTSMBs,
		Challenge:    []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	c.unicode = true
	return c, f
}

// testTree returns a tree on c without a tree connect exchange.
func testTree(c *Client, tid uint16) *Tree {
	return &Tree{TID: tid, Share: `\\SRV\DATA`, Service: ServiceDisk, client: c}
}

var (
	u16 = smb1test.U16
	cat = smb1test.Cat
)
