// Package smb1 is an SMB1 (CIFS) client: negotiation, session and tree
// setup, file handles, and the transaction-based operations built on
// package trans.
package smb1

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Client represents an SMB1 client on one connection
type Client struct {
	conn Conn
	cfg  Config

	// mu serializes exchanges so multi-packet transactions never
	// interleave on the connection.
	mu   sync.Mutex
	mids types.MIDAllocator

	uid           uint16
	unicode       bool
	maxBufferSize int
	negotiated    *NegotiateResponse

	dfs *cache.Cache
}

// NewClient creates a client on an established connection
func NewClient(conn Conn, cfg Config) *Client {
	return &Client{
		conn:          conn,
		cfg:           cfg,
		unicode:       cfg.Unicode,
		maxBufferSize: cfg.MaxBufferSize,
		dfs:           cache.New(cfg.DfsTTL, 2*cfg.DfsTTL),
	}
}

// Connect dials host and negotiates the dialect.
func Connect(ctx context.Context, host string, port int, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := Dial(ctx, host, port, TransportConfig{Timeout: cfg.Timeout, Socks5URL: cfg.Socks5URL})
	if err != nil {
		return nil, err
	}
	c := NewClient(t, cfg)
	if _, err := c.Negotiate(ctx); err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

// Close logs off when a session exists and closes the connection
func (c *Client) Close() error {
	if c.uid != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Logoff(ctx); err != nil {
			debug.Printf("logoff: %v\n", err)
		}
	}
	return c.conn.Close()
}

// UID returns the session UID
func (c *Client) UID() uint16 {
	return c.uid
}

// Unicode reports whether strings are exchanged as UTF-16LE.
func (c *Client) Unicode() bool {
	return c.unicode
}

// MaxBufferSize returns the negotiated per-packet limit.
func (c *Client) MaxBufferSize() int {
	return c.maxBufferSize
}

// Negotiated returns the negotiate response, or nil before Negotiate.
func (c *Client) Negotiated() *NegotiateResponse {
	return c.negotiated
}

// Config returns the client settings.
func (c *Client) Config() Config {
	return c.cfg
}

// header builds a request header stamped with the session state.
func (c *Client) header(cmd types.Command, tid uint16) *types.Header {
	h := types.NewHeader(cmd, c.mids.Next(), c.unicode)
	h.UID = c.uid
	h.TID = tid
	h.SetPID(c.cfg.PID)
	return h
}

// send encodes and writes one message. The caller holds mu.
func (c *Client) send(msg *types.Message) error {
	buf, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Header.Command, err)
	}
	debug.WithFields(debug.Fields{
		"command": msg.Header.Command,
		"mid":     msg.Header.MID,
		"tid":     msg.Header.TID,
		"size":    len(buf),
	}, "send")
	return c.conn.Send(buf)
}

// recv reads the response to mid. The caller holds mu.
func (c *Client) recv(ctx context.Context, cmd types.Command, mid uint16) ([]byte, *types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	buf, err := c.conn.Recv()
	if err != nil {
		return nil, nil, err
	}
	var msg types.Message
	if err := msg.Unmarshal(buf); err != nil {
		return nil, nil, err
	}
	if !msg.Header.IsResponse() {
		return nil, nil, fmt.Errorf("%w: request received for mid %d", ErrProtocol, msg.Header.MID)
	}
	if msg.Header.MID != mid {
		return nil, nil, fmt.Errorf("%w: mid %d, expected %d", ErrProtocol, msg.Header.MID, mid)
	}
	if msg.Header.Command != cmd {
		return nil, nil, fmt.Errorf("%w: %s response to %s", ErrProtocol, msg.Header.Command, cmd)
	}
	debug.WithFields(debug.Fields{
		"command": msg.Header.Command,
		"mid":     msg.Header.MID,
		"status":  fmt.Sprintf("0x%08X", uint32(msg.Header.Status)),
		"size":    len(buf),
	}, "recv")
	return buf, &msg, nil
}

// roundTrip sends a single-packet request and returns its response. A
// server error status is returned as the error.
func (c *Client) roundTrip(ctx context.Context, msg *types.Message) (*types.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(msg); err != nil {
		return nil, err
	}
	_, resp, err := c.recv(ctx, msg.Header.Command, msg.Header.MID)
	if err != nil {
		return nil, err
	}
	if err := commandError(resp.Header.Command, resp.Header.Status); err != nil {
		return resp, err
	}
	return resp, nil
}

// Echo sends data and checks it comes back.
func (c *Client) Echo(ctx context.Context, data []byte) error {
	h := c.header(types.CommandEcho, 0xFFFF)
	resp, err := c.roundTrip(ctx, &types.Message{
		Header: *h,
		Words:  []byte{1, 0},
		Bytes:  data,
	})
	if err != nil {
		return err
	}
	if string(resp.Bytes) != string(data) {
		return fmt.Errorf("%w: echo payload mismatch", ErrProtocol)
	}
	return nil
}
