package smb1

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// transOptions derives the engine settings from the session.
func (c *Client) transOptions() trans.Options {
	opts := trans.DefaultOptions()
	opts.MaxBufferSize = c.maxBufferSize
	opts.BufferSize = c.cfg.TransactionBufferSize
	opts.MaxDataCount = uint32(c.cfg.TransactionBufferSize - 512)
	opts.Unicode = c.unicode
	opts.OEM = c.cfg.OEM()
	return opts
}

// Transact runs one transaction on tid: the primary request, the interim
// response when secondaries follow, the secondaries, and every response
// packet until codec is decoded. The connection is held for the whole
// exchange. The final status is returned alongside any error; a
// STATUS_BUFFER_OVERFLOW reply that fits one packet is decoded and is not
// an error.
func (c *Client) Transact(ctx context.Context, tid uint16, codec trans.Codec) (types.NTStatus, error) {
	kind := codec.Kind()
	h := c.header(kind.Command, tid)

	req, err := trans.NewRequest(codec, *h, c.transOptions())
	if err != nil {
		return 0, err
	}
	resp, err := trans.NewResponse(codec)
	if err != nil {
		return 0, err
	}
	if c.cfg.MaxResponseTotal > 0 {
		resp.MaxTotal = c.cfg.MaxResponseTotal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, c.maxBufferSize)
	sent := 0
	for req.HasMore() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := req.Next(); err != nil {
			return 0, fmt.Errorf("%v: %w", kind, err)
		}
		n, err := req.Encode(buf, 0)
		if err != nil {
			return 0, fmt.Errorf("%v: %w", kind, err)
		}
		if err := c.conn.Send(buf[:n]); err != nil {
			return 0, err
		}
		sent++

		// The server acknowledges a primary that announces secondaries
		// before any of them are sent.
		if sent == 1 && req.HasMore() {
			_, interim, err := c.recv(ctx, kind.Command, h.MID)
			if err != nil {
				return 0, err
			}
			if err := commandError(kind.Command, interim.Header.Status); err != nil {
				return interim.Header.Status, err
			}
			if !trans.IsInterim(interim) {
				return interim.Header.Status, fmt.Errorf("%w: expected interim %s response", ErrProtocol, kind.Command)
			}
		}
	}

	var last []byte
	for resp.HasMore() {
		raw, _, err := c.recv(ctx, kind.Command, h.MID)
		if err != nil {
			resp.Release()
			return resp.Status(), err
		}
		if _, err := resp.Decode(raw, 0); err != nil {
			resp.Release()
			return resp.Status(), fmt.Errorf("%v: %w", kind, err)
		}
		last = raw
	}

	status := resp.Status()
	// The engine stops on the overflow status; a reply cut short in its
	// first and only packet still carries usable data.
	if status == types.StatusBufferOverflow {
		if resp.Fragments() > 0 {
			return status, fmt.Errorf("%v: %w: overflow after %d fragment(s)", kind, ErrProtocol, resp.Fragments())
		}
		if err := trans.DecodeOverflow(codec, last, 0); err != nil {
			return status, fmt.Errorf("%v: %w", kind, err)
		}
	}
	debug.WithFields(debug.Fields{
		"kind":     kind.String(),
		"mid":      h.MID,
		"sent":     sent,
		"received": resp.Fragments(),
		"status":   StatusName(status),
		"params":   resp.TotalParameterCount(),
		"data":     resp.TotalDataCount(),
	}, "transaction complete")
	if err := commandError(kind.Command, status); err != nil {
		return status, err
	}
	return status, nil
}
