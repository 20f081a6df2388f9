package dcerpc

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
)

// Transport is a message-mode byte pipe. *pipe.Pipe satisfies it.
type Transport interface {
	Transact(ctx context.Context, request []byte) ([]byte, error)
	Read(ctx context.Context, n int) (data []byte, more bool, err error)
	Write(ctx context.Context, data []byte) (int, error)
}

// Client runs calls against one bound interface. It is not safe for
// concurrent use; calls on a pipe are strictly sequential.
type Client struct {
	t      Transport
	callID uint32

	bound   bool
	iface   SyntaxID
	maxXmit uint16
	maxRecv uint16
	assoc   uint32
}

// NewClient returns an unbound client over t
func NewClient(t Transport) *Client {
	return &Client{
		t:       t,
		callID:  1,
		maxXmit: DefaultMaxFrag,
		maxRecv: DefaultMaxFrag,
	}
}

// Bind associates presentation context 0 with iface
func (c *Client) Bind(ctx context.Context, iface SyntaxID) error {
	b := Bind{
		CallID:      c.nextCallID(),
		MaxXmitFrag: DefaultMaxFrag,
		MaxRecvFrag: DefaultMaxFrag,
		AssocGroup:  c.assoc,
		Abstract:    iface,
	}
	pdu, err := b.Marshal()
	if err != nil {
		return err
	}

	reply, err := c.t.Transact(ctx, pdu)
	if err != nil {
		return fmt.Errorf("bind transact failed: %w", err)
	}
	frag, _, err := c.nextPDU(ctx, reply)
	if err != nil {
		return err
	}

	h, err := ParseHeader(frag)
	if err != nil {
		return err
	}
	if h.PacketType == PacketTypeBindNak {
		return &BindError{Nak: true, Reason: parseBindNak(frag)}
	}
	ack, err := ParseBindAck(frag)
	if err != nil {
		return err
	}
	if ack.CallID != b.CallID {
		return fmt.Errorf("%w: bind call %d, ack %d", ErrCallMismatch, b.CallID, ack.CallID)
	}
	if !ack.Accepted() {
		res := ContextResult{Result: 0xFFFF}
		if len(ack.Results) > 0 {
			res = ack.Results[0]
		}
		return &BindError{Result: res.Result, Reason: res.Reason}
	}

	c.iface = iface
	c.bound = true
	c.assoc = ack.AssocGroup
	// fragments may not exceed what either side offered
	c.maxXmit = min(DefaultMaxFrag, ack.MaxXmitFrag)
	c.maxRecv = min(DefaultMaxFrag, ack.MaxRecvFrag)
	debug.Printf("bound %s (xmit %d, recv %d, assoc 0x%X)\n", iface, c.maxXmit, c.maxRecv, c.assoc)
	return nil
}

// Call invokes opnum with an already marshalled stub and returns the
// reassembled response stub. A server fault is returned as *FaultError.
func (c *Client) Call(ctx context.Context, opnum uint16, stub []byte) ([]byte, error) {
	if !c.bound {
		return nil, ErrNotBound
	}

	id := c.nextCallID()
	frags, err := MarshalRequest(id, 0, opnum, stub, int(c.maxXmit))
	if err != nil {
		return nil, err
	}
	for _, f := range frags[:len(frags)-1] {
		if _, err := c.t.Write(ctx, f); err != nil {
			return nil, fmt.Errorf("request fragment: %w", err)
		}
	}
	buf, err := c.t.Transact(ctx, frags[len(frags)-1])
	if err != nil {
		return nil, fmt.Errorf("call transact failed: %w", err)
	}

	var out []byte
	for {
		frag, rest, err := c.nextPDU(ctx, buf)
		if err != nil {
			return nil, err
		}
		resp, err := ParseResponse(frag)
		if err != nil {
			return nil, err
		}
		if resp.CallID != id {
			return nil, fmt.Errorf("%w: call %d, response %d", ErrCallMismatch, id, resp.CallID)
		}
		if out == nil {
			out = make([]byte, 0, resp.AllocHint)
		}
		out = append(out, resp.Stub...)
		if resp.Last() {
			if len(rest) > 0 {
				debug.Printf("dropping %d byte(s) after last fragment\n", len(rest))
			}
			return out, nil
		}
		buf = rest
	}
}

// nextPDU returns the first complete PDU in buf, reading from the pipe
// until one is available, and whatever follows it.
func (c *Client) nextPDU(ctx context.Context, buf []byte) (pdu, rest []byte, err error) {
	for {
		need := HeaderSize
		if len(buf) >= HeaderSize {
			h, err := ParseHeader(buf)
			if err != nil {
				return nil, nil, err
			}
			if len(buf) >= int(h.FragLength) {
				return buf[:h.FragLength], buf[h.FragLength:], nil
			}
			need = int(h.FragLength)
		}

		data, _, err := c.t.Read(ctx, max(need-len(buf), int(c.maxRecv)))
		if err != nil {
			return nil, nil, fmt.Errorf("response fragment: %w", err)
		}
		if len(data) == 0 {
			return nil, nil, fmt.Errorf("%w: pipe returned no data mid-fragment", ErrMalformed)
		}
		buf = append(buf, data...)
	}
}

func (c *Client) nextCallID() uint32 {
	id := c.callID
	c.callID++
	return id
}

// Bound reports whether Bind succeeded
func (c *Client) Bound() bool { return c.bound }

// Interface returns the bound interface
func (c *Client) Interface() SyntaxID { return c.iface }

// MaxFrag returns the negotiated transmit and receive fragment sizes
func (c *Client) MaxFrag() (xmit, recv uint16) { return c.maxXmit, c.maxRecv }
