package smb1

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// negotiateWords is the NT LM 0.12 response word count.
const negotiateWords = 17

// NegotiateResponse represents an SMB1 negotiate response
type NegotiateResponse struct {
	DialectIndex   uint16
	SecurityMode   uint8
	MaxMpxCount    uint16
	MaxNumberVcs   uint16
	MaxBufferSize  uint32
	MaxRawSize     uint32
	SessionKey     uint32
	Capabilities   uint32
	SystemTime     time.Time
	ServerTimeZone int16
	Challenge      []byte
	DomainName     string
	ServerName     string
}

// marshalNegotiate builds the dialect list.
func marshalNegotiate(dialects ...string) []byte {
	var b []byte
	for _, d := range dialects {
		b = append(b, 0x02)
		b = append(b, d...)
		b = append(b, 0x00)
	}
	return b
}

// Unmarshal parses the negotiate response words and bytes
func (r *NegotiateResponse) Unmarshal(msg *types.Message) error {
	if msg.WordCount() < negotiateWords {
		return fmt.Errorf("%w: negotiate word count %d", ErrProtocol, msg.WordCount())
	}

	w := encoding.NewReader(msg.Words, types.WordsOffset)
	r.DialectIndex = w.Uint16()
	r.SecurityMode = w.Uint8()
	r.MaxMpxCount = w.Uint16()
	r.MaxNumberVcs = w.Uint16()
	r.MaxBufferSize = w.Uint32()
	r.MaxRawSize = w.Uint32()
	r.SessionKey = w.Uint32()
	r.Capabilities = w.Uint32()
	r.SystemTime = w.Time()
	r.ServerTimeZone = int16(w.Uint16())
	challengeLen := int(w.Uint8())
	if err := w.Err(); err != nil {
		return err
	}

	b := encoding.NewReader(msg.Bytes, types.BytesOffset(msg.WordCount()))
	b.Unicode = msg.Header.IsUnicode()
	r.Challenge = append([]byte(nil), b.Bytes(challengeLen)...)
	if err := b.Err(); err != nil {
		return fmt.Errorf("negotiate challenge: %w", err)
	}
	// Domain and server names are optional.
	if b.Remaining() > 0 {
		r.DomainName = b.String(512)
	}
	if b.Remaining() > 0 && b.Err() == nil {
		r.ServerName = b.String(512)
	}
	return nil
}

// SupportsUnicode returns true if server supports Unicode
func (r *NegotiateResponse) SupportsUnicode() bool {
	return r.Capabilities&types.CapUnicode != 0
}

// SigningRequired reports whether the server demands message signing.
func (r *NegotiateResponse) SigningRequired() bool {
	return r.SecurityMode&types.SecuritySignaturesReq != 0
}

// EncryptsPasswords reports challenge/response authentication.
func (r *NegotiateResponse) EncryptsPasswords() bool {
	return r.SecurityMode&types.SecurityEncryptPasswords != 0
}

// Negotiate performs SMB1 dialect negotiation
func (c *Client) Negotiate(ctx context.Context) (*NegotiateResponse, error) {
	h := c.header(types.CommandNegotiate, 0)
	resp, err := c.roundTrip(ctx, &types.Message{
		Header: *h,
		Bytes:  marshalNegotiate(types.DialectNTLM012),
	})
	if err != nil {
		return nil, fmt.Errorf("negotiate failed: %w", err)
	}

	var neg NegotiateResponse
	if err := neg.Unmarshal(resp); err != nil {
		return nil, fmt.Errorf("failed to parse negotiate response: %w", err)
	}
	if neg.DialectIndex != 0 {
		return nil, fmt.Errorf("%w: server rejected %s", ErrNotSupported, types.DialectNTLM012)
	}
	if neg.SigningRequired() {
		debug.Println("server requires signing; messages are sent unsigned")
	}

	c.negotiated = &neg
	c.unicode = c.cfg.Unicode && neg.SupportsUnicode()
	if n := int(neg.MaxBufferSize); n > 0 && n < c.maxBufferSize {
		c.maxBufferSize = n
	}

	debug.WithFields(debug.Fields{
		"capabilities":  fmt.Sprintf("0x%08X", neg.Capabilities),
		"maxBufferSize": c.maxBufferSize,
		"unicode":       c.unicode,
		"domain":        neg.DomainName,
	}, "negotiated")
	return &neg, nil
}
