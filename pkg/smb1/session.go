package smb1

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/crypto"
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// sessionSetupWords is the word count of a non-extended session setup.
const sessionSetupWords = 13

// Credentials identify the user for session setup. An empty user with no
// password or hash logs on anonymously.
type Credentials struct {
	User     string
	Domain   string
	Password string
	// Hash is the NT hash, used instead of Password when set.
	Hash []byte
}

// Anonymous reports a null session.
func (c Credentials) Anonymous() bool {
	return c.User == "" && c.Password == "" && len(c.Hash) == 0
}

// SessionSetupResponse is the result of session setup.
type SessionSetupResponse struct {
	Action        uint16
	NativeOS      string
	NativeLanMan  string
	PrimaryDomain string
}

// IsGuestLogon returns true if this is a guest logon
func (r *SessionSetupResponse) IsGuestLogon() bool {
	return r.Action&0x01 != 0
}

// responses computes the LMv2 and NTLMv2 responses for challenge.
func (cr Credentials) responses(challenge []byte) (lm, nt []byte) {
	if cr.Anonymous() {
		return nil, nil
	}
	hash := cr.Hash
	if len(hash) == 0 {
		hash = crypto.NTHash(cr.Password)
	}
	v2 := crypto.NTLMv2Hash(hash, cr.User, cr.Domain)
	client := crypto.ClientChallenge()
	lm = crypto.LMv2Response(v2, challenge, client)
	nt, _ = crypto.NTLMv2Response(v2, challenge, client, time.Now(), nil)
	return lm, nt
}

// capabilities offered in session setup.
func (c *Client) capabilities() uint32 {
	caps := types.CapNTSMBs | types.CapNTStatusCodes | types.CapLargeFiles |
		types.CapNTFind | types.CapRPCRemoteAPIs | types.CapLevel2Oplocks | types.CapDFS
	if c.unicode {
		caps |= types.CapUnicode
	}
	if c.negotiated != nil {
		caps |= c.negotiated.Capabilities & types.CapInfoLevelPassth
	}
	return caps
}

// SessionSetup logs on with creds and stores the UID.
func (c *Client) SessionSetup(ctx context.Context, creds Credentials) (*SessionSetupResponse, error) {
	if c.negotiated == nil {
		return nil, ErrNotConnected
	}
	if !creds.Anonymous() && !c.negotiated.EncryptsPasswords() {
		return nil, fmt.Errorf("%w: plaintext passwords", ErrNotSupported)
	}
	lm, nt := creds.responses(c.negotiated.Challenge)

	words := encoding.NewWriter(make([]byte, 2*sessionSetupWords), 0)
	words.Uint8(uint8(types.CommandNoAndX))
	words.Uint8(0)
	words.Uint16(0)
	words.Uint16(uint16(c.maxBufferSize))
	words.Uint16(c.cfg.MaxMpxCount)
	words.Uint16(1)
	words.Uint32(c.negotiated.SessionKey)
	words.Uint16(uint16(len(lm)))
	words.Uint16(uint16(len(nt)))
	words.Uint32(0)
	words.Uint32(c.capabilities())

	bytes := encoding.NewWriter(make([]byte, 1024), types.BytesOffset(sessionSetupWords))
	bytes.Unicode, bytes.OEM = c.unicode, c.cfg.OEM()
	bytes.Write(lm)
	bytes.Write(nt)
	bytes.String(creds.User)
	bytes.String(creds.Domain)
	bytes.String(c.cfg.NativeOS)
	bytes.String(c.cfg.NativeLanMan)
	if err := bytes.Err(); err != nil {
		return nil, fmt.Errorf("session setup request: %w", err)
	}

	h := c.header(types.CommandSessionSetupAndX, 0)
	resp, err := c.roundTrip(ctx, &types.Message{
		Header: *h,
		Words:  words.Bytes(),
		Bytes:  bytes.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("session setup failed: %w", err)
	}

	var out SessionSetupResponse
	if resp.WordCount() >= 3 {
		out.Action = encoding.Uint16LE(resp.Words[4:])
	}
	r := encoding.NewReader(resp.Bytes, types.BytesOffset(resp.WordCount()))
	r.Unicode, r.OEM = resp.Header.IsUnicode(), c.cfg.OEM()
	out.NativeOS = r.String(256)
	out.NativeLanMan = r.String(256)
	out.PrimaryDomain = r.String(256)

	c.uid = resp.Header.UID
	debug.WithFields(debug.Fields{
		"uid":    c.uid,
		"guest":  out.IsGuestLogon(),
		"server": out.NativeOS,
	}, "session established")
	return &out, nil
}

// Logoff ends the session.
func (c *Client) Logoff(ctx context.Context) error {
	h := c.header(types.CommandLogoffAndX, 0)
	_, err := c.roundTrip(ctx, &types.Message{
		Header: *h,
		Words:  []byte{byte(types.CommandNoAndX), 0, 0, 0},
	})
	c.uid = 0
	return err
}
