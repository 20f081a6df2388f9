package trans

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Reply encodes the response packets a server sends for a transaction of
// family cmd, each at most maxBufferSize bytes. It is the inverse of
// Response and backs in-memory servers and capture fixtures.
func Reply(h types.Header, cmd types.Command, setup, params, data []byte, maxBufferSize int) ([][]byte, error) {
	fam, err := familyOf(cmd)
	if err != nil {
		return nil, err
	}
	if len(setup)%2 != 0 {
		return nil, types.ErrOddWords
	}
	h.Command = fam.primary
	h.Flags |= types.FlagsResponse

	bytesStart := types.BytesOffset((fam.responseWords + len(setup)) / 2)
	paramOff := align(bytesStart)

	var packets [][]byte
	pdisp, ddisp := 0, 0
	for {
		pcount := min(len(params)-pdisp, room(maxBufferSize, paramOff))
		dataOff := align(paramOff + pcount)
		dcount := 0
		if pdisp+pcount == len(params) {
			dcount = min(len(data)-ddisp, room(maxBufferSize, dataOff))
		}
		if pcount == 0 && dcount == 0 && (pdisp < len(params) || ddisp < len(data)) {
			return nil, fmt.Errorf("%d byte packets: %w", maxBufferSize, ErrBufferTooSmall)
		}

		w := encoding.NewWriter(make([]byte, fam.responseWords+len(setup)), 0)
		poff, doff := 0, 0
		if pcount > 0 {
			poff = paramOff
		}
		if dcount > 0 {
			doff = dataOff
		}
		if fam.wide {
			w.Zero(3)
			w.Uint32(uint32(len(params)))
			w.Uint32(uint32(len(data)))
			w.Uint32(uint32(pcount))
			w.Uint32(uint32(poff))
			w.Uint32(uint32(pdisp))
			w.Uint32(uint32(dcount))
			w.Uint32(uint32(doff))
			w.Uint32(uint32(ddisp))
			w.Uint8(uint8(len(setup) / 2))
		} else {
			w.Uint16(uint16(len(params)))
			w.Uint16(uint16(len(data)))
			w.Zero(2)
			w.Uint16(uint16(pcount))
			w.Uint16(uint16(poff))
			w.Uint16(uint16(pdisp))
			w.Uint16(uint16(dcount))
			w.Uint16(uint16(doff))
			w.Uint16(uint16(ddisp))
			w.Uint8(uint8(len(setup) / 2))
			w.Zero(1)
		}
		w.Write(setup)
		if err := w.Err(); err != nil {
			return nil, err
		}

		end := bytesStart
		if pcount > 0 {
			end = paramOff + pcount
		}
		if dcount > 0 {
			end = dataOff + dcount
		}
		block := make([]byte, end-bytesStart)
		if pcount > 0 {
			copy(block[paramOff-bytesStart:], params[pdisp:pdisp+pcount])
		}
		if dcount > 0 {
			copy(block[dataOff-bytesStart:], data[ddisp:ddisp+dcount])
		}

		msg := types.Message{Header: h, Words: w.Bytes(), Bytes: block}
		pkt, err := msg.Marshal()
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)

		pdisp += pcount
		ddisp += dcount
		if pdisp >= len(params) && ddisp >= len(data) {
			return packets, nil
		}
	}
}
