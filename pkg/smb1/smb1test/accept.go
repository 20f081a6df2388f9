package smb1test

import (
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Challenge is the server challenge sent by NegotiateReply.
var Challenge = []byte{1, 2, 3, 4, 5, 6, 7, 8}

// NegotiateReply selects NT LM 0.12 with Unicode, NT status codes and
// challenge/response authentication.
func NegotiateReply(req *types.Message, maxBuffer uint32) []byte {
	w := encoding.NewWriter(make([]byte, 34), 0)
	w.Uint16(0)
	w.Uint8(types.SecurityUserLevel | types.SecurityEncryptPasswords)
	w.Uint16(50)
	w.Uint16(1)
	w.Uint32(maxBuffer)
	w.Uint32(65536)
	w.Uint32(0)
	w.Uint32(types.CapUnicode | types.CapNTSMBs | types.CapNTStatusCodes | types.CapNTFind)
	w.Time(time.Now())
	w.Uint16(0)
	w.Uint8(uint8(len(Challenge)))

	b := encoding.NewWriter(make([]byte, 64), types.BytesOffset(17))
	b.Unicode = true
	b.Write(Challenge)
	b.String("WORKGROUP")
	b.String("SMB1TEST")
	return Reply(req, types.StatusSuccess, w.Bytes(), b.Bytes())
}

// OpenReply answers NTCreateAndX with fid.
func OpenReply(req *types.Message, fid, fileType uint16, dir bool) []byte {
	w := encoding.NewWriter(make([]byte, 68), 0)
	w.Uint8(uint8(types.CommandNoAndX))
	w.Zero(3)
	w.Uint8(0)
	w.Uint16(fid)
	w.Uint32(1)
	for i := 0; i < 4; i++ {
		w.Time(time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC))
	}
	if dir {
		w.Uint32(0x10)
	} else {
		w.Uint32(0x80)
	}
	w.Uint64(0)
	w.Uint64(0)
	w.Uint16(fileType)
	w.Uint16(0)
	if dir {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
	return Reply(req, types.StatusSuccess, w.Bytes(), nil)
}

// Accept installs handlers that negotiate, log on any user as uid and
// connect every tree as tid with service, such as "IPC" or "A:".
func (s *Server) Accept(uid, tid uint16, service string) {
	s.Handlers[types.CommandNegotiate] = func(req *types.Message) [][]byte {
		return [][]byte{NegotiateReply(req, 16644)}
	}
	s.Handlers[types.CommandSessionSetupAndX] = func(req *types.Message) [][]byte {
		b := encoding.NewWriter(make([]byte, 128), types.BytesOffset(3))
		b.Unicode = true
		b.String("Unix")
		b.String("smb1test")
		b.String("WORKGROUP")
		return [][]byte{WithUID(Reply(req, types.StatusSuccess, []byte{0xFF, 0, 0, 0, 0, 0}, b.Bytes()), uid)}
	}
	s.Handlers[types.CommandTreeConnectAndX] = func(req *types.Message) [][]byte {
		b := encoding.NewWriter(make([]byte, 32), types.BytesOffset(3))
		b.Unicode = true
		b.OEMString(service)
		b.String("NTFS")
		return [][]byte{WithTID(Reply(req, types.StatusSuccess, []byte{0xFF, 0, 0, 0, 0, 0}, b.Bytes()), tid)}
	}
}
