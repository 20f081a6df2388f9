package capture

import (
	"bytes"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/reassembly"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
)

// NetBIOS session packet types seen on SMB ports.
const (
	nbSessionMessage   = 0x00
	nbSessionRequest   = 0x81
	nbSessionKeepAlive = 0x85
)

const nbHeaderSize = 4

var (
	smb1Marker = []byte{0xFF, 'S', 'M', 'B'}
	smb2Marker = []byte{0xFE, 'S', 'M', 'B'}
)

// captureContext carries the capture info of the packet being assembled.
type captureContext gopacket.CaptureInfo

func (c *captureContext) GetCaptureInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo(*c)
}

// streamFactory hands the assembler one tcpStream per connection.
type streamFactory struct {
	d *Decoder
}

func (f *streamFactory) New(network, transport gopacket.Flow, tcp *layers.TCP, _ reassembly.AssemblerContext) reassembly.Stream {
	dir := toServer
	if !Ports[tcp.DstPort] {
		dir = toClient
	}
	return &tcpStream{
		d:           f.d,
		key:         conversationKey(network, transport, dir),
		serverFirst: dir == toServer,
	}
}

// tcpStream receives the in-order bytes of both directions of a
// connection and cuts them into NetBIOS frames.
type tcpStream struct {
	d   *Decoder
	key string
	// serverFirst is set when the packet that opened the stream was sent
	// to the server.
	serverFirst bool
	half        [2]framer
}

// Accept takes every segment and lets streams start without a handshake,
// since captures often begin mid-connection.
func (s *tcpStream) Accept(_ *layers.TCP, _ gopacket.CaptureInfo, _ reassembly.TCPFlowDirection, _ reassembly.Sequence, start *bool, _ reassembly.AssemblerContext) bool {
	*start = true
	return true
}

func (s *tcpStream) direction(dir reassembly.TCPFlowDirection) int {
	if (dir == reassembly.TCPDirClientToServer) == s.serverFirst {
		return toServer
	}
	return toClient
}

func (s *tcpStream) ReassembledSG(sg reassembly.ScatterGather, _ reassembly.AssemblerContext) {
	d := s.d
	flowDir, _, _, skip := sg.Info()
	dir := s.direction(flowDir)
	f := &s.half[dir]
	if skip != 0 {
		// the partial frame is lost; frames resyncs on the next header
		d.stats.Gaps++
		f.reset()
		debug.WithFields(debug.Fields{"conn": s.key, "skip": skip}, "tcp gap")
	}

	length, _ := sg.Lengths()
	if length == 0 {
		return
	}
	ts := sg.CaptureInfo(0).Timestamp
	f.push(sg.Fetch(length))
	frames, dropped := f.frames()
	d.stats.Dropped += dropped

	conv := d.conversation(s.key)
	for _, frame := range frames {
		if err := d.message(conv, dir, ts, frame); err != nil {
			d.stats.Errors++
			debug.WithFields(debug.Fields{"conn": s.key}, err.Error())
			if d.packetErr == nil {
				d.packetErr = err
			}
		}
	}
}

// ReassemblyComplete runs when both sides closed, on reset, and on flush.
func (s *tcpStream) ReassemblyComplete(_ reassembly.AssemblerContext) bool {
	if v, ok := s.d.conversations.Get(s.key); ok {
		s.d.closeConversation(v.(*conversation))
	}
	return true
}

// framer buffers one direction of a connection until whole NetBIOS
// frames are available.
type framer struct {
	buf []byte
	// lost is set after a gap: only a session message carrying an SMB1
	// marker is trusted as the next frame boundary.
	lost bool
}

func (f *framer) push(b []byte) { f.buf = append(f.buf, b...) }

func (f *framer) reset() {
	f.buf = f.buf[:0]
	f.lost = true
}

// frames cuts every complete SMB1 message off the front of the buffer.
// Other session packets and SMB2 frames are skipped. dropped counts bytes
// discarded while looking for a frame boundary.
func (f *framer) frames() (out [][]byte, dropped int) {
	buf := f.buf
	for len(buf) >= nbHeaderSize {
		if f.lost {
			if len(buf) < nbHeaderSize+len(smb1Marker) {
				break
			}
			if buf[0] != nbSessionMessage || !bytes.HasPrefix(buf[nbHeaderSize:], smb1Marker) {
				i := resync(buf)
				dropped += i
				buf = buf[i:]
				continue
			}
			f.lost = false
		}
		if buf[0] == nbSessionMessage {
			if len(buf) < nbHeaderSize+len(smb1Marker) {
				break
			}
			if !isSMB(buf[nbHeaderSize:]) {
				i := resync(buf)
				dropped += i
				buf = buf[i:]
				continue
			}
		} else if buf[0] < nbSessionRequest || buf[0] > nbSessionKeepAlive {
			i := resync(buf)
			dropped += i
			buf = buf[i:]
			continue
		}

		length := int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		if len(buf) < nbHeaderSize+length {
			break
		}
		frame := buf[nbHeaderSize : nbHeaderSize+length]
		buf = buf[nbHeaderSize+length:]
		if bytes.HasPrefix(frame, smb1Marker) {
			out = append(out, bytes.Clone(frame))
		}
	}
	f.buf = append(f.buf[:0], buf...)
	return out, dropped
}

func isSMB(b []byte) bool {
	return bytes.HasPrefix(b, smb1Marker) || bytes.HasPrefix(b, smb2Marker)
}

// resync returns the offset of the next session message header followed by
// an SMB1 marker. Without one, everything but a possible partial header is
// dropped.
func resync(buf []byte) int {
	for m := nbHeaderSize + 1; m < len(buf); m++ {
		i := bytes.Index(buf[m:], smb1Marker)
		if i < 0 {
			break
		}
		m += i
		if buf[m-nbHeaderSize] == nbSessionMessage {
			return m - nbHeaderSize
		}
	}
	return max(1, len(buf)-nbHeaderSize-len(smb1Marker)+1)
}
