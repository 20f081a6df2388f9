package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

var (
	clientIP = net.IP{10, 0, 0, 1}
	serverIP = net.IP{10, 0, 0, 2}
)

const (
	clientPort = 49152
	serverPort = 445
	testConn   = "10.0.0.1:49152->10.0.0.2:445"
)

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*13)
	}
	return b
}

// session builds the Ethernet frames of one TCP connection.
type session struct {
	t      *testing.T
	seq    [2]uint32
	ts     time.Time
	frames [][]byte
}

func newSession(t *testing.T) *session {
	return &session{t: t, seq: [2]uint32{1000, 5000}, ts: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (s *session) segment(dir int, payload []byte, syn, fin bool) {
	s.t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP}
	tcp := &layers.TCP{Seq: s.seq[dir], ACK: true, PSH: len(payload) > 0, SYN: syn, FIN: fin, Window: 65535}
	if dir == toServer {
		ip.SrcIP, ip.DstIP = clientIP, serverIP
		tcp.SrcPort, tcp.DstPort = clientPort, serverPort
	} else {
		ip.SrcIP, ip.DstIP = serverIP, clientIP
		tcp.SrcPort, tcp.DstPort = serverPort, clientPort
	}
	require.NoError(s.t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(s.t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	s.frames = append(s.frames, bytes.Clone(buf.Bytes()))

	s.seq[dir] += uint32(len(payload))
	if syn || fin {
		s.seq[dir]++
	}
}

// send writes b in segments of at most mss bytes.
func (s *session) send(dir int, b []byte, mss int) {
	for len(b) > 0 {
		n := min(mss, len(b))
		s.segment(dir, b[:n], false, false)
		b = b[n:]
	}
}

func (s *session) feed(d *Decoder) {
	for i, frame := range s.frames {
		p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
		p.Metadata().Timestamp = s.ts.Add(time.Duration(i) * time.Millisecond)
		_ = d.Packet(p)
	}
}

func (s *session) pcap() *bytes.Buffer {
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(s.t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, frame := range s.frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     s.ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(s.t, w.WritePacket(ci, frame))
	}
	return &out
}

func (s *session) pcapng() *bytes.Buffer {
	var out bytes.Buffer
	w, err := pcapgo.NewNgWriter(&out, layers.LinkTypeEthernet)
	require.NoError(s.t, err)
	for i, frame := range s.frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     s.ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(s.t, w.WritePacket(ci, frame))
	}
	require.NoError(s.t, w.Flush())
	return &out
}

func nb(msg []byte) []byte {
	return append([]byte{0, byte(len(msg) >> 16), byte(len(msg) >> 8), byte(len(msg))}, msg...)
}

// request encodes every packet of raw as NetBIOS frames.
func request(t *testing.T, raw *trans.Raw, mid uint16, maxBuffer int) (frames [][]byte, h types.Header) {
	t.Helper()
	opts := trans.DefaultOptions()
	opts.MaxBufferSize = maxBuffer
	req, err := trans.NewRequest(raw, *types.NewHeader(0, mid, true), opts)
	require.NoError(t, err)
	for req.HasMore() {
		require.NoError(t, req.Next())
		buf := make([]byte, maxBuffer)
		n, err := req.Encode(buf, 0)
		require.NoError(t, err)
		frames = append(frames, nb(buf[:n]))
		if len(frames) == 1 {
			h = req.Header()
		}
	}
	return frames, h
}

func interim(t *testing.T, h types.Header) []byte {
	t.Helper()
	h.Flags |= types.FlagsResponse
	b, err := (&types.Message{Header: h}).Marshal()
	require.NoError(t, err)
	return nb(b)
}

func reply(t *testing.T, h types.Header, params, data []byte, maxBuffer int) []byte {
	t.Helper()
	packets, err := trans.Reply(h, h.Command, nil, params, data, maxBuffer)
	require.NoError(t, err)
	var out []byte
	for _, p := range packets {
		out = append(out, nb(p)...)
	}
	return out
}

func collect(d *Decoder) *[]*Transaction {
	var txs []*Transaction
	d.OnTransaction = func(tx *Transaction) { txs = append(txs, tx) }
	return &txs
}

func TestDecodeMultiPacketTransaction(t *testing.T) {
	raw := &trans.Raw{
		Command:    types.CommandTrans2,
		SubCommand: trans.Trans2FindFirst2,
		SetupWords: []uint16{trans.Trans2FindFirst2},
		Parameters: pattern(1200, 1),
		Payload:    pattern(700, 2),
	}
	frames, h := request(t, raw, 42, 512)
	require.Greater(t, len(frames), 1)

	s := newSession(t)
	s.segment(toServer, nil, true, false)
	s.segment(toClient, nil, true, false)
	s.send(toServer, frames[0], 1460)
	s.send(toClient, interim(t, h), 1460)
	for _, f := range frames[1:] {
		s.send(toServer, f, 1460)
	}
	params, data := pattern(300, 3), pattern(4000, 4)
	s.send(toClient, reply(t, h, params, data, 1024), 100)

	d := NewDecoder(0)
	txs := collect(d)
	var msgs int
	d.OnMessage = func(*Message) { msgs++ }
	s.feed(d)

	require.Len(t, *txs, 1)
	tx := (*txs)[0]
	assert.Equal(t, testConn, tx.Conn)
	assert.Equal(t, uint16(42), tx.MID)
	assert.NoError(t, tx.Err)
	assert.Equal(t, types.StatusSuccess, tx.Status)
	assert.Equal(t, trans.Trans2FindFirst2, tx.Request.SubCommand)
	assert.Equal(t, raw.Parameters, tx.Request.Parameters)
	assert.Equal(t, raw.Payload, tx.Request.Payload)
	assert.Equal(t, params, tx.Request.ResponseParameters)
	assert.Equal(t, data, tx.Request.ResponseData)
	assert.Greater(t, tx.Fragments, 1)

	st := d.Stats()
	assert.Equal(t, 1, st.Transactions)
	assert.Zero(t, st.Errors)
	assert.Zero(t, st.Gaps)
	assert.Equal(t, st.Messages, msgs)
}

func TestDecodeNamedTransactionFromPcap(t *testing.T) {
	raw := &trans.Raw{
		Command:    types.CommandTrans,
		SubCommand: trans.TransTransactNamedPipe,
		TransName:  trans.PipeName,
		SetupWords: []uint16{trans.TransTransactNamedPipe, 0x4000},
		Payload:    pattern(64, 5),
	}
	frames, h := request(t, raw, 7, 4356)
	require.Len(t, frames, 1)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	s.send(toClient, reply(t, h, nil, pattern(80, 6), 4356), 1460)

	for name, file := range map[string]*bytes.Buffer{"pcap": s.pcap(), "pcapng": s.pcapng()} {
		t.Run(name, func(t *testing.T) {
			d := NewDecoder(time.Minute)
			txs := collect(d)
			require.NoError(t, Read(file, d))

			require.Len(t, *txs, 1)
			tx := (*txs)[0]
			assert.Equal(t, trans.PipeName, tx.Request.TransName)
			assert.Equal(t, []uint16{trans.TransTransactNamedPipe, 0x4000}, tx.Request.SetupWords)
			assert.Equal(t, pattern(80, 6), tx.Request.ResponseData)
			assert.WithinDuration(t, s.ts, tx.Time, 0)
		})
	}
}

func TestDecodeErrorStatus(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandNTTrans, SubCommand: 6, Parameters: pattern(8, 1)}
	frames, h := request(t, raw, 9, 4356)

	h.Flags |= types.FlagsResponse
	h.Status = types.StatusAccessDenied
	failed, err := (&types.Message{Header: h}).Marshal()
	require.NoError(t, err)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	s.send(toClient, nb(failed), 1460)

	d := NewDecoder(0)
	txs := collect(d)
	s.feed(d)

	require.Len(t, *txs, 1)
	assert.Equal(t, types.StatusAccessDenied, (*txs)[0].Status)
	assert.NoError(t, (*txs)[0].Err)
	assert.Nil(t, (*txs)[0].Request.ResponseData)
}

func TestDecodeRetransmissionAndKeepAlive(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans2, SubCommand: 3, SetupWords: []uint16{3}, Parameters: pattern(6, 1)}
	frames, h := request(t, raw, 3, 4356)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)

	resp := append([]byte{nbSessionKeepAlive, 0, 0, 0}, reply(t, h, pattern(10, 2), pattern(200, 3), 4356)...)
	seq := s.seq[toClient]
	s.send(toClient, resp[:120], 1460)
	// the same segment again
	s.seq[toClient] = seq
	s.send(toClient, resp[:120], 1460)
	s.send(toClient, resp[120:], 1460)

	d := NewDecoder(0)
	txs := collect(d)
	s.feed(d)

	require.Len(t, *txs, 1)
	assert.Equal(t, pattern(200, 3), (*txs)[0].Request.ResponseData)
	assert.Zero(t, d.Stats().Gaps)
}

func TestFlushReportsIncomplete(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans2, SubCommand: 5, SetupWords: []uint16{5}, Parameters: pattern(6, 1)}
	frames, _ := request(t, raw, 11, 4356)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)

	d := NewDecoder(0)
	txs := collect(d)
	require.NoError(t, Read(s.pcap(), d))

	require.Len(t, *txs, 1)
	assert.ErrorIs(t, (*txs)[0].Err, ErrIncomplete)
	assert.Equal(t, 1, d.Stats().Incomplete)
	assert.Zero(t, d.Stats().Transactions)
}

func TestFinClosesConversation(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans2, SubCommand: 5, SetupWords: []uint16{5}, Parameters: pattern(6, 1)}
	frames, _ := request(t, raw, 12, 4356)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	s.segment(toClient, nil, false, true)

	d := NewDecoder(0)
	txs := collect(d)
	s.feed(d)
	require.Len(t, *txs, 1)
	assert.ErrorIs(t, (*txs)[0].Err, ErrIncomplete)
}

func TestIgnoresOtherPorts(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{0, 1, 2, 3, 4, 5}, DstMAC: net.HardwareAddr{0, 1, 2, 3, 4, 6}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: clientIP, DstIP: serverIP}
	tcp := &layers.TCP{SrcPort: 50000, DstPort: 80, PSH: true, ACK: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, ip, tcp, gopacket.Payload("GET /")))

	d := NewDecoder(0)
	require.NoError(t, d.Packet(gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)))
	assert.Zero(t, d.Stats().Packets)
}

func TestFramerResync(t *testing.T) {
	msg, err := (&types.Message{Header: *types.NewHeader(types.CommandEcho, 1, true)}).Marshal()
	require.NoError(t, err)
	smb2 := append([]byte{0xFE, 'S', 'M', 'B'}, make([]byte, 60)...)

	var f framer
	f.push(append([]byte("tail of an earlier frame"), nb(msg)...))
	f.push(append(nb(smb2), nb(msg)[:10]...))

	frames, dropped := f.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, msg, frames[0])
	assert.Equal(t, len("tail of an earlier frame"), dropped)
	assert.Equal(t, nb(msg)[:10], f.buf)

	f.reset()
	f.push(nb(msg))
	frames, _ = f.frames()
	assert.Len(t, frames, 1)
	assert.Empty(t, f.buf)
}

func TestDecodeOutOfOrderSegments(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans2, SubCommand: 3, SetupWords: []uint16{3}, Parameters: pattern(6, 1)}
	frames, h := request(t, raw, 21, 4356)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	start := len(s.frames)
	s.send(toClient, reply(t, h, pattern(10, 2), pattern(3000, 3), 4356), 1000)
	require.Greater(t, len(s.frames), start+2)
	s.frames[start+1], s.frames[start+2] = s.frames[start+2], s.frames[start+1]

	d := NewDecoder(0)
	txs := collect(d)
	s.feed(d)

	require.Len(t, *txs, 1)
	assert.NoError(t, (*txs)[0].Err)
	assert.Equal(t, pattern(3000, 3), (*txs)[0].Request.ResponseData)
	assert.Zero(t, d.Stats().Gaps)
}

func TestDecodeGapResyncs(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans2, SubCommand: 3, SetupWords: []uint16{3}, Parameters: pattern(6, 1)}
	frames, h := request(t, raw, 22, 4356)

	echo := *types.NewHeader(types.CommandEcho, 23, true)
	echo.Flags |= types.FlagsResponse
	echoMsg, err := (&types.Message{Header: echo}).Marshal()
	require.NoError(t, err)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	start := len(s.frames)
	s.send(toClient, reply(t, h, pattern(10, 2), pattern(3000, 3), 4356), 1000)
	s.send(toClient, nb(echoMsg), 1000)
	// lose the second segment of the response
	s.frames = append(s.frames[:start+1], s.frames[start+2:]...)

	d := NewDecoder(0)
	txs := collect(d)
	var seen []types.Command
	d.OnMessage = func(m *Message) { seen = append(seen, m.Msg.Header.Command) }
	s.feed(d)
	d.Flush()

	assert.Equal(t, 1, d.Stats().Gaps)
	assert.Contains(t, seen, types.CommandEcho)
	require.Len(t, *txs, 1)
	assert.ErrorIs(t, (*txs)[0].Err, ErrIncomplete)
	assert.Nil(t, (*txs)[0].Request.ResponseData)
}

func TestDecodeOverflowSinglePacket(t *testing.T) {
	raw := &trans.Raw{Command: types.CommandTrans, SubCommand: trans.TransTransactNamedPipe, TransName: `\PIPE\`, SetupWords: []uint16{trans.TransTransactNamedPipe, 0x4000}, Payload: pattern(16, 1)}
	frames, h := request(t, raw, 24, 4356)

	s := newSession(t)
	s.send(toServer, frames[0], 1460)
	h.Status = types.StatusBufferOverflow
	s.send(toClient, reply(t, h, nil, pattern(100, 5), 4356), 1460)

	d := NewDecoder(0)
	txs := collect(d)
	s.feed(d)

	require.Len(t, *txs, 1)
	tx := (*txs)[0]
	assert.Equal(t, types.StatusBufferOverflow, tx.Status)
	assert.NoError(t, tx.Err)
	assert.Equal(t, pattern(100, 5), tx.Request.ResponseData)
}
