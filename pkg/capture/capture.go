// Package capture decodes SMB1 traffic from packet captures. TCP streams
// on the SMB ports are reassembled, split into NetBIOS session frames and
// decoded as SMB1 messages; transaction exchanges are reassembled per
// connection and multiplex id.
package capture

import (
	"fmt"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/reassembly"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// ErrIncomplete marks a transaction whose response never finished.
var ErrIncomplete = errors.New("transaction incomplete at end of capture")

// DefaultIdleTimeout is how long a silent connection is tracked.
const DefaultIdleTimeout = 10 * time.Minute

// maxBufferedPages bounds out-of-order data held per connection; past it
// the assembler skips ahead and reports a gap.
const maxBufferedPages = 256

// Ports carrying SMB: NetBIOS session service and direct hosting.
var Ports = map[layers.TCPPort]bool{139: true, 445: true}

// Message is one SMB1 message seen on the wire.
type Message struct {
	Time     time.Time
	Conn     string
	Response bool
	Msg      *types.Message
}

// Transaction is a reassembled transaction exchange. Request holds both
// directions: the request sections as sent and the response sections as
// reassembled.
type Transaction struct {
	Time      time.Time
	Conn      string
	MID       uint16
	Status    types.NTStatus
	Fragments int
	Request   *trans.Raw
	Err       error
}

// Stats counts what the decoder saw.
type Stats struct {
	Packets      int
	Messages     int
	Transactions int
	Incomplete   int
	Errors       int
	Gaps         int
	Dropped      int
}

type exchange struct {
	tx   *Transaction
	resp *trans.Response
}

type conversation struct {
	key     string
	pending map[uint16]*exchange
}

const (
	toServer = iota
	toClient
)

// Decoder turns packets into SMB1 messages and transactions. It is not
// safe for concurrent use.
type Decoder struct {
	// OnMessage receives every decoded message.
	OnMessage func(*Message)
	// OnTransaction receives completed, failed and, on Flush, incomplete
	// transactions.
	OnTransaction func(*Transaction)
	// MaxTotal bounds one reassembled response.
	MaxTotal int

	conversations *cache.Cache
	assembler     *reassembly.Assembler
	idle          time.Duration
	lastFlush     time.Time
	// packetErr is the first message error of the packet being assembled.
	packetErr error
	stats     Stats
}

// NewDecoder tracks connections until they have been idle for idle.
func NewDecoder(idle time.Duration) *Decoder {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	d := &Decoder{
		MaxTotal:      trans.DefaultMaxTotal,
		conversations: cache.New(idle, idle),
		idle:          idle,
	}
	d.assembler = reassembly.NewAssembler(reassembly.NewStreamPool(&streamFactory{d: d}))
	d.assembler.MaxBufferedPagesPerConnection = maxBufferedPages
	return d
}

// Stats returns the counters so far.
func (d *Decoder) Stats() Stats { return d.stats }

// Packet feeds one captured packet. Packets that are not TCP to or from an
// SMB port are ignored.
func (d *Decoder) Packet(p gopacket.Packet) error {
	network := p.NetworkLayer()
	tcpLayer := p.Layer(layers.LayerTypeTCP)
	if network == nil || tcpLayer == nil {
		return nil
	}
	tcp := tcpLayer.(*layers.TCP)

	dir := toServer
	switch {
	case Ports[tcp.DstPort]:
	case Ports[tcp.SrcPort]:
		dir = toClient
	default:
		return nil
	}
	d.stats.Packets++

	ci := p.Metadata().CaptureInfo
	d.packetErr = nil
	d.assembler.AssembleWithContext(network.NetworkFlow(), tcp, (*captureContext)(&ci))
	if tcp.RST || tcp.FIN && len(tcp.Payload) == 0 {
		// whatever is still pending will not be answered
		if v, ok := d.conversations.Get(conversationKey(network.NetworkFlow(), tcp.TransportFlow(), dir)); ok {
			d.closeConversation(v.(*conversation))
		}
	}
	d.expire(ci.Timestamp)
	return d.packetErr
}

// expire closes connections silent for longer than the idle timeout, in
// capture time.
func (d *Decoder) expire(now time.Time) {
	if d.lastFlush.IsZero() {
		d.lastFlush = now
	}
	if now.Sub(d.lastFlush) < d.idle/4 {
		return
	}
	d.lastFlush = now
	d.assembler.FlushCloseOlderThan(now.Add(-d.idle))
}

// conversationKey names a connection client first, whatever the packet
// direction.
func conversationKey(network, transport gopacket.Flow, dir int) string {
	if dir == toClient {
		network, transport = network.Reverse(), transport.Reverse()
	}
	cip, sip := network.Endpoints()
	cport, sport := transport.Endpoints()
	return fmt.Sprintf("%s:%s->%s:%s", cip, cport, sip, sport)
}

func (d *Decoder) conversation(key string) *conversation {
	if v, ok := d.conversations.Get(key); ok {
		d.conversations.Set(key, v, cache.DefaultExpiration)
		return v.(*conversation)
	}
	conv := &conversation{key: key, pending: map[uint16]*exchange{}}
	d.conversations.Set(key, conv, cache.DefaultExpiration)
	return conv
}

func (d *Decoder) closeConversation(conv *conversation) {
	d.flushPending(conv)
	d.conversations.Delete(conv.key)
}

func (d *Decoder) message(conv *conversation, dir int, ts time.Time, frame []byte) error {
	msg := new(types.Message)
	if _, err := msg.Decode(frame, 0); err != nil {
		return errors.Wrap(err, "decode message")
	}
	d.stats.Messages++
	if d.OnMessage != nil {
		d.OnMessage(&Message{Time: ts, Conn: conv.key, Response: dir == toClient, Msg: msg})
	}

	switch msg.Header.Command {
	case types.CommandTrans, types.CommandTrans2, types.CommandNTTrans,
		types.CommandTransSecondary, types.CommandTrans2Secondary, types.CommandNTTransSecondary:
	default:
		return nil
	}
	if dir == toServer {
		return d.request(conv, ts, msg)
	}
	return d.response(conv, ts, msg, frame)
}

func (d *Decoder) request(conv *conversation, ts time.Time, msg *types.Message) error {
	p, err := trans.ParseRequest(msg)
	if err != nil {
		return errors.Wrapf(err, "%s request mid %d", msg.Header.Command, msg.Header.MID)
	}
	mid := msg.Header.MID

	if p.Primary {
		if p.TotalParameterCount+p.TotalDataCount > d.MaxTotal {
			return errors.Wrapf(trans.ErrTooLarge, "%s request mid %d", msg.Header.Command, mid)
		}
		raw := &trans.Raw{
			Command:    msg.Header.Command,
			SubCommand: p.SubCommand,
			TransName:  p.Name,
			SetupWords: setupWords(p.Setup),
			Parameters: make([]byte, p.TotalParameterCount),
			Payload:    make([]byte, p.TotalDataCount),
		}
		ex, err := d.newExchange(conv, ts, mid, raw)
		if err != nil {
			return err
		}
		conv.pending[mid] = ex
	}

	ex, ok := conv.pending[mid]
	if !ok {
		debug.WithFields(debug.Fields{"conn": conv.key, "mid": mid}, "secondary request without primary")
		return nil
	}
	raw := ex.tx.Request
	if !placeSection(raw.Parameters, p.ParameterDisplacement, p.Parameters) ||
		!placeSection(raw.Payload, p.DataDisplacement, p.Data) {
		delete(conv.pending, mid)
		return errors.Wrapf(trans.ErrOutOfRange, "%s request mid %d", msg.Header.Command, mid)
	}
	return nil
}

func (d *Decoder) response(conv *conversation, ts time.Time, msg *types.Message, frame []byte) error {
	mid := msg.Header.MID
	ex, ok := conv.pending[mid]
	if !ok {
		if trans.IsInterim(msg) {
			return nil
		}
		// The request was sent before the capture started.
		var err error
		if ex, err = d.newExchange(conv, ts, mid, &trans.Raw{Command: msg.Header.Command}); err != nil {
			return err
		}
		conv.pending[mid] = ex
	}
	if _, err := ex.resp.Decode(frame, 0); err != nil {
		ex.resp.Release()
		delete(conv.pending, mid)
		ex.tx.Err = err
		d.emit(ex)
		return errors.Wrapf(err, "%s response mid %d", msg.Header.Command, mid)
	}
	if !ex.resp.HasMore() {
		delete(conv.pending, mid)
		if ex.resp.Status() == types.StatusBufferOverflow && ex.resp.Fragments() == 0 {
			if err := trans.DecodeOverflow(ex.tx.Request, frame, 0); err != nil {
				ex.tx.Err = err
			}
		}
		d.emit(ex)
	}
	return nil
}

func (d *Decoder) newExchange(conv *conversation, ts time.Time, mid uint16, raw *trans.Raw) (*exchange, error) {
	resp, err := trans.NewResponse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "new response")
	}
	resp.MaxTotal = d.MaxTotal
	return &exchange{
		tx:   &Transaction{Time: ts, Conn: conv.key, MID: mid, Request: raw},
		resp: resp,
	}, nil
}

func (d *Decoder) emit(ex *exchange) {
	ex.tx.Status = ex.resp.Status()
	ex.tx.Fragments = ex.resp.Fragments()
	switch {
	case errors.Is(ex.tx.Err, ErrIncomplete):
		d.stats.Incomplete++
	default:
		d.stats.Transactions++
	}
	if d.OnTransaction != nil {
		d.OnTransaction(ex.tx)
	}
}

func (d *Decoder) flushPending(conv *conversation) {
	for mid, ex := range conv.pending {
		ex.resp.Release()
		ex.tx.Err = ErrIncomplete
		d.emit(ex)
		delete(conv.pending, mid)
	}
}

// Flush delivers buffered out-of-order data, reports every unfinished
// transaction as incomplete and forgets all connections.
func (d *Decoder) Flush() {
	d.assembler.FlushAll()
	for _, item := range d.conversations.Items() {
		d.flushPending(item.Object.(*conversation))
	}
	d.conversations.Flush()
}

func setupWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return words
}

func placeSection(dst []byte, disp int, src []byte) bool {
	if len(src) == 0 {
		return true
	}
	if disp < 0 || disp+len(src) > len(dst) {
		return false
	}
	copy(dst[disp:], src)
	return true
}
