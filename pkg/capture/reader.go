package capture

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// pcapng files start with a section header block.
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// ReadFile decodes a pcap or pcapng file with d and flushes it.
func ReadFile(path string, d *Decoder) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open capture")
	}
	defer f.Close()

	return errors.Wrapf(Read(f, d), "read %s", path)
}

// Read decodes a pcap or pcapng stream with d and flushes it. Packets that
// fail to decode as SMB1 are counted in d.Stats and skipped.
func Read(r io.Reader, d *Decoder) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return errors.Wrap(err, "read capture header")
	}

	var src packetReader
	if bytes.Equal(magic, ngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return errors.Wrap(err, "open capture")
	}

	packets := gopacket.NewPacketSource(src, src.LinkType())
	packets.DecodeOptions = gopacket.Default
	defer d.Flush()
	for {
		p, err := packets.NextPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "next packet")
		}
		// decode failures are counted and logged by the decoder
		_ = d.Packet(p)
	}
}
