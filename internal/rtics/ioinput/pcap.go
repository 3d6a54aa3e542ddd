package ioinput

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPFile replays a previously captured multi-stream session from a
// single-stream libpcap file, stripping the Ethernet/IP/UDP framing and
// handing the raw packet header+payload bytes to the alignment engine
// exactly as a live socket would (spec §4.12). It is built on pcapgo, the
// pure-Go pcap reader, rather than cgo's libpcap binding, since the core
// engine must not assume a transport or require cgo to build.
type PCAPFile struct {
	f        *os.File
	r        *pcapgo.Reader
	udpPort  layers.UDPPort
	leftover []byte
}

// OpenPCAPFile opens a libpcap-format capture file and restricts replay to
// UDP datagrams addressed to udpPort, matching the BPF-filter behaviour of
// a live capture restricted to one station's stream.
func OpenPCAPFile(path string, udpPort uint16) (*PCAPFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioinput: open pcap file %q: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ioinput: pcap header %q: %w", path, err)
	}
	return &PCAPFile{f: f, r: r, udpPort: layers.UDPPort(udpPort)}, nil
}

func (p *PCAPFile) Read(dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		if len(p.leftover) > 0 {
			n := copy(dst[total:], p.leftover)
			p.leftover = p.leftover[n:]
			total += n
			continue
		}
		payload, err := p.nextPayload()
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
		p.leftover = payload
	}
	return total, nil
}

// nextPayload scans forward until it finds a UDP packet addressed to the
// configured port, returning its payload bytes.
func (p *PCAPFile) nextPayload() ([]byte, error) {
	for {
		data, _, err := p.r.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("ioinput: read pcap record: %w", err)
		}
		pkt := gopacket.NewPacket(data, p.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || udp.DstPort != p.udpPort {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		return udp.Payload, nil
	}
}

func (p *PCAPFile) Close() error { return p.f.Close() }
