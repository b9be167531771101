// Package capture records command exchanges to pcap files and reads them
// back. Frames are wrapped in synthetic Ethernet/IPv4/TCP packets so the
// files open in Wireshark whatever the physical link was.
package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DevicePort is the TCP port assigned to the device side of synthetic flows.
const DevicePort = 4001

const snapLen = 65535

// Direction of a captured frame relative to the host.
type Direction string

const (
	DirectionTx Direction = "tx" // host to device
	DirectionRx Direction = "rx" // device to host
)

// Endpoints addresses the synthetic flow.
type Endpoints struct {
	HostIP     net.IP
	DeviceIP   net.IP
	HostPort   uint16
	DevicePort uint16
}

// DefaultEndpoints returns the addresses used when none are configured.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		HostIP:     net.IPv4(192, 168, 100, 10),
		DeviceIP:   net.IPv4(192, 168, 100, 20),
		HostPort:   50000,
		DevicePort: DevicePort,
	}
}

// Recorder writes every frame it is handed as one packet. It satisfies the
// dispatcher's frame recorder hook and is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	file      io.WriteCloser
	writer    *pcapgo.Writer
	ep        Endpoints
	hostSeq   uint32
	deviceSeq uint32
	count     int
	err       error
	now       func() time.Time
}

// Create opens path for writing and emits the pcap file header.
func Create(path string, ep Endpoints) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	r, err := NewRecorder(file, ep)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewRecorder writes the pcap file header to w and returns a recorder.
func NewRecorder(w io.WriteCloser, ep Endpoints) (*Recorder, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	def := DefaultEndpoints()
	if ep.HostIP == nil {
		ep.HostIP = def.HostIP
	}
	if ep.DeviceIP == nil {
		ep.DeviceIP = def.DeviceIP
	}
	if ep.HostPort == 0 {
		ep.HostPort = def.HostPort
	}
	if ep.DevicePort == 0 {
		ep.DevicePort = def.DevicePort
	}
	return &Recorder{
		file:      w,
		writer:    writer,
		ep:        ep,
		hostSeq:   1,
		deviceSeq: 1,
		now:       time.Now,
	}, nil
}

// RecordTx records a frame sent to the device.
func (r *Recorder) RecordTx(data []byte) { r.record(DirectionTx, data) }

// RecordRx records a frame received from the device.
func (r *Recorder) RecordRx(data []byte) { r.record(DirectionRx, data) }

// Count returns the number of packets written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error, if any. Recording stops after it.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.err
	}
	err := r.file.Close()
	r.file = nil
	if r.err != nil {
		return r.err
	}
	return err
}

func (r *Recorder) record(dir Direction, data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil || r.file == nil {
		return
	}

	srcIP, dstIP := r.ep.HostIP, r.ep.DeviceIP
	srcPort, dstPort := r.ep.HostPort, r.ep.DevicePort
	seq, ack := r.hostSeq, r.deviceSeq
	if dir == DirectionRx {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
		seq, ack = r.deviceSeq, r.hostSeq
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	ethernet := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	if dir == DirectionRx {
		ethernet.SrcMAC, ethernet.DstMAC = ethernet.DstMAC, ethernet.SrcMAC
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
		Window:  65535,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(data)); err != nil {
		r.err = fmt.Errorf("serialize packet: %w", err)
		return
	}
	pkt := buffer.Bytes()
	if err := r.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     r.now(),
		CaptureLength: len(pkt),
		Length:        len(pkt),
	}, pkt); err != nil {
		r.err = fmt.Errorf("write packet: %w", err)
		return
	}

	if dir == DirectionRx {
		r.deviceSeq += uint32(len(data))
	} else {
		r.hostSeq += uint32(len(data))
	}
	r.count++
}

// Packet is one frame read back from a capture.
type Packet struct {
	Index     int
	Timestamp time.Time
	Direction Direction
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte
}

// ReadFile returns every TCP payload in the capture at path. A packet is
// tx when its destination port equals devicePort (0 means DevicePort).
func ReadFile(path string, devicePort uint16) ([]Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer f.Close()
	return Read(f, devicePort)
}

// Read parses a pcap stream.
func Read(r io.Reader, devicePort uint16) ([]Packet, error) {
	if devicePort == 0 {
		devicePort = DevicePort
	}
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var packets []Packet
	index := 0
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return packets, fmt.Errorf("read packet %d: %w", index+1, err)
		}
		index++

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, _ := tcpLayer.(*layers.TCP)
		if len(tcp.Payload) == 0 {
			continue
		}

		p := Packet{
			Index:     index,
			Timestamp: ci.Timestamp,
			Direction: DirectionRx,
			SrcPort:   uint16(tcp.SrcPort),
			DstPort:   uint16(tcp.DstPort),
			Payload:   append([]byte(nil), tcp.Payload...),
		}
		if p.DstPort == devicePort {
			p.Direction = DirectionTx
		}
		if netLayer := packet.NetworkLayer(); netLayer != nil {
			flow := netLayer.NetworkFlow()
			p.SrcIP = flow.Src().String()
			p.DstIP = flow.Dst().String()
		}
		packets = append(packets, p)
	}
	return packets, nil
}
