package discovery

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// BuildRequest serializes a broadcast ARP who-has frame for targetIP.
func BuildRequest(srcMAC net.HardwareAddr, srcIP, targetIP net.IP) ([]byte, error) {
	src4, dst4 := srcIP.To4(), targetIP.To4()
	if src4 == nil || dst4 == nil {
		return nil, fmt.Errorf("arp request needs ipv4 addresses, got %v -> %v", srcIP, targetIP)
	}
	if len(srcMAC) != 6 {
		return nil, fmt.Errorf("arp request needs a 6-byte MAC, got %v", srcMAC)
	}

	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(src4),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dst4),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("serialize arp request: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseReply extracts the sender addresses from an Ethernet frame carrying
// an IPv4-over-Ethernet ARP packet. Any other frame, including truncated
// ones, yields false.
func ParseReply(frame []byte) (Reply, bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return Reply{}, false
	}
	if ethLayer.(*layers.Ethernet).EthernetType != layers.EthernetTypeARP {
		return Reply{}, false
	}

	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return Reply{}, false
	}
	arp := arpLayer.(*layers.ARP)
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return Reply{}, false
	}
	if arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 ||
		len(arp.SourceHwAddress) != 6 || len(arp.SourceProtAddress) != 4 {
		return Reply{}, false
	}

	// The decoded slices alias frame; callers may reuse their buffers.
	ip := make(net.IP, 4)
	copy(ip, arp.SourceProtAddress)
	mac := make(net.HardwareAddr, 6)
	copy(mac, arp.SourceHwAddress)

	return Reply{IP: ip, MAC: mac}, true
}
