package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"
)

// FrameSender transmits raw link-layer frames.
type FrameSender interface {
	WriteFrame(frame []byte) error
}

// FrameReceiver reads raw link-layer frames. ReadFrame returns
// ErrReadTimeout when nothing arrived within the receiver's read timeout.
type FrameReceiver interface {
	ReadFrame() ([]byte, error)
}

// PcapLink is a live capture handle usable from one sending and one
// receiving goroutine at the same time.
type PcapLink struct {
	handle *pcap.Handle
}

// OpenPcap opens the interface for raw ARP traffic. Reads return after at
// most readTimeout.
func OpenPcap(iface string, readTimeout time.Duration) (*PcapLink, error) {
	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("cannot create socket on %s: %w", iface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(65536); err != nil {
		return nil, fmt.Errorf("set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(false); err != nil {
		return nil, fmt.Errorf("set promisc: %w", err)
	}
	if err := inactive.SetTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	// Deliver frames as they arrive instead of when the kernel buffer fills.
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("set immediate mode: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("cannot create socket on %s: %w", iface, err)
	}
	if err := handle.SetBPFFilter("arp"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("could not set BPF filter: %w", err)
	}
	return &PcapLink{handle: handle}, nil
}

// WriteFrame implements FrameSender.
func (l *PcapLink) WriteFrame(frame []byte) error {
	return l.handle.WritePacketData(frame)
}

// ReadFrame implements FrameReceiver.
func (l *PcapLink) ReadFrame() ([]byte, error) {
	data, _, err := l.handle.ReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, ErrReadTimeout
		}
		return nil, err
	}
	return data, nil
}

// Close releases the capture handle.
func (l *PcapLink) Close() {
	l.handle.Close()
}
