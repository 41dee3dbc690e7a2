package discovery

import (
	"errors"
	"net"
)

// Interface is the local network interface a scan runs from.
type Interface struct {
	Name         string
	HardwareAddr net.HardwareAddr
	IP           net.IP // 4-byte form
	Network      *net.IPNet
}

// Reply is an (IPv4, MAC) pair learned from an ARP frame.
type Reply struct {
	IP  net.IP
	MAC net.HardwareAddr
}

var (
	// ErrNoInterface means no interface is up, non-loopback, with a MAC and an IPv4 address.
	ErrNoInterface = errors.New("cannot find a usable network interface")
	// ErrNoIPv4 means the interface carries no IPv4 network.
	ErrNoIPv4 = errors.New("cannot find ipv4 network for interface")
	// ErrNoHardwareAddr means the interface has no MAC address.
	ErrNoHardwareAddr = errors.New("cannot get MAC of interface")
	// ErrReadTimeout is returned by a FrameReceiver when no frame arrived
	// within its read timeout. It is not a failure.
	ErrReadTimeout = errors.New("read timeout")
)
