package discovery

import (
	"fmt"
	"net"
)

// SelectInterface picks the interface to scan from. With an empty name the
// first interface that is up, not a loopback, has a MAC and at least one
// IPv4 address wins. A non-empty name restricts the choice to that interface.
func SelectInterface(name string) (Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Interface{}, fmt.Errorf("could not list interfaces: %w", err)
	}
	return selectFrom(ifaces, name, func(iface net.Interface) ([]net.Addr, error) {
		return iface.Addrs()
	})
}

func selectFrom(ifaces []net.Interface, name string, addrsOf func(net.Interface) ([]net.Addr, error)) (Interface, error) {
	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}

		addrs, err := addrsOf(iface)
		if err != nil {
			// An interface we cannot query is simply not a candidate.
			continue
		}
		ip, network, ok := firstIPv4(addrs)
		if !ok {
			continue
		}

		return Interface{
			Name:         iface.Name,
			HardwareAddr: iface.HardwareAddr,
			IP:           ip,
			Network:      network,
		}, nil
	}

	if name != "" {
		return Interface{}, fmt.Errorf("%w: %s is down, loopback, or has no MAC/IPv4 address", ErrNoInterface, name)
	}
	return Interface{}, ErrNoInterface
}

func firstIPv4(addrs []net.Addr) (net.IP, *net.IPNet, bool) {
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		mask := ipnet.Mask
		if len(mask) == net.IPv6len {
			mask = mask[12:]
		}
		return ip4, &net.IPNet{IP: ip4.Mask(mask), Mask: mask}, true
	}
	return nil, nil, false
}

// Validate checks the preconditions a scan needs from the interface.
func (i Interface) Validate() error {
	if len(i.HardwareAddr) == 0 {
		return fmt.Errorf("%w %s", ErrNoHardwareAddr, i.Name)
	}
	if i.IP.To4() == nil || i.Network == nil {
		return fmt.Errorf("%w %s", ErrNoIPv4, i.Name)
	}
	return nil
}
