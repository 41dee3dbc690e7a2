package discovery

import "net"

// HostCount returns how many addresses EachHost visits for network.
func HostCount(network *net.IPNet, limit int) int {
	first, mask := networkStart(network)
	if first == nil {
		return 0
	}
	ones, bits := mask.Size()
	size := uint64(1) << uint(bits-ones)
	if limit > 0 && uint64(limit) < size {
		return limit
	}
	return int(size)
}

// EachHost calls fn for every address of an IPv4 network, from the network
// address through the broadcast address inclusive, in ascending order. A
// positive limit caps the number of addresses visited. Iteration stops early
// when fn returns false. The IP passed to fn is a fresh copy.
func EachHost(network *net.IPNet, limit int, fn func(net.IP) bool) {
	current, _ := networkStart(network)
	if current == nil {
		return
	}
	total := HostCount(network, limit)
	for i := 0; i < total; i++ {
		ip := make(net.IP, len(current))
		copy(ip, current)
		if !fn(ip) {
			return
		}
		inc(current)
	}
}

// Hosts collects the addresses EachHost visits.
func Hosts(network *net.IPNet, limit int) []net.IP {
	hosts := make([]net.IP, 0, HostCount(network, limit))
	EachHost(network, limit, func(ip net.IP) bool {
		hosts = append(hosts, ip)
		return true
	})
	return hosts
}

func networkStart(network *net.IPNet) (net.IP, net.IPMask) {
	if network == nil {
		return nil, nil
	}
	base := network.IP.To4()
	if base == nil {
		return nil, nil
	}
	mask := network.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil, nil
	}
	return base.Mask(mask), mask
}

func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
