package discovery

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus/hooks/test"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("bad mac %q: %v", s, err)
	}
	return mac
}

func subnet(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("bad cidr %q: %v", cidr, err)
	}
	return n
}

func replyFrame(t *testing.T, senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       targetMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(senderMAC),
		SourceProtAddress: []byte(senderIP.To4()),
		DstHwAddress:      []byte(targetMAC),
		DstProtAddress:    []byte(targetIP.To4()),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp); err != nil {
		t.Fatalf("serialize reply: %v", err)
	}
	return buf.Bytes()
}

// fakeLink is an in-memory FrameSender/FrameReceiver. Every request written
// is handed to respond, and the frames it returns are queued for reading.
type fakeLink struct {
	mu      sync.Mutex
	targets []net.IP
	inbox   chan []byte
	respond func(target net.IP) [][]byte
	readErr error
}

func newFakeLink(respond func(target net.IP) [][]byte) *fakeLink {
	return &fakeLink{inbox: make(chan []byte, 256), respond: respond}
}

func (f *fakeLink) WriteFrame(frame []byte) error {
	if len(frame) < 42 {
		return errors.New("short frame")
	}
	target := net.IP(append([]byte(nil), frame[38:42]...))
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	if f.respond != nil {
		for _, r := range f.respond(target) {
			f.inbox <- r
		}
	}
	return nil
}

func (f *fakeLink) ReadFrame() ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	select {
	case frame := <-f.inbox:
		return frame, nil
	case <-time.After(time.Millisecond):
		return nil, ErrReadTimeout
	}
}

func (f *fakeLink) sentTargets() []net.IP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]net.IP(nil), f.targets...)
}

func fastConfig() ScanConfig {
	return ScanConfig{
		StartupDelay: time.Millisecond,
		Pacing:       time.Millisecond,
		Grace:        50 * time.Millisecond,
	}
}

func testInterface(t *testing.T) Interface {
	return Interface{
		Name:         "eth0",
		HardwareAddr: mustMAC(t, "02:00:00:00:00:01"),
		IP:           net.IPv4(192, 168, 1, 1).To4(),
		Network:      subnet(t, "192.168.1.0/30"),
	}
}

func TestHostsIncludesNetworkAndBroadcast(t *testing.T) {
	tests := []struct {
		cidr  string
		limit int
		count int
		first string
		last  string
	}{
		{"192.168.1.0/30", 0, 4, "192.168.1.0", "192.168.1.3"},
		{"10.0.0.77/24", 0, 256, "10.0.0.0", "10.0.0.255"},
		{"172.16.5.9/32", 0, 1, "172.16.5.9", "172.16.5.9"},
		{"10.1.0.0/16", 10, 10, "10.1.0.0", "10.1.0.9"},
		{"10.0.0.255/23", 0, 512, "10.0.0.0", "10.0.1.255"},
	}
	for _, tt := range tests {
		hosts := Hosts(subnet(t, tt.cidr), tt.limit)
		if len(hosts) != tt.count {
			t.Fatalf("%s: expected %d hosts, got %d", tt.cidr, tt.count, len(hosts))
		}
		if got := HostCount(subnet(t, tt.cidr), tt.limit); got != tt.count {
			t.Fatalf("%s: expected HostCount %d, got %d", tt.cidr, tt.count, got)
		}
		if hosts[0].String() != tt.first {
			t.Fatalf("%s: expected first %s, got %s", tt.cidr, tt.first, hosts[0])
		}
		if hosts[len(hosts)-1].String() != tt.last {
			t.Fatalf("%s: expected last %s, got %s", tt.cidr, tt.last, hosts[len(hosts)-1])
		}
	}
}

func TestHostsRejectsIPv6(t *testing.T) {
	if hosts := Hosts(subnet(t, "fe80::/126"), 0); len(hosts) != 0 {
		t.Fatalf("expected no hosts for ipv6 network, got %v", hosts)
	}
	if hosts := Hosts(nil, 0); len(hosts) != 0 {
		t.Fatalf("expected no hosts for nil network, got %v", hosts)
	}
}

func TestBuildRequestLayout(t *testing.T) {
	src := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	frame, err := BuildRequest(src, net.IPv4(192, 168, 1, 1), net.IPv4(192, 168, 1, 42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frame) < 42 {
		t.Fatalf("expected at least 42 bytes, got %d", len(frame))
	}

	checks := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"eth dst", frame[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"eth src", frame[6:12], src},
		{"ethertype", frame[12:14], []byte{0x08, 0x06}},
		{"htype", frame[14:16], []byte{0x00, 0x01}},
		{"ptype", frame[16:18], []byte{0x08, 0x00}},
		{"hlen/plen", frame[18:20], []byte{6, 4}},
		{"op", frame[20:22], []byte{0x00, 0x01}},
		{"sender hw", frame[22:28], src},
		{"sender ip", frame[28:32], []byte{192, 168, 1, 1}},
		{"target hw", frame[32:38], []byte{0, 0, 0, 0, 0, 0}},
		{"target ip", frame[38:42], []byte{192, 168, 1, 42}},
	}
	for _, c := range checks {
		if !bytes.Equal(c.got, c.want) {
			t.Fatalf("%s: expected % x, got % x", c.name, c.want, c.got)
		}
	}
}

func TestBuildRequestRejectsBadInput(t *testing.T) {
	src := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	if _, err := BuildRequest(src, net.ParseIP("fe80::1"), net.IPv4(10, 0, 0, 1)); err == nil {
		t.Fatalf("expected error for ipv6 source")
	}
	if _, err := BuildRequest(net.HardwareAddr{1, 2, 3}, net.IPv4(10, 0, 0, 2), net.IPv4(10, 0, 0, 1)); err == nil {
		t.Fatalf("expected error for short mac")
	}
}

func TestParseReply(t *testing.T) {
	sender := mustMAC(t, "00:1c:b3:01:02:03")
	self := mustMAC(t, "02:00:00:00:00:01")
	frame := replyFrame(t, sender, net.IPv4(192, 168, 1, 2), self, net.IPv4(192, 168, 1, 1))

	reply, ok := ParseReply(frame)
	if !ok {
		t.Fatalf("expected reply to parse")
	}
	if !reply.IP.Equal(net.IPv4(192, 168, 1, 2)) {
		t.Fatalf("expected sender ip 192.168.1.2, got %s", reply.IP)
	}
	if !bytes.Equal(reply.MAC, sender) {
		t.Fatalf("expected sender mac %s, got %s", sender, reply.MAC)
	}

	// Mutating the frame must not change the parsed reply.
	frame[28] = 0
	if reply.IP[0] != 192 {
		t.Fatalf("reply aliases the frame buffer")
	}
}

func TestParseReplyDiscardsNonARP(t *testing.T) {
	sender := mustMAC(t, "00:1c:b3:01:02:03")
	self := mustMAC(t, "02:00:00:00:00:01")
	good := replyFrame(t, sender, net.IPv4(192, 168, 1, 2), self, net.IPv4(192, 168, 1, 1))

	wrongType := append([]byte(nil), good...)
	wrongType[12], wrongType[13] = 0x08, 0x00

	tests := map[string][]byte{
		"empty":          nil,
		"short header":   good[:10],
		"truncated arp":  good[:30],
		"ipv4 ethertype": wrongType,
		"header only":    good[:14],
	}
	for name, frame := range tests {
		if _, ok := ParseReply(frame); ok {
			t.Fatalf("%s: expected frame to be discarded", name)
		}
	}
}

func TestCanonicalizeSortsAndKeepsFirstSeen(t *testing.T) {
	first := mustMAC(t, "00:00:00:00:00:01")
	second := mustMAC(t, "00:00:00:00:00:02")
	other := mustMAC(t, "00:00:00:00:00:03")

	replies := []Reply{
		{IP: net.IPv4(10, 0, 0, 9).To4(), MAC: other},
		{IP: net.IPv4(10, 0, 0, 2).To4(), MAC: first},
		{IP: net.IPv4(10, 0, 0, 1).To4(), MAC: other},
		{IP: net.IPv4(10, 0, 0, 2).To4(), MAC: second},
		{IP: net.IPv4(10, 0, 0, 10).To4(), MAC: other},
	}
	got := Canonicalize(replies)

	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.9", "10.0.0.10"}
	if len(got) != len(want) {
		t.Fatalf("expected %d replies, got %d", len(want), len(got))
	}
	for i, ip := range want {
		if got[i].IP.String() != ip {
			t.Fatalf("reply %d: expected %s, got %s", i, ip, got[i].IP)
		}
	}
	if !bytes.Equal(got[1].MAC, first) {
		t.Fatalf("expected first-seen mac %s to win, got %s", first, got[1].MAC)
	}
}

func TestCanonicalizeOrderIndependentOfInput(t *testing.T) {
	mac := mustMAC(t, "00:00:00:00:00:01")
	a := Reply{IP: net.IPv4(192, 168, 0, 200).To4(), MAC: mac}
	b := Reply{IP: net.IPv4(192, 168, 1, 3).To4(), MAC: mac}
	c := Reply{IP: net.IPv4(192, 168, 1, 20).To4(), MAC: mac}

	perms := [][]Reply{{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}}
	for _, p := range perms {
		got := Canonicalize(p)
		if !got[0].IP.Equal(a.IP) || !got[1].IP.Equal(b.IP) || !got[2].IP.Equal(c.IP) {
			t.Fatalf("expected ascending order, got %v %v %v", got[0].IP, got[1].IP, got[2].IP)
		}
	}
}

func TestScanCollectsRepliesFromWholeSubnet(t *testing.T) {
	iface := testInterface(t)
	vendorMAC := mustMAC(t, "00:1c:b3:01:02:03")
	otherMAC := mustMAC(t, "52:54:00:12:34:56")
	lateMAC := mustMAC(t, "52:54:00:ff:ff:ff")

	link := newFakeLink(func(target net.IP) [][]byte {
		switch target.String() {
		case "192.168.1.1":
			// Our own request seen on the wire.
			return [][]byte{replyFrame(t, iface.HardwareAddr, iface.IP, broadcastMAC, target)}
		case "192.168.1.2":
			return [][]byte{
				replyFrame(t, vendorMAC, target, iface.HardwareAddr, iface.IP),
				replyFrame(t, lateMAC, target, iface.HardwareAddr, iface.IP),
			}
		case "192.168.1.3":
			return [][]byte{replyFrame(t, otherMAC, target, iface.HardwareAddr, iface.IP)}
		}
		return nil
	})

	var progress []int
	cfg := fastConfig()
	cfg.Progress = func(sent, total int) {
		if total != 4 {
			t.Errorf("expected total 4, got %d", total)
		}
		progress = append(progress, sent)
	}

	logger, _ := test.NewNullLogger()
	scanner := NewScanner(cfg, logger)
	replies, err := scanner.Scan(context.Background(), iface, link, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	targets := link.sentTargets()
	if len(targets) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(targets))
	}
	for i, want := range []string{"192.168.1.0", "192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		if targets[i].String() != want {
			t.Fatalf("request %d: expected %s, got %s", i, want, targets[i])
		}
	}
	if len(progress) != 4 || progress[3] != 4 {
		t.Fatalf("expected progress up to 4, got %v", progress)
	}

	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d: %v", len(replies), replies)
	}
	if replies[0].IP.String() != "192.168.1.2" || !bytes.Equal(replies[0].MAC, vendorMAC) {
		t.Fatalf("unexpected first reply %s %s", replies[0].IP, replies[0].MAC)
	}
	if replies[1].IP.String() != "192.168.1.3" || !bytes.Equal(replies[1].MAC, otherMAC) {
		t.Fatalf("unexpected second reply %s %s", replies[1].IP, replies[1].MAC)
	}

	if stats := scanner.Stats(); stats.Sent != 4 || stats.SendErrors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestScanIgnoresAnnouncementsAndForeignSenders(t *testing.T) {
	iface := testInterface(t)
	vendorMAC := mustMAC(t, "00:1c:b3:01:02:03")
	foreignMAC := mustMAC(t, "52:54:00:00:00:09")

	link := newFakeLink(func(target net.IP) [][]byte {
		if target.String() != "192.168.1.2" {
			return nil
		}
		return [][]byte{
			// Address-conflict probe sent while the device picks its address.
			replyFrame(t, vendorMAC, net.IPv4zero, iface.HardwareAddr, target),
			replyFrame(t, vendorMAC, target, iface.HardwareAddr, iface.IP),
			replyFrame(t, foreignMAC, net.IPv4(10, 9, 9, 9), iface.HardwareAddr, iface.IP),
		}
	})

	logger, _ := test.NewNullLogger()
	replies, err := NewScanner(fastConfig(), logger).Scan(context.Background(), iface, link, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d: %v", len(replies), replies)
	}
	if replies[0].IP.String() != "192.168.1.2" || !bytes.Equal(replies[0].MAC, vendorMAC) {
		t.Fatalf("unexpected reply %s %s", replies[0].IP, replies[0].MAC)
	}
}

func TestScanAbortsOnReadError(t *testing.T) {
	link := newFakeLink(nil)
	errGone := errors.New("device gone")
	link.readErr = errGone

	logger, _ := test.NewNullLogger()
	_, err := NewScanner(fastConfig(), logger).Scan(context.Background(), testInterface(t), link, link)
	if !errors.Is(err, errGone) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	link := newFakeLink(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := test.NewNullLogger()
	_, err := NewScanner(fastConfig(), logger).Scan(ctx, testInterface(t), link, link)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := len(link.sentTargets()); n != 0 {
		t.Fatalf("expected no requests after cancel, got %d", n)
	}
}

func TestScanRequiresUsableInterface(t *testing.T) {
	link := newFakeLink(nil)
	iface := testInterface(t)
	iface.HardwareAddr = nil

	_, err := NewScanner(fastConfig(), nil).Scan(context.Background(), iface, link, link)
	if !errors.Is(err, ErrNoHardwareAddr) {
		t.Fatalf("expected ErrNoHardwareAddr, got %v", err)
	}

	iface = testInterface(t)
	iface.Network = nil
	_, err = NewScanner(fastConfig(), nil).Scan(context.Background(), iface, link, link)
	if !errors.Is(err, ErrNoIPv4) {
		t.Fatalf("expected ErrNoIPv4, got %v", err)
	}
}

type sendFailLink struct {
	*fakeLink
}

func (l sendFailLink) WriteFrame([]byte) error {
	return errors.New("no buffer space")
}

func TestScanCountsSendFailures(t *testing.T) {
	link := sendFailLink{newFakeLink(nil)}
	logger, hook := test.NewNullLogger()
	scanner := NewScanner(fastConfig(), logger)

	replies, err := scanner.Scan(context.Background(), testInterface(t), link, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected no replies, got %d", len(replies))
	}
	if stats := scanner.Stats(); stats.SendErrors != 4 || stats.Sent != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "could not send arp request" {
			warnings++
		}
	}
	if warnings != 4 {
		t.Fatalf("expected 4 send warnings, got %d", warnings)
	}
}

func TestSelectFrom(t *testing.T) {
	mac := mustMAC(t, "02:00:00:00:00:01")
	v4 := &net.IPNet{IP: net.IPv4(192, 168, 1, 17), Mask: net.CIDRMask(24, 32)}
	v6 := &net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}

	ifaces := []net.Interface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
		{Name: "down0", Flags: 0, HardwareAddr: mac},
		{Name: "tun0", Flags: net.FlagUp},
		{Name: "v6only", Flags: net.FlagUp, HardwareAddr: mac},
		{Name: "eth0", Flags: net.FlagUp | net.FlagBroadcast, HardwareAddr: mac},
		{Name: "eth1", Flags: net.FlagUp | net.FlagBroadcast, HardwareAddr: mac},
	}
	addrs := map[string][]net.Addr{
		"lo":     {&net.IPNet{IP: net.IPv4(127, 0, 0, 1), Mask: net.CIDRMask(8, 32)}},
		"down0":  {v4},
		"tun0":   {v4},
		"v6only": {v6},
		"eth0":   {v6, v4},
		"eth1":   {v4},
	}
	addrsOf := func(iface net.Interface) ([]net.Addr, error) { return addrs[iface.Name], nil }

	got, err := selectFrom(ifaces, "", addrsOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "eth0" {
		t.Fatalf("expected eth0, got %s", got.Name)
	}
	if got.IP.String() != "192.168.1.17" || got.Network.String() != "192.168.1.0/24" {
		t.Fatalf("unexpected addressing %s %s", got.IP, got.Network)
	}

	got, err = selectFrom(ifaces, "eth1", addrsOf)
	if err != nil || got.Name != "eth1" {
		t.Fatalf("expected eth1, got %s (%v)", got.Name, err)
	}

	if _, err := selectFrom(ifaces, "v6only", addrsOf); !errors.Is(err, ErrNoInterface) {
		t.Fatalf("expected ErrNoInterface for v6only, got %v", err)
	}
	if _, err := selectFrom(ifaces[:4], "", addrsOf); !errors.Is(err, ErrNoInterface) {
		t.Fatalf("expected ErrNoInterface, got %v", err)
	}
}

func TestStopToken(t *testing.T) {
	var tok StopToken
	if tok.Stopped() {
		t.Fatalf("expected armed token")
	}
	tok.Stop()
	tok.Stop()
	if !tok.Stopped() {
		t.Fatalf("expected stopped token")
	}
}
