package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanConfig controls the timing of an ARP sweep.
type ScanConfig struct {
	// StartupDelay lets the receiver start polling before the first request.
	// Defaults to 100ms if <= 0.
	StartupDelay time.Duration
	// Pacing is the pause between two requests so the local segment is not
	// flooded. Defaults to 5ms if <= 0.
	Pacing time.Duration
	// Grace is how long to keep listening after the last request.
	// Defaults to 2s if <= 0.
	Grace time.Duration
	// MaxHosts caps how many addresses are probed. Zero or negative probes
	// the whole subnet.
	MaxHosts int
	// Progress, if set, is called after each request with the number of
	// requests sent so far and the total.
	Progress func(sent, total int)
}

const (
	DefaultStartupDelay = 100 * time.Millisecond
	DefaultPacing       = 5 * time.Millisecond
	DefaultGrace        = 2 * time.Second
	DefaultReadTimeout  = 30 * time.Millisecond
)

func applyDefaults(cfg ScanConfig) ScanConfig {
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return cfg
}

// Stats describes the sending side of the last sweep.
type Stats struct {
	Sent       int
	SendErrors int
	Duration   time.Duration
}

// Scanner discovers live hosts with broadcast ARP requests.
type Scanner struct {
	cfg ScanConfig
	log logrus.FieldLogger

	last Stats
}

// NewScanner returns a Scanner. A nil logger falls back to the standard logrus logger.
func NewScanner(cfg ScanConfig, log logrus.FieldLogger) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scanner{cfg: applyDefaults(cfg), log: log}
}

// Stats returns the counters of the last completed sweep.
func (s *Scanner) Stats() Stats {
	return s.last
}

type receiveResult struct {
	replies []Reply
	err     error
}

// Scan sends one ARP request per address of the interface's subnet while a
// receiver goroutine collects replies from rx. It returns the replies sorted
// by IPv4 address with one entry per address.
func (s *Scanner) Scan(ctx context.Context, iface Interface, tx FrameSender, rx FrameReceiver) ([]Reply, error) {
	if err := iface.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	total := HostCount(iface.Network, s.cfg.MaxHosts)
	log := s.log.WithFields(logrus.Fields{"interface": iface.Name, "network": iface.Network.String()})
	log.Infof("running arp scan, %d ips to scan", total)

	stop := &StopToken{}
	done := make(chan receiveResult, 1)
	go func() {
		replies, err := receive(rx, stop, iface)
		done <- receiveResult{replies: replies, err: err}
	}()

	// abort stops the receiver and waits for it so rx is never read after Scan returns.
	abort := func(err error) ([]Reply, error) {
		stop.Stop()
		if res := <-done; res.err != nil {
			return nil, res.err
		}
		return nil, err
	}

	if err := sleepCtx(ctx, s.cfg.StartupDelay); err != nil {
		return abort(err)
	}

	stats := Stats{}
	var sendErr error
	EachHost(iface.Network, s.cfg.MaxHosts, func(target net.IP) bool {
		select {
		case res := <-done:
			// The receiver only exits early on a fatal read error.
			done <- res
			sendErr = res.err
			return false
		default:
		}

		frame, err := BuildRequest(iface.HardwareAddr, iface.IP, target)
		if err != nil {
			sendErr = err
			return false
		}
		if err := tx.WriteFrame(frame); err != nil {
			stats.SendErrors++
			log.WithError(err).WithField("target", target.String()).Warn("could not send arp request")
		} else {
			stats.Sent++
		}
		if s.cfg.Progress != nil {
			s.cfg.Progress(stats.Sent+stats.SendErrors, total)
		}

		if err := sleepCtx(ctx, s.cfg.Pacing); err != nil {
			sendErr = err
			return false
		}
		return true
	})
	if sendErr != nil {
		return abort(sendErr)
	}

	if err := sleepCtx(ctx, s.cfg.Grace); err != nil {
		return abort(err)
	}
	stop.Stop()

	res := <-done
	if res.err != nil {
		return nil, res.err
	}

	replies := Canonicalize(res.replies)
	stats.Duration = time.Since(start)
	s.last = stats
	log.WithFields(logrus.Fields{
		"frames_seen": len(res.replies),
		"send_errors": stats.SendErrors,
		"elapsed":     stats.Duration.Round(time.Millisecond).String(),
	}).Infof("arp scan completed, %d addresses found", len(replies))

	return replies, nil
}

func receive(rx FrameReceiver, stop *StopToken, iface Interface) ([]Reply, error) {
	var replies []Reply
	for !stop.Stopped() {
		frame, err := rx.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			return nil, fmt.Errorf("cannot receive packet: %w", err)
		}

		reply, ok := ParseReply(frame)
		if !ok {
			continue
		}
		// Our own requests are echoed back on some capture backends.
		if bytes.Equal(reply.MAC, iface.HardwareAddr) {
			continue
		}
		// ARP probes announce 0.0.0.0; other senders are not on this segment's subnet.
		if reply.IP.IsUnspecified() || !iface.Network.Contains(reply.IP) {
			continue
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// Canonicalize sorts replies by IPv4 address ascending and keeps one reply
// per address. When an address answered more than once, the reply that was
// received first wins.
func Canonicalize(replies []Reply) []Reply {
	sorted := make([]Reply, len(replies))
	copy(sorted, replies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].IP.To4(), sorted[j].IP.To4()) < 0
	})

	result := make([]Reply, 0, len(sorted))
	for _, r := range sorted {
		if n := len(result); n > 0 && result[n-1].IP.Equal(r.IP) {
			continue
		}
		result = append(result, r)
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
