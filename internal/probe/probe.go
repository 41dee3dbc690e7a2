package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// SyncPort is the TCP port of the vendor's device sync service.
	SyncPort = 62078
	// DefaultTimeout bounds a single connection attempt.
	DefaultTimeout = 2 * time.Second
)

// Result is the outcome of a probe that did not fail.
type Result int

const (
	Refused  Result = iota // port closed, host answered with RST
	TimedOut               // no answer within the timeout
	Present                // connection established
)

func (r Result) String() string {
	switch r {
	case Present:
		return "present"
	case Refused:
		return "refused"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// FatalError is a dial failure outside the refused/timeout model, such as an
// unreachable network. The run cannot draw conclusions past it.
type FatalError struct {
	Addr string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("unhandled error while connecting to %s: %v", e.Addr, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Prober.
type Config struct {
	Port    int
	Timeout time.Duration
	// Dialer overrides the network dialer, mainly for tests.
	Dialer Dialer
}

// Prober checks whether a host listens on the sync port.
type Prober struct {
	port    int
	timeout time.Duration
	dialer  Dialer
}

// New returns a Prober, filling in SyncPort and DefaultTimeout when unset.
func New(cfg Config) *Prober {
	if cfg.Port <= 0 {
		cfg.Port = SyncPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	return &Prober{port: cfg.Port, timeout: cfg.Timeout, dialer: cfg.Dialer}
}

// Port returns the probed TCP port.
func (p *Prober) Port() int {
	return p.port
}

// Probe makes one TCP connection attempt to ip. Refused and timed out
// attempts are normal results; any other failure is returned as *FatalError.
// Cancelling ctx returns ctx.Err().
func (p *Prober) Probe(ctx context.Context, ip net.IP) (Result, error) {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(p.port))

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", addr)
	if err == nil {
		conn.Close()
		return Present, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return TimedOut, ctxErr
	}
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return Refused, nil
	case isTimeout(err):
		return TimedOut, nil
	}
	return TimedOut, &FatalError{Addr: addr, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, unix.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
