package discovery

import "sync/atomic"

// StopToken is a one-way armed -> stopped switch shared between the sending
// side of a scan and its receiver goroutine.
type StopToken struct {
	stopped atomic.Bool
}

// Stop moves the token to the stopped state. Calling it again is a no-op.
func (t *StopToken) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (t *StopToken) Stopped() bool {
	return t.stopped.Load()
}
