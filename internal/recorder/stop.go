package recorder

import "sync/atomic"

// StopController is a one-way stop flag shared by the command side and the
// capture goroutine. It gates loop continuation only and guards no other
// data.
type StopController struct {
	stopped atomic.Bool
}

// Stop raises the flag. It reports whether this call raised it.
func (c *StopController) Stop() bool {
	return c.stopped.CompareAndSwap(false, true)
}

// Stopped reports whether Stop has been called.
func (c *StopController) Stopped() bool {
	return c.stopped.Load()
}
