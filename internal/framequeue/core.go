package framequeue

import "sync"

// core is the lock-guarded envelope buffer shared by both strategies.
type core struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Envelope
	opts     Options
	closed   bool
	detached bool
	stats    Stats
}

func newCore(opts Options) *core {
	c := &core{opts: opts}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// full reports whether a bounded queue is at capacity. Callers hold mu.
func (c *core) full() bool {
	return c.opts.Capacity > 0 && len(c.items) >= c.opts.Capacity
}

func (c *core) Push(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.Overflow == Block {
		for c.full() && !c.closed && !c.detached {
			c.cond.Wait()
		}
	}
	if c.detached {
		return ErrDetached
	}
	if c.closed {
		return ErrClosed
	}

	if c.full() {
		switch c.opts.Overflow {
		case RejectNew:
			c.stats.Rejected++
			return ErrFull
		case DropOldest:
			old := c.popFront()
			c.stats.Evicted++
			if c.opts.OnEvict != nil {
				c.opts.OnEvict(old)
			}
		}
	}

	c.items = append(c.items, env)
	c.stats.Pushed++
	c.cond.Broadcast()
	return nil
}

// popFront removes the oldest envelope. Callers hold mu and ensure len > 0.
func (c *core) popFront() Envelope {
	env := c.items[0]
	c.items[0] = Envelope{}
	c.items = c.items[1:]
	if len(c.items) == 0 {
		c.items = nil
	}
	return env
}

func (c *core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

func (c *core) Detach() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.stats.Abandoned += uint64(n)
	c.detached = true
	c.items = nil
	c.cond.Broadcast()
	return n
}

func (c *core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
