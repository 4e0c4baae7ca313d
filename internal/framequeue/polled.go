package framequeue

import "time"

// polledQueue accumulates envelopes and hands them over in batches every
// PollInterval.
type polledQueue struct {
	*core
	sleep func(time.Duration)
}

func newPolledQueue(opts Options) *polledQueue {
	return &polledQueue{core: newCore(opts), sleep: time.Sleep}
}

func (q *polledQueue) Next() ([]Envelope, bool) {
	for {
		q.sleep(q.opts.PollInterval)

		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items
			q.items = nil
			q.stats.Delivered += uint64(len(batch))
			q.cond.Broadcast()
			q.mu.Unlock()
			return batch, true
		}
		done := q.closed || q.detached
		q.mu.Unlock()

		if done {
			return nil, false
		}
	}
}
