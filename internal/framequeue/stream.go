package framequeue

// streamQueue wakes the consumer for every envelope.
type streamQueue struct {
	*core
}

func newStreamQueue(opts Options) *streamQueue {
	return &streamQueue{core: newCore(opts)}
}

func (q *streamQueue) Next() ([]Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && !q.detached {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	env := q.popFront()
	q.stats.Delivered++
	q.cond.Broadcast()
	return []Envelope{env}, true
}
