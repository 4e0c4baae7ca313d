package framequeue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(seq uint64) Envelope {
	return Envelope{Seq: seq, PTS: time.Duration(seq) * time.Millisecond}
}

func strategies() []Options {
	return []Options{
		{Strategy: Stream},
		{Strategy: Polled, PollInterval: time.Millisecond},
	}
}

// drain collects every envelope until the queue reports closure.
func drain(t *testing.T, q Queue) []uint64 {
	t.Helper()
	var seqs []uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			batch, ok := q.Next()
			if !ok {
				return
			}
			for _, e := range batch {
				seqs = append(seqs, e.Seq)
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout draining queue")
	}
	return seqs
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Capacity: -1})
	require.Error(t, err)
	_, err = New(Options{Strategy: Strategy(9)})
	require.Error(t, err)
	_, err = New(Options{Overflow: Overflow(9)})
	require.Error(t, err)

	q, err := New(Options{Strategy: Polled})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, q.(*polledQueue).opts.PollInterval)
}

func TestParse(t *testing.T) {
	s, err := ParseStrategy("polled")
	require.NoError(t, err)
	assert.Equal(t, Polled, s)
	_, err = ParseStrategy("carrier-pigeon")
	require.Error(t, err)

	o, err := ParseOverflow("drop-oldest")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, o)
	assert.Equal(t, "reject-new", RejectNew.String())
	_, err = ParseOverflow("explode")
	require.Error(t, err)
}

func TestDrainsInOrderAfterClose(t *testing.T) {
	for _, opts := range strategies() {
		t.Run(opts.Strategy.String(), func(t *testing.T) {
			q, err := New(opts)
			require.NoError(t, err)

			for i := uint64(1); i <= 100; i++ {
				require.NoError(t, q.Push(env(i)))
			}
			q.Close()

			seqs := drain(t, q)
			require.Len(t, seqs, 100)
			for i, s := range seqs {
				assert.Equal(t, uint64(i+1), s)
			}
			assert.Equal(t, uint64(100), q.Stats().Delivered)
			assert.ErrorIs(t, q.Push(env(101)), ErrClosed)
		})
	}
}

func TestConcurrentProducerConsumerKeepsOrder(t *testing.T) {
	for _, opts := range strategies() {
		t.Run(opts.Strategy.String(), func(t *testing.T) {
			q, err := New(opts)
			require.NoError(t, err)

			go func() {
				for i := uint64(1); i <= 500; i++ {
					_ = q.Push(env(i))
				}
				q.Close()
			}()

			seqs := drain(t, q)
			require.Len(t, seqs, 500)
			for i, s := range seqs {
				require.Equal(t, uint64(i+1), s)
			}
		})
	}
}

func TestRejectNew(t *testing.T) {
	q, err := New(Options{Capacity: 2, Overflow: RejectNew})
	require.NoError(t, err)

	require.NoError(t, q.Push(env(1)))
	require.NoError(t, q.Push(env(2)))
	assert.ErrorIs(t, q.Push(env(3)), ErrFull)
	assert.Equal(t, uint64(1), q.Stats().Rejected)

	q.Close()
	assert.Equal(t, []uint64{1, 2}, drain(t, q))
}

func TestDropOldest(t *testing.T) {
	var evicted []uint64
	q, err := New(Options{
		Capacity: 2,
		Overflow: DropOldest,
		OnEvict:  func(e Envelope) { evicted = append(evicted, e.Seq) },
	})
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, q.Push(env(i)))
	}
	assert.Equal(t, []uint64{1, 2, 3}, evicted)
	assert.Equal(t, uint64(3), q.Stats().Evicted)

	q.Close()
	assert.Equal(t, []uint64{4, 5}, drain(t, q))
}

func TestBlockWaitsForRoom(t *testing.T) {
	q, err := New(Options{Capacity: 1, Overflow: Block})
	require.NoError(t, err)
	require.NoError(t, q.Push(env(1)))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(env(2)) }()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	batch, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(1), batch[0].Seq)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after room was made")
	}
}

func TestDetachUnblocksAndFailsProducer(t *testing.T) {
	for _, opts := range strategies() {
		t.Run(opts.Strategy.String(), func(t *testing.T) {
			opts.Capacity = 1
			opts.Overflow = Block
			q, err := New(opts)
			require.NoError(t, err)
			require.NoError(t, q.Push(env(1)))

			pushed := make(chan error, 1)
			go func() { pushed <- q.Push(env(2)) }()

			assert.Equal(t, 1, q.Detach())
			select {
			case err := <-pushed:
				assert.ErrorIs(t, err, ErrDetached)
			case <-time.After(time.Second):
				t.Fatal("detach did not release the blocked producer")
			}
			assert.Equal(t, 0, q.Len())
			assert.Equal(t, uint64(1), q.Stats().Abandoned)
			assert.ErrorIs(t, q.Push(env(3)), ErrDetached)

			_, ok := q.Next()
			assert.False(t, ok)
		})
	}
}

func TestNextBlocksUntilPush(t *testing.T) {
	q, err := New(Options{Strategy: Stream})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []Envelope
	go func() {
		defer wg.Done()
		got, _ = q.Next()
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(env(7)))
	wg.Wait()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Seq)
}

func TestPolledBatches(t *testing.T) {
	q := newPolledQueue(Options{Strategy: Polled, PollInterval: time.Millisecond})
	var slept int
	q.sleep = func(time.Duration) { slept++ }

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.Push(env(i)))
	}
	batch, ok := q.Next()
	require.True(t, ok)
	assert.Len(t, batch, 3)
	assert.Equal(t, 1, slept)
	assert.Equal(t, 0, q.Len())

	q.Close()
	_, ok = q.Next()
	assert.False(t, ok)
}
