package pacer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func newFake(t *testing.T, fps int) (*Pacer, *fakeClock) {
	t.Helper()
	p, err := New(fps)
	require.NoError(t, err)
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p.now = clk.now
	p.sleep = clk.sleep
	return p, clk
}

func TestNewRejectsNonPositiveRate(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-3)
	require.Error(t, err)
}

func TestPeriod(t *testing.T) {
	p, err := New(24)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(1_000_000_000/24), p.Period())
}

func TestWaitSleepsResidual(t *testing.T) {
	p, clk := newFake(t, 10)
	start := clk.t
	clk.t = clk.t.Add(30 * time.Millisecond)

	slept := p.Wait(start)
	assert.Equal(t, 70*time.Millisecond, slept)
	assert.Equal(t, []time.Duration{70 * time.Millisecond}, clk.slept)
}

func TestWaitNeverNegative(t *testing.T) {
	p, clk := newFake(t, 10)
	start := clk.t
	clk.t = clk.t.Add(250 * time.Millisecond)

	assert.Equal(t, time.Duration(0), p.Residual(start))
	assert.Equal(t, time.Duration(0), p.Wait(start))
	assert.Empty(t, clk.slept)
}

func TestIterationsSpacedByPeriod(t *testing.T) {
	p, clk := newFake(t, 50)
	var starts []time.Time
	for i := 0; i < 5; i++ {
		start := p.Now()
		starts = append(starts, start)
		clk.t = clk.t.Add(time.Millisecond) // negligible work
		p.Wait(start)
	}
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), p.Period())
	}
}

func TestRealClockSpacing(t *testing.T) {
	p, err := New(100)
	require.NoError(t, err)

	start := time.Now()
	p.Wait(start)
	assert.GreaterOrEqual(t, time.Since(start), p.Period())
}
