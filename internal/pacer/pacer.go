// Package pacer spaces capture iterations to a target frame rate.
//
// Screen grabbing is poll based, so the rate is imposed from outside: after
// each iteration the caller sleeps whatever is left of the frame period.
// This is best-effort pacing, not frame-accurate timing.
package pacer

import (
	"fmt"
	"time"
)

// Pacer enforces a minimum wall-clock interval between loop iterations.
type Pacer struct {
	period time.Duration
	now    func() time.Time
	sleep  func(time.Duration)
}

// New returns a Pacer for fps frames per second.
func New(fps int) (*Pacer, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("pacer: fps must be positive, got %d", fps)
	}
	return &Pacer{
		period: time.Second / time.Duration(fps),
		now:    time.Now,
		sleep:  time.Sleep,
	}, nil
}

// Period returns the target interval between iterations.
func (p *Pacer) Period() time.Duration {
	return p.period
}

// Now returns the pacer's notion of the current time.
func (p *Pacer) Now() time.Time {
	return p.now()
}

// Residual returns how much of the period is left since start. It is never
// negative.
func (p *Pacer) Residual(start time.Time) time.Duration {
	elapsed := p.now().Sub(start)
	if elapsed >= p.period {
		return 0
	}
	return p.period - elapsed
}

// Wait sleeps the residual budget of the iteration that began at start and
// returns the slept duration.
func (p *Pacer) Wait(start time.Time) time.Duration {
	d := p.Residual(start)
	if d > 0 {
		p.sleep(d)
	}
	return d
}
