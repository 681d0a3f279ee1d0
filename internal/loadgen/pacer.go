package loadgen

import (
	"context"
	"time"
)

// Clock abstracts wall time so pacing can be driven deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

// WallClock is the real-time Clock.
var WallClock Clock = wallClock{}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Pacer holds the next-fire cursor of a rate-paced loop.
//
// When the loop is behind schedule the cursor snaps to now instead of queueing catch-up fires.
type Pacer struct {
	clock    Clock
	interval time.Duration
	next     time.Time
}

func NewPacer(clock Clock, rate float64, start time.Time) *Pacer {
	interval := time.Duration(float64(time.Second) / rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &Pacer{clock: clock, interval: interval, next: start}
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Next reports when the following fire is due.
func (p *Pacer) Next() time.Time {
	return p.next
}

// Wait blocks until the next fire is due and advances the cursor by one interval.
func (p *Pacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	if d := p.next.Sub(now); d > 0 {
		if err := p.clock.Sleep(ctx, d); err != nil {
			return err
		}
	} else {
		p.next = now
	}
	p.next = p.next.Add(p.interval)
	return nil
}
