// Package pacer caps the request rate shared by all workers of a run.
package pacer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer spaces request starts at a fixed rate using a leaky bucket.
//
// The bucket keeps a virtual drip time that advances by 1/rate per slot.
// Callers that are behind schedule get a slot immediately; callers that are
// ahead get a start time in the future. Unused capacity is capped at one
// slot, so a slow target never causes a burst once it recovers.
//
// A nil *Pacer is valid and never waits, which lets the worker pool treat an
// unpaced run the same as a paced one.
//
// # Thread Safety
//
// Pacer is safe for concurrent use from multiple goroutines.
type Pacer struct {
	rate        float64 // slots per second
	lastDrip    time.Time
	accumulated float64
	mu          sync.Mutex
	now         func() time.Time

	granted atomic.Int64
	waited  atomic.Int64 // nanoseconds
}

// New creates a pacer for rate requests per second. It returns nil when rate
// is not positive, meaning "unpaced".
func New(rate float64) *Pacer {
	if rate <= 0 {
		return nil
	}
	return newWithClock(rate, time.Now)
}

func newWithClock(rate float64, now func() time.Time) *Pacer {
	return &Pacer{
		rate:        rate,
		lastDrip:    now(),
		accumulated: 1, // first slot is free
		now:         now,
	}
}

// Rate returns the configured rate, or 0 for a nil pacer.
func (p *Pacer) Rate() float64 {
	if p == nil {
		return 0
	}
	return p.rate
}

// Next reserves the next slot and returns when it starts. The returned time
// is not in the future when the caller may proceed immediately.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	// Slots already handed out in the future are queued behind.
	base := now
	if p.lastDrip.After(now) {
		base = p.lastDrip
	}

	elapsed := base.Sub(p.lastDrip).Seconds()
	p.accumulated = min(p.accumulated+elapsed*p.rate, 1)
	p.granted.Add(1)

	if p.accumulated >= 1 {
		p.accumulated--
		p.lastDrip = base
		return base
	}

	next := base.Add(time.Duration((1 - p.accumulated) / p.rate * float64(time.Second)))

	// The slot is spent at next, so the drip clock moves there to avoid
	// granting the same interval twice.
	p.accumulated = 0
	p.lastDrip = next
	p.waited.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the caller's slot starts or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	d := time.Until(p.Next())
	if d <= 0 {
		return nil
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

// Stats describes the pacer's activity so far.
type Stats struct {
	Rate      float64       `json:"rate"`
	Granted   int64         `json:"granted"`
	TotalWait time.Duration `json:"totalWait"`
}

// Stats returns counters for the report. A nil pacer reports zero values.
func (p *Pacer) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Rate:      p.rate,
		Granted:   p.granted.Load(),
		TotalWait: time.Duration(p.waited.Load()),
	}
}
