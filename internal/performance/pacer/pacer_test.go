package pacer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_NonPositiveRateIsUnpaced(t *testing.T) {
	for _, rate := range []float64{0, -5} {
		p := New(rate)
		if p != nil {
			t.Fatalf("New(%v) = %v, want nil", rate, p)
		}
		if err := p.Wait(context.Background()); err != nil {
			t.Errorf("nil pacer Wait() = %v, want nil", err)
		}
		if p.Rate() != 0 {
			t.Errorf("nil pacer Rate() = %v, want 0", p.Rate())
		}
	}
}

func TestPacer_FirstSlotImmediate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := newWithClock(10, clock.Now)

	if got := p.Next(); !got.Equal(clock.Now()) {
		t.Errorf("first Next() = %v, want %v", got, clock.Now())
	}
}

func TestPacer_SpacesSlots(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := newWithClock(100, clock.Now) // 10ms apart

	start := p.Next()
	second := p.Next()
	third := p.Next()

	if d := second.Sub(start); d != 10*time.Millisecond {
		t.Errorf("second slot offset = %v, want 10ms", d)
	}
	if d := third.Sub(start); d != 20*time.Millisecond {
		t.Errorf("third slot offset = %v, want 20ms", d)
	}

	stats := p.Stats()
	if stats.Granted != 3 {
		t.Errorf("Granted = %d, want 3", stats.Granted)
	}
	if stats.TotalWait != 30*time.Millisecond {
		t.Errorf("TotalWait = %v, want 30ms", stats.TotalWait)
	}
}

func TestPacer_NoBurstAfterIdle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := newWithClock(100, clock.Now)

	_ = p.Next()
	clock.Advance(time.Second) // idle for 100 slots

	first := p.Next()
	if !first.Equal(clock.Now()) {
		t.Errorf("slot after idle = %v, want immediate", first)
	}
	second := p.Next()
	if d := second.Sub(clock.Now()); d != 10*time.Millisecond {
		t.Errorf("second slot after idle waits %v, want 10ms", d)
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p := New(1)
	_ = p.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Wait() took %v, should return on context deadline", elapsed)
	}
}

func TestPacer_ConcurrentRate(t *testing.T) {
	p := New(200)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var (
		mu    sync.Mutex
		count int
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p.Wait(ctx) == nil {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 200/s for 0.5s is about 100 slots.
	if count < 60 || count > 130 {
		t.Errorf("granted %d slots in 500ms at 200/s, want about 100", count)
	}
}
