// Package executor drives the worker pool of a stress run.
package executor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/stressor/internal/performance"
	"github.com/wesleyorama2/stressor/internal/performance/pacer"
)

// Requester issues one request and reports it as a sample.
type Requester interface {
	Do(ctx context.Context, workerID int, endpoint string) performance.Sample
}

// Config contains configuration for the pool.
type Config struct {
	// Concurrency is the number of workers
	Concurrency int

	// Endpoints are visited round-robin by every worker
	Endpoints []string

	// Pacer optionally caps the combined request rate (nil: unpaced)
	Pacer *pacer.Pacer
}

// Validate checks the pool configuration.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return &ValidationError{Field: "concurrency", Message: "concurrency must be > 0"}
	}
	if len(c.Endpoints) == 0 {
		return &ValidationError{Field: "endpoints", Message: "at least one endpoint is required"}
	}
	return nil
}

// ValidationError represents a pool configuration error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ErrAlreadyRunning is returned when Run is called on a busy pool.
var ErrAlreadyRunning = errors.New("pool is already running")

// Stats contains pool statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`
	ActiveWorkers int           `json:"activeWorkers"`
	Workers       int           `json:"workers"`
	Iterations    int64         `json:"iterations"`
}

// Pool runs a fixed number of workers for a fixed duration.
//
// Every worker loops over the endpoint list starting at its own offset, so
// load is spread across endpoints from the first iteration. A worker checks
// the stop signal only between iterations; a request in flight when the
// duration ends is allowed to finish and its sample is still delivered.
type Pool struct {
	config    Config
	requester Requester
	sink      Sink

	// State
	mu         sync.Mutex
	startTime  time.Time
	duration   time.Duration
	cancelFunc context.CancelFunc
	stopped    bool // Stop arrived before Run

	activeWorkers atomic.Int32
	iterations    atomic.Int64
	running       atomic.Bool
}

// NewPool creates a pool that sends every sample to sink.
func NewPool(requester Requester, sink Sink, config Config) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		config:    config,
		requester: requester,
		sink:      sink,
	}, nil
}

// Run starts the workers and blocks until the duration has elapsed (or ctx
// is done) and every worker has drained its in-flight request.
func (p *Pool) Run(ctx context.Context, duration time.Duration) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	p.mu.Lock()
	p.startTime = time.Now()
	p.duration = duration
	p.cancelFunc = cancel
	if p.stopped {
		p.stopped = false
		cancel()
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancelFunc = nil
		p.mu.Unlock()
	}()

	var g errgroup.Group
	for i := 0; i < p.config.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			p.runWorker(runCtx, workerID)
			return nil
		})
	}

	return g.Wait()
}

// runWorker loops until the stop signal is observed.
func (p *Pool) runWorker(ctx context.Context, id int) {
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)

	endpoints := p.config.Endpoints
	next := id % len(endpoints)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.config.Pacer.Wait(ctx); err != nil {
			return
		}

		sample := p.requester.Do(ctx, id, endpoints[next])
		p.sink.Record(sample)
		p.iterations.Add(1)

		next = (next + 1) % len(endpoints)

		runtime.Gosched()
	}
}

// Stop ends the run early. Workers still drain their in-flight request.
// A Stop that arrives before Run makes the next Run return at once.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelFunc == nil {
		p.stopped = true
		return
	}
	p.cancelFunc()
}

// Running reports whether Run is in progress.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// GetProgress returns current progress (0.0 to 1.0).
func (p *Pool) GetProgress() float64 {
	p.mu.Lock()
	start, duration := p.startTime, p.duration
	p.mu.Unlock()

	if start.IsZero() || duration <= 0 {
		return 0
	}
	if !p.running.Load() {
		return 1
	}
	return min(float64(time.Since(start))/float64(duration), 1)
}

// GetStats returns pool statistics.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	start, duration := p.startTime, p.duration
	p.mu.Unlock()

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	return Stats{
		StartTime:     start,
		Elapsed:       elapsed,
		TotalDuration: duration,
		ActiveWorkers: int(p.activeWorkers.Load()),
		Workers:       p.config.Concurrency,
		Iterations:    p.iterations.Load(),
	}
}
