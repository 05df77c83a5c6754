package executor

import (
	"sync"
	"sync/atomic"

	"github.com/wesleyorama2/stressor/internal/performance"
)

// Sink consumes completed samples.
type Sink interface {
	Record(s performance.Sample)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(performance.Sample)

// Record calls f(s).
func (f SinkFunc) Record(s performance.Sample) {
	f(s)
}

// DefaultCollectorBuffer is the channel capacity used when none is given.
const DefaultCollectorBuffer = 1024

// Collector is the single owner of the run's sinks. Workers hand samples to
// Record, which only performs a channel send; one goroutine delivers every
// sample to every sink in registration order.
//
// Record must not be called after Close.
type Collector struct {
	samples chan performance.Sample
	sinks   []Sink
	done    chan struct{}
	once    sync.Once

	delivered atomic.Int64
}

// NewCollector starts a collector with the given buffer size.
func NewCollector(buffer int, sinks ...Sink) *Collector {
	if buffer <= 0 {
		buffer = DefaultCollectorBuffer
	}
	c := &Collector{
		samples: make(chan performance.Sample, buffer),
		sinks:   sinks,
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Collector) run() {
	defer close(c.done)
	for s := range c.samples {
		for _, sink := range c.sinks {
			sink.Record(s)
		}
		c.delivered.Add(1)
	}
}

// Record queues a sample for delivery.
func (c *Collector) Record(s performance.Sample) {
	c.samples <- s
}

// Close stops accepting samples and blocks until every queued sample has
// been delivered.
func (c *Collector) Close() {
	c.once.Do(func() {
		close(c.samples)
	})
	<-c.done
}

// Delivered returns the number of samples handed to the sinks so far.
func (c *Collector) Delivered() int64 {
	return c.delivered.Load()
}

// Pending returns the number of queued samples not yet delivered.
func (c *Collector) Pending() int {
	return len(c.samples)
}
