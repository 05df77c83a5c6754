// Package metrics folds request samples into the run-scoped statistics model.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/stressor/internal/performance"
)

// AggregatorConfig contains configuration for the aggregator.
type AggregatorConfig struct {
	// BucketInterval is the width of one timeline bucket (default: 1s)
	BucketInterval time.Duration

	// Horizon is the planned run duration. When set, samples completing after
	// it (during the drain) are folded into the last in-window bucket.
	Horizon time.Duration

	// PublishInterval throttles live percentile publication (default: 100ms)
	PublishInterval time.Duration

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultAggregatorConfig returns the default configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BucketInterval:   time.Second,
		PublishInterval:  100 * time.Millisecond,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// Option customizes an Aggregator.
type Option func(*AggregatorConfig)

// WithHorizon bounds the timeline to the planned run duration.
func WithHorizon(d time.Duration) Option {
	return func(c *AggregatorConfig) {
		c.Horizon = d
	}
}

// WithPublishInterval overrides how often live percentiles are refreshed.
func WithPublishInterval(d time.Duration) Option {
	return func(c *AggregatorConfig) {
		c.PublishInterval = d
	}
}

// LatencyPercentiles are approximate live percentiles from the HDR histogram.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration
}

// Progress is a lock-free snapshot of the running counters.
type Progress struct {
	Elapsed    time.Duration
	Total      int64
	Success    int64
	Failure    int64
	Throughput float64
	Latency    LatencyPercentiles
}

// SuccessRate returns the success percentage of the snapshot.
func (p Progress) SuccessRate() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Success) / float64(p.Total) * 100
}

// Aggregator owns the RunStatistics of one run.
//
// Fold serializes every update behind a single mutex so that the global
// counters, the endpoint entry and the timeline bucket change together.
// The totals are mirrored into atomics and approximate percentiles are
// published through an atomic pointer, so Progress never waits on Fold.
//
// # Thread Safety
//
// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	stats RunStatistics

	// endpointIndex maps a path to its slot in stats.Endpoints. Configured
	// endpoints own the first slots in configuration order.
	endpointIndex map[string]int

	start   time.Time
	horizon int // last timeline index, -1 when unbounded
	config  AggregatorConfig

	// Live view for progress reporting
	liveHist    *hdrhistogram.Histogram
	lastPublish time.Time
	published   atomic.Pointer[LatencyPercentiles]

	total   atomic.Int64
	success atomic.Int64
	failure atomic.Int64
}

// NewAggregator creates an aggregator for a run that started at start and
// rotates through endpoints.
func NewAggregator(start time.Time, endpoints []string, opts ...Option) *Aggregator {
	config := DefaultAggregatorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.BucketInterval <= 0 {
		config.BucketInterval = time.Second
	}

	a := &Aggregator{
		stats:         newRunStatistics(),
		endpointIndex: make(map[string]int, len(endpoints)),
		start:         start,
		horizon:       -1,
		config:        config,
		liveHist:      hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
	}

	a.stats.Endpoints = make([]*EndpointStats, 0, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := a.endpointIndex[ep]; dup {
			continue
		}
		a.endpointIndex[ep] = len(a.stats.Endpoints)
		a.stats.Endpoints = append(a.stats.Endpoints, nil) // created on first sample
	}

	if config.Horizon > 0 {
		last := int((config.Horizon - 1) / config.BucketInterval)
		a.horizon = last
	}

	return a
}

// Start returns the run start time used for timeline indexing.
func (a *Aggregator) Start() time.Time {
	return a.start
}

// Record implements the collector sink interface.
func (a *Aggregator) Record(s performance.Sample) {
	a.Fold(s)
}

// Fold incorporates one sample into the statistics.
func (a *Aggregator) Fold(s performance.Sample) {
	ms := s.LatencyMs()
	completed := s.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st := &a.stats
	st.Total++
	if s.Success() {
		st.Success++
	} else {
		st.Failure++
	}
	st.Outcomes.add(s.Outcome)
	if s.HasStatus() {
		st.StatusCodes[s.StatusCode]++
	}
	if s.ErrorKind != "" {
		st.ErrorKinds[s.ErrorKind]++
	}
	st.TotalBytes += s.Bytes
	st.Latencies = append(st.Latencies, ms)

	a.endpoint(s.Endpoint).add(s, ms)
	a.bucket(completed).add(s, ms)

	a.recordLive(s.Latency, completed)

	a.total.Add(1)
	if s.Success() {
		a.success.Add(1)
	} else {
		a.failure.Add(1)
	}
}

// endpoint returns the entry for path, creating it lazily. Caller holds mu.
func (a *Aggregator) endpoint(path string) *EndpointStats {
	idx, ok := a.endpointIndex[path]
	if !ok {
		idx = len(a.stats.Endpoints)
		a.endpointIndex[path] = idx
		a.stats.Endpoints = append(a.stats.Endpoints, nil)
	}

	entry := a.stats.Endpoints[idx]
	if entry == nil {
		entry = &EndpointStats{Endpoint: path}
		a.stats.Endpoints[idx] = entry
	}
	return entry
}

// bucket returns the timeline bucket for t, growing the timeline without gaps.
// Caller holds mu.
func (a *Aggregator) bucket(t time.Time) *TimelineBucket {
	idx := 0
	if elapsed := t.Sub(a.start); elapsed > 0 {
		idx = int(elapsed / a.config.BucketInterval)
	}
	if a.horizon >= 0 && idx > a.horizon {
		idx = a.horizon
	}

	for len(a.stats.Timeline) <= idx {
		a.stats.Timeline = append(a.stats.Timeline, TimelineBucket{Second: len(a.stats.Timeline)})
	}
	return &a.stats.Timeline[idx]
}

// recordLive feeds the HDR histogram and republishes percentiles when the
// publish interval has passed. Caller holds mu.
func (a *Aggregator) recordLive(latency time.Duration, now time.Time) {
	micros := latency.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}
	_ = a.liveHist.RecordValue(micros)

	if a.published.Load() != nil && now.Sub(a.lastPublish) < a.config.PublishInterval {
		return
	}
	a.lastPublish = now
	a.published.Store(&LatencyPercentiles{
		P50: time.Duration(a.liveHist.ValueAtQuantile(50)) * time.Microsecond,
		P95: time.Duration(a.liveHist.ValueAtQuantile(95)) * time.Microsecond,
		P99: time.Duration(a.liveHist.ValueAtQuantile(99)) * time.Microsecond,
		Max: time.Duration(a.liveHist.Max()) * time.Microsecond,
	})
}

// Progress returns the running counters without touching the fold lock.
func (a *Aggregator) Progress() Progress {
	elapsed := time.Since(a.start)
	p := Progress{
		Elapsed: elapsed,
		Total:   a.total.Load(),
		Success: a.success.Load(),
		Failure: a.failure.Load(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.Throughput = float64(p.Total) / secs
	}
	if lat := a.published.Load(); lat != nil {
		p.Latency = *lat
	}
	return p
}

// Statistics returns a deep copy of the current statistics.
func (a *Aggregator) Statistics() *RunStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats.clone()
}
