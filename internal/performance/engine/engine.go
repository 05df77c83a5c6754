// Package engine orchestrates a complete stress run.
//
// A run proceeds in fixed steps:
//   - validate the configuration
//   - take a best-effort health snapshot of the target
//   - issue one connectivity probe; a failed probe aborts the run
//   - start a fresh aggregator and anomaly detector, then run the worker pool
//     for the configured duration while publishing progress snapshots
//   - drain in-flight requests, take the second health snapshot and build
//     the report
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stressor/internal/performance"
	"github.com/wesleyorama2/stressor/internal/performance/anomaly"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/executor"
	"github.com/wesleyorama2/stressor/internal/performance/health"
	"github.com/wesleyorama2/stressor/internal/performance/metrics"
	"github.com/wesleyorama2/stressor/internal/performance/pacer"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

// DefaultProgressInterval is how often the progress callback fires.
const DefaultProgressInterval = 100 * time.Millisecond

var (
	// ErrProbeFailed is wrapped by the error returned when the connectivity
	// probe does not succeed.
	ErrProbeFailed = errors.New("connectivity probe failed")

	// ErrAlreadyRunning is returned when Run is called concurrently.
	ErrAlreadyRunning = errors.New("engine is already running")
)

// ProbeError describes a failed connectivity probe.
type ProbeError struct {
	Target    string
	Diagnosis *report.Diagnosis
}

func (e *ProbeError) Error() string {
	d := e.Diagnosis
	reason := d.Outcome.String()
	switch {
	case d.ErrorKind != "":
		reason = d.ErrorKind
	case d.StatusCode != 0:
		reason = fmt.Sprintf("HTTP %d", d.StatusCode)
	}
	return fmt.Sprintf("%s: cannot reach %s%s (%s after %.0fms)", ErrProbeFailed, e.Target, d.Endpoint, reason, d.LatencyMs)
}

func (e *ProbeError) Unwrap() error {
	return ErrProbeFailed
}

// Progress is a snapshot handed to the progress callback.
type Progress struct {
	metrics.Progress

	// Fraction is the elapsed share of the load window (0.0 to 1.0)
	Fraction float64

	// Duration is the configured load window
	Duration time.Duration

	ActiveWorkers int
	Workers       int

	// Done is set on the final snapshot, taken after the drain
	Done bool
}

// ProgressFunc receives progress snapshots. It is called from a single
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHTTPClient replaces the client built from the run configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithProgress registers a progress callback. A zero interval selects
// DefaultProgressInterval.
func WithProgress(fn ProgressFunc, interval time.Duration) Option {
	return func(e *Engine) {
		e.progressFn = fn
		if interval > 0 {
			e.progressInterval = interval
		}
	}
}

// WithSink adds a sample sink (for example a telemetry recorder) after the
// aggregator and the anomaly detector.
func WithSink(sink executor.Sink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sink)
	}
}

// WithHealthChecker enables the before/after health snapshots.
func WithHealthChecker(checker *health.Checker) Option {
	return func(e *Engine) {
		e.checker = checker
	}
}

// WithAnomalyHook is called for every anomaly as it is detected.
func WithAnomalyHook(fn func(anomaly.Record)) Option {
	return func(e *Engine) {
		e.onAnomaly = fn
	}
}

// Engine runs the stress test described by a RunConfig.
//
// # Thread Safety
//
// Run may only be in progress once at a time; Stop may be called from any
// goroutine.
type Engine struct {
	config *config.RunConfig
	logger *zap.Logger
	client *http.Client

	progressFn       ProgressFunc
	progressInterval time.Duration
	sinks            []executor.Sink
	checker          *health.Checker
	onAnomaly        func(anomaly.Record)

	mu      sync.Mutex
	running bool
	stopped bool
	pool    *executor.Pool
}

// New validates cfg and creates an engine. Defaults are not applied here:
// a zero concurrency or timeout is rejected. Zero anomaly thresholds are
// the exception and select the detector defaults. The configuration is copied;
// later changes by the caller do not affect the engine.
func New(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	cfg = cfg.Clone()
	cfg.Target = config.NormalizeTarget(cfg.Target)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:           cfg,
		logger:           zap.NewNop(),
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() *config.RunConfig {
	return e.config.Clone()
}

// Run executes the stress test and returns its report.
//
// If the connectivity probe fails the returned report is marked Aborted and
// the error wraps ErrProbeFailed. Cancelling ctx ends the load window early;
// the partial report is still returned.
func (e *Engine) Run(ctx context.Context) (*report.RunReport, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running, e.stopped = true, false
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running, e.pool = false, nil
		e.mu.Unlock()
	}()

	cfg := e.config
	duration := cfg.Duration.Std()
	requester := e.newRequester()

	log := e.logger.With(zap.String("target", cfg.Target))
	log.Info("starting run",
		zap.Strings("endpoints", cfg.Endpoints),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("duration", duration),
		zap.Duration("timeout", cfg.Timeout.Std()),
	)

	var before *health.Snapshot
	if e.checker != nil {
		snap := e.checker.Snapshot(ctx)
		before = &snap
		log.Debug("health snapshot taken", zap.Int("probes", len(snap.Values)), zap.Int("errors", len(snap.Errors)))
	}

	probeStart := time.Now()
	probe := requester.Do(ctx, -1, cfg.ProbeEndpoint())
	if !probe.Success() {
		diag := report.DiagnosisFromSample(probe)
		log.Error("connectivity probe failed",
			zap.String("endpoint", probe.Endpoint),
			zap.Stringer("outcome", probe.Outcome),
			zap.Int("status", probe.StatusCode),
			zap.String("error", probe.ErrorKind),
		)
		return report.Aborted(cfg, probeStart, diag), &ProbeError{Target: cfg.Target, Diagnosis: diag}
	}
	log.Info("connected", zap.Duration("latency", probe.Latency))

	// Probe data is discarded: the run starts with fresh state.
	start := time.Now()
	agg := metrics.NewAggregator(start, cfg.Endpoints, metrics.WithHorizon(duration))
	detector := anomaly.NewDetector(start, anomaly.Thresholds{
		SlowResponse: cfg.Anomaly.SlowResponse.Std(),
		FailureBurst: cfg.Anomaly.FailureBurst,
	}, e.notifyAnomaly(log))

	sinks := append([]executor.Sink{agg, detector}, e.sinks...)
	collector := executor.NewCollector(executor.DefaultCollectorBuffer, sinks...)

	pool, err := executor.NewPool(requester, collector, executor.Config{
		Concurrency: cfg.Concurrency,
		Endpoints:   cfg.Endpoints,
		Pacer:       pacer.New(cfg.MaxRate),
	})
	if err != nil {
		collector.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	e.mu.Lock()
	e.pool = pool
	if e.stopped {
		pool.Stop()
		log.Info("stopped before the load window")
	}
	e.mu.Unlock()

	stopProgress := e.startProgress(agg, pool, duration)

	runErr := pool.Run(ctx, duration)
	collector.Close()
	elapsed := time.Since(start)
	stopProgress()

	if ctx.Err() != nil {
		log.Warn("run interrupted", zap.Duration("elapsed", elapsed))
	}

	var after *health.Snapshot
	if e.checker != nil {
		snap := e.checker.Snapshot(context.WithoutCancel(ctx))
		after = &snap
	}

	stats := agg.Statistics()
	if err := stats.CheckInvariants(); err != nil {
		log.Error("statistics are inconsistent", zap.Error(err))
	}

	r := report.Build(report.Input{
		Config:                 cfg,
		StartedAt:              start,
		Elapsed:                elapsed,
		Statistics:             stats,
		Anomalies:              detector.Records(),
		AnomalyThresholds:      detector.Thresholds(),
		MaxConsecutiveFailures: detector.MaxConsecutiveFailures(),
		HealthBefore:           before,
		HealthAfter:            after,
	})

	log.Info("run finished",
		zap.String("id", r.ID),
		zap.Int64("requests", r.Total),
		zap.Float64("success_rate", r.SuccessRate),
		zap.Float64("throughput", r.Throughput),
		zap.Int("anomalies", len(r.Anomalies)),
		zap.Bool("passed", r.Passed),
	)

	if runErr != nil {
		return r, fmt.Errorf("worker pool failed: %w", runErr)
	}
	return r, nil
}

// Stop ends the load window early. In-flight requests still complete. A
// Stop during the health snapshot or the connectivity probe skips the load
// window entirely. Stop has no effect when no run is in progress.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.stopped = true
	if e.pool != nil {
		e.pool.Stop()
	}
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) newRequester() *performance.RequestExecutor {
	httpCfg := performance.DefaultHTTPClientConfig()
	httpCfg.Timeout = e.config.Timeout.Std()
	httpCfg.KeepAlive = e.config.KeepAlive
	httpCfg.MaxIdleConnsPerHost = max(httpCfg.MaxIdleConnsPerHost, e.config.Concurrency)

	var opts []performance.ExecutorOption
	if e.client != nil {
		opts = append(opts, performance.WithHTTPClient(e.client))
	}
	return performance.NewRequestExecutor(e.config.Target, httpCfg, opts...)
}

func (e *Engine) notifyAnomaly(log *zap.Logger) func(anomaly.Record) {
	return func(r anomaly.Record) {
		log.Warn("anomaly detected",
			zap.String("kind", string(r.Kind)),
			zap.Duration("at", r.At),
			zap.String("endpoint", r.Details.Endpoint),
			zap.Float64("latency_ms", r.Details.LatencyMs),
			zap.Int("consecutive_failures", r.Details.ConsecutiveFailures),
			zap.String("error", r.Details.ErrorKind),
		)
		if e.onAnomaly != nil {
			e.onAnomaly(r)
		}
	}
}

// startProgress publishes snapshots until the returned function is called,
// which also emits the final snapshot.
func (e *Engine) startProgress(agg *metrics.Aggregator, pool *executor.Pool, duration time.Duration) func() {
	if e.progressFn == nil {
		return func() {}
	}

	snapshot := func(done bool) Progress {
		ps := pool.GetStats()
		p := Progress{
			Progress:      agg.Progress(),
			Fraction:      pool.GetProgress(),
			Duration:      duration,
			ActiveWorkers: ps.ActiveWorkers,
			Workers:       ps.Workers,
			Done:          done,
		}
		if done {
			p.Fraction = 1
		}
		return p
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.progressFn(snapshot(false))
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
		e.progressFn(snapshot(true))
	}
}
