// Package report turns the raw statistics of a run into the final RunReport.
//
// The report builder is the only place where order statistics are computed:
// the aggregator hands over a copy of its data once, after the drain, and
// everything here is derived from that copy.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/wesleyorama2/stressor/internal/performance"
	"github.com/wesleyorama2/stressor/internal/performance/anomaly"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/health"
	"github.com/wesleyorama2/stressor/internal/performance/metrics"
	"github.com/wesleyorama2/stressor/internal/performance/stats"
)

// RunReport is the complete result of one run.
type RunReport struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	Endpoints   []string  `json:"endpoints"`
	Concurrency int       `json:"concurrency"`
	StartedAt   time.Time `json:"startedAt"`

	// Duration is the configured load window, Elapsed includes the drain.
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`

	Total       int64                 `json:"total"`
	Success     int64                 `json:"success"`
	Failure     int64                 `json:"failure"`
	SuccessRate float64               `json:"successRate"` // percent
	Throughput  float64               `json:"throughput"`  // requests per second
	TotalBytes  int64                 `json:"totalBytes"`
	Outcomes    metrics.OutcomeCounts `json:"outcomes"`

	Latency     stats.Summary    `json:"latency"` // milliseconds
	Histogram   []stats.Bucket   `json:"histogram"`
	StatusCodes map[int]int64    `json:"statusCodes"`
	ErrorKinds  map[string]int64 `json:"errorKinds"`

	EndpointStats []EndpointReport         `json:"endpointStats"`
	Timeline      []metrics.TimelineBucket `json:"timeline"`

	Anomalies              []anomaly.Record   `json:"anomalies"`
	AnomalyThresholds      anomaly.Thresholds `json:"anomalyThresholds"`
	SlowResponses          int                `json:"slowResponses"`
	FailureBursts          int                `json:"failureBursts"`
	MaxConsecutiveFailures int                `json:"maxConsecutiveFailures"`

	Health *HealthReport `json:"health,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Rating     Rating            `json:"rating"`

	Aborted   bool       `json:"aborted"`
	Diagnosis *Diagnosis `json:"diagnosis,omitempty"`
}

// EndpointReport is the per-endpoint breakdown. Latencies are in ms.
type EndpointReport struct {
	Endpoint    string  `json:"endpoint"`
	Count       int64   `json:"count"`
	Success     int64   `json:"success"`
	Failure     int64   `json:"failure"`
	SuccessRate float64 `json:"successRate"`
	Mean        float64 `json:"mean"`
	P95         float64 `json:"p95"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// HealthReport compares the status snapshots taken around the run.
type HealthReport struct {
	Before health.Snapshot `json:"before"`
	After  health.Snapshot `json:"after"`
	Deltas []health.Delta  `json:"deltas"`
}

// Diagnosis describes the failed connectivity probe of an aborted run.
type Diagnosis struct {
	Endpoint   string              `json:"endpoint"`
	Outcome    performance.Outcome `json:"outcome"`
	StatusCode int                 `json:"statusCode,omitempty"`
	ErrorKind  string              `json:"errorKind,omitempty"`
	LatencyMs  float64             `json:"latencyMs"`
}

// DiagnosisFromSample describes a failed probe sample.
func DiagnosisFromSample(s performance.Sample) *Diagnosis {
	return &Diagnosis{
		Endpoint:   s.Endpoint,
		Outcome:    s.Outcome,
		StatusCode: s.StatusCode,
		ErrorKind:  s.ErrorKind,
		LatencyMs:  s.LatencyMs(),
	}
}

// Input carries everything Build needs. Statistics must be a copy that is no
// longer written to.
type Input struct {
	Config     *config.RunConfig
	StartedAt  time.Time
	Elapsed    time.Duration
	Statistics *metrics.RunStatistics

	Anomalies              []anomaly.Record
	AnomalyThresholds      anomaly.Thresholds
	MaxConsecutiveFailures int

	// HealthBefore and HealthAfter are optional.
	HealthBefore *health.Snapshot
	HealthAfter  *health.Snapshot
}

// NewID returns a sortable unique run identifier.
func NewID() string {
	return ksuid.New().String()
}

// Build computes the report of a completed run.
func Build(in Input) *RunReport {
	st := in.Statistics
	if st == nil {
		st = &metrics.RunStatistics{}
	}

	r := newReport(in.Config, in.StartedAt)
	r.Elapsed = in.Elapsed
	r.Total = st.Total
	r.Success = st.Success
	r.Failure = st.Failure
	r.SuccessRate = st.SuccessRate()
	r.TotalBytes = st.TotalBytes
	r.Outcomes = st.Outcomes
	if in.Elapsed > 0 {
		r.Throughput = float64(st.Total) / in.Elapsed.Seconds()
	}

	r.Latency = stats.Summarize(st.Latencies)
	r.Histogram = stats.Histogram(st.Latencies, stats.DefaultBuckets)
	if st.StatusCodes != nil {
		r.StatusCodes = st.StatusCodes
	}
	if st.ErrorKinds != nil {
		r.ErrorKinds = st.ErrorKinds
	}
	r.EndpointStats = endpointReports(st.Endpoints)
	r.Timeline = st.Timeline

	r.Anomalies = in.Anomalies
	r.AnomalyThresholds = in.AnomalyThresholds
	r.SlowResponses = anomaly.Count(in.Anomalies, anomaly.KindSlowResponse)
	r.FailureBursts = anomaly.Count(in.Anomalies, anomaly.KindFailureBurst)
	r.MaxConsecutiveFailures = in.MaxConsecutiveFailures

	if in.HealthBefore != nil && in.HealthAfter != nil {
		r.Health = &HealthReport{
			Before: *in.HealthBefore,
			After:  *in.HealthAfter,
			Deltas: health.Compare(*in.HealthBefore, *in.HealthAfter),
		}
	}

	if in.Config != nil {
		r.Thresholds = Evaluate(in.Config.Thresholds, r)
	}
	r.Passed = allPassed(r.Thresholds)
	r.Rating = Rate(r)
	return r
}

// Aborted returns the report of a run that stopped at the connectivity probe.
func Aborted(cfg *config.RunConfig, startedAt time.Time, diagnosis *Diagnosis) *RunReport {
	r := newReport(cfg, startedAt)
	r.Aborted = true
	r.Diagnosis = diagnosis
	return r
}

func newReport(cfg *config.RunConfig, startedAt time.Time) *RunReport {
	r := &RunReport{
		ID:          NewID(),
		StartedAt:   startedAt,
		StatusCodes: map[int]int64{},
		ErrorKinds:  map[string]int64{},
	}
	if cfg != nil {
		r.Target = cfg.Target
		r.Endpoints = slices.Clone(cfg.Endpoints)
		r.Concurrency = cfg.Concurrency
		r.Duration = cfg.Duration.Std()
	}
	return r
}

// endpointReports derives the per-endpoint figures, busiest endpoint first.
func endpointReports(entries []*metrics.EndpointStats) []EndpointReport {
	out := make([]EndpointReport, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Count == 0 {
			continue
		}
		sorted := stats.Sorted(e.Latencies)
		p95, _ := stats.Percentile(sorted, 95)
		out = append(out, EndpointReport{
			Endpoint:    e.Endpoint,
			Count:       e.Count,
			Success:     e.Success,
			Failure:     e.Failure,
			SuccessRate: float64(e.Success) / float64(e.Count) * 100,
			Mean:        stats.Mean(e.Latencies),
			P95:         p95,
			Min:         e.Min,
			Max:         e.Max,
		})
	}
	slices.SortStableFunc(out, func(a, b EndpointReport) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}

// FailureRatio returns failures over total as a 0..1 ratio.
func (r *RunReport) FailureRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Failure) / float64(r.Total)
}

// Failed reports whether the run should be treated as unsuccessful by a
// caller: it was aborted or a threshold did not hold.
func (r *RunReport) Failed() bool {
	return r.Aborted || !r.Passed
}
