package metrics

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/wesleyorama2/stressor/internal/performance"
)

// ErrInvariant is returned by CheckInvariants when the aggregate is inconsistent.
var ErrInvariant = errors.New("statistics invariant violated")

// OutcomeCounts holds one counter per outcome kind.
type OutcomeCounts struct {
	Success         int64 `json:"success"`
	HTTPError       int64 `json:"httpError"`
	Timeout         int64 `json:"timeout"`
	ConnectionError int64 `json:"connectionError"`
	ParseError      int64 `json:"parseError"`
}

func (c *OutcomeCounts) add(o performance.Outcome) {
	switch o {
	case performance.OutcomeSuccess:
		c.Success++
	case performance.OutcomeHTTPError:
		c.HTTPError++
	case performance.OutcomeTimeout:
		c.Timeout++
	case performance.OutcomeConnectionError:
		c.ConnectionError++
	case performance.OutcomeParseError:
		c.ParseError++
	}
}

// Get returns the counter for o.
func (c OutcomeCounts) Get(o performance.Outcome) int64 {
	switch o {
	case performance.OutcomeSuccess:
		return c.Success
	case performance.OutcomeHTTPError:
		return c.HTTPError
	case performance.OutcomeTimeout:
		return c.Timeout
	case performance.OutcomeConnectionError:
		return c.ConnectionError
	case performance.OutcomeParseError:
		return c.ParseError
	default:
		return 0
	}
}

// Sum returns the total across all outcome kinds.
func (c OutcomeCounts) Sum() int64 {
	return c.Success + c.HTTPError + c.Timeout + c.ConnectionError + c.ParseError
}

// EndpointStats accumulates the samples of one endpoint.
type EndpointStats struct {
	Endpoint  string    `json:"endpoint"`
	Count     int64     `json:"count"`
	Success   int64     `json:"success"`
	Failure   int64     `json:"failure"`
	Latencies []float64 `json:"-"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
}

func (e *EndpointStats) add(s performance.Sample, ms float64) {
	if e.Count == 0 || ms < e.Min {
		e.Min = ms
	}
	if e.Count == 0 || ms > e.Max {
		e.Max = ms
	}
	e.Count++
	if s.Success() {
		e.Success++
	} else {
		e.Failure++
	}
	e.Latencies = append(e.Latencies, ms)
}

// TimelineBucket covers one second of the run, indexed from the run start.
type TimelineBucket struct {
	Second       int     `json:"second"`
	Count        int64   `json:"count"`
	Success      int64   `json:"success"`
	Failure      int64   `json:"failure"`
	TotalLatency float64 `json:"totalLatency"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
}

func (b *TimelineBucket) add(s performance.Sample, ms float64) {
	if b.Count == 0 || ms < b.Min {
		b.Min = ms
	}
	if b.Count == 0 || ms > b.Max {
		b.Max = ms
	}
	b.Count++
	if s.Success() {
		b.Success++
	} else {
		b.Failure++
	}
	b.TotalLatency += ms
}

// AvgLatency returns the mean latency of the bucket in milliseconds.
func (b TimelineBucket) AvgLatency() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.TotalLatency / float64(b.Count)
}

// RunStatistics is the raw aggregate of one run. Latencies are in
// milliseconds, in completion order.
type RunStatistics struct {
	Total       int64            `json:"total"`
	Success     int64            `json:"success"`
	Failure     int64            `json:"failure"`
	Outcomes    OutcomeCounts    `json:"outcomes"`
	StatusCodes map[int]int64    `json:"statusCodes"`
	ErrorKinds  map[string]int64 `json:"errorKinds"`
	TotalBytes  int64            `json:"totalBytes"`
	Latencies   []float64        `json:"-"`
	Endpoints   []*EndpointStats `json:"endpoints"`
	Timeline    []TimelineBucket `json:"timeline"`
}

func newRunStatistics() RunStatistics {
	return RunStatistics{
		StatusCodes: make(map[int]int64),
		ErrorKinds:  make(map[string]int64),
	}
}

// CheckInvariants verifies that the global counters, the endpoint entries and
// the timeline agree with each other.
func (s *RunStatistics) CheckInvariants() error {
	if s.Total != s.Success+s.Failure {
		return fmt.Errorf("%w: total %d != success %d + failure %d", ErrInvariant, s.Total, s.Success, s.Failure)
	}
	if sum := s.Outcomes.Sum(); sum != s.Total {
		return fmt.Errorf("%w: outcome counts sum to %d, total is %d", ErrInvariant, sum, s.Total)
	}
	if int64(len(s.Latencies)) != s.Total {
		return fmt.Errorf("%w: %d latencies recorded, total is %d", ErrInvariant, len(s.Latencies), s.Total)
	}

	var endpoints int64
	for _, e := range s.Endpoints {
		if e == nil {
			continue
		}
		if e.Count != e.Success+e.Failure {
			return fmt.Errorf("%w: endpoint %s count %d != %d + %d", ErrInvariant, e.Endpoint, e.Count, e.Success, e.Failure)
		}
		endpoints += e.Count
	}
	if endpoints != s.Total {
		return fmt.Errorf("%w: endpoint counts sum to %d, total is %d", ErrInvariant, endpoints, s.Total)
	}

	var timeline int64
	for i, b := range s.Timeline {
		if b.Second != i {
			return fmt.Errorf("%w: timeline bucket %d has index %d", ErrInvariant, i, b.Second)
		}
		timeline += b.Count
	}
	if timeline != s.Total {
		return fmt.Errorf("%w: timeline counts sum to %d, total is %d", ErrInvariant, timeline, s.Total)
	}
	return nil
}

// SuccessRate returns the success percentage, or 0 with no samples.
func (s *RunStatistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// Endpoint returns the entry for path, or nil if no sample targeted it.
func (s *RunStatistics) Endpoint(path string) *EndpointStats {
	for _, e := range s.Endpoints {
		if e != nil && e.Endpoint == path {
			return e
		}
	}
	return nil
}

func (s *RunStatistics) clone() *RunStatistics {
	out := *s
	out.StatusCodes = maps.Clone(s.StatusCodes)
	out.ErrorKinds = maps.Clone(s.ErrorKinds)
	out.Latencies = slices.Clone(s.Latencies)
	out.Timeline = slices.Clone(s.Timeline)
	out.Endpoints = make([]*EndpointStats, 0, len(s.Endpoints))
	for _, e := range s.Endpoints {
		if e == nil {
			continue
		}
		cp := *e
		cp.Latencies = slices.Clone(e.Latencies)
		out.Endpoints = append(out.Endpoints, &cp)
	}
	return &out
}
