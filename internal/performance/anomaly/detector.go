// Package anomaly watches the sample stream for slow responses and bursts of
// consecutive failures.
package anomaly

import (
	"fmt"
	"math"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/wesleyorama2/stressor/internal/performance"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind identifies the type of an anomaly.
type Kind string

const (
	// KindSlowResponse is a successful request slower than the threshold.
	KindSlowResponse Kind = "SLOW_RESPONSE"
	// KindFailureBurst is a run of consecutive failures reaching the threshold.
	KindFailureBurst Kind = "FAILURE_BURST"
)

// Default thresholds.
const (
	DefaultSlowResponse = 500 * time.Millisecond
	DefaultFailureBurst = 3
)

// Thresholds configures when anomalies fire.
type Thresholds struct {
	// SlowResponse is the latency above which a successful request is flagged.
	SlowResponse time.Duration
	// FailureBurst is the consecutive-failure count that triggers a burst.
	FailureBurst int
}

type thresholdsJSON struct {
	SlowResponseMs float64 `json:"slowResponseMs"`
	FailureBurst   int     `json:"failureBurst"`
}

// MarshalJSON encodes the slow response threshold in milliseconds, like the
// other latencies of a report.
func (t Thresholds) MarshalJSON() ([]byte, error) {
	return json.Marshal(thresholdsJSON{
		SlowResponseMs: float64(t.SlowResponse) / float64(time.Millisecond),
		FailureBurst:   t.FailureBurst,
	})
}

func (t *Thresholds) UnmarshalJSON(data []byte) error {
	var raw thresholdsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.SlowResponse = time.Duration(math.Round(raw.SlowResponseMs * float64(time.Millisecond)))
	t.FailureBurst = raw.FailureBurst
	return nil
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowResponse: DefaultSlowResponse,
		FailureBurst: DefaultFailureBurst,
	}
}

// Details carries the measurement behind an anomaly.
type Details struct {
	Endpoint            string  `json:"endpoint"`
	LatencyMs           float64 `json:"latencyMs,omitempty"`
	ConsecutiveFailures int     `json:"consecutiveFailures,omitempty"`
	Threshold           float64 `json:"threshold"`
	ErrorKind           string  `json:"errorKind,omitempty"`
}

// Record is one entry of the anomaly log.
type Record struct {
	At      time.Duration `json:"at"` // offset from run start
	Kind    Kind          `json:"kind"`
	Details Details       `json:"details"`
}

func (r Record) String() string {
	switch r.Kind {
	case KindSlowResponse:
		return fmt.Sprintf("@%.2fs %s endpoint=%s latency=%.1fms threshold=%.0fms",
			r.At.Seconds(), r.Kind, r.Details.Endpoint, r.Details.LatencyMs, r.Details.Threshold)
	case KindFailureBurst:
		return fmt.Sprintf("@%.2fs %s endpoint=%s consecutive=%d error=%s",
			r.At.Seconds(), r.Kind, r.Details.Endpoint, r.Details.ConsecutiveFailures, r.Details.ErrorKind)
	default:
		return fmt.Sprintf("@%.2fs %s", r.At.Seconds(), r.Kind)
	}
}

// Detector is a stateful observer over a single logical sample stream.
// It is safe for concurrent use; observations are serialized.
type Detector struct {
	mu         sync.Mutex
	start      time.Time
	thresholds Thresholds
	notify     func(Record)

	consecutive    int
	maxConsecutive int
	log            []Record
}

// NewDetector creates a detector for a run that started at start. A zero
// threshold selects its default. notify, if not nil, is called for every
// fired record while the detector lock is held.
func NewDetector(start time.Time, thresholds Thresholds, notify func(Record)) *Detector {
	if thresholds.SlowResponse <= 0 {
		thresholds.SlowResponse = DefaultSlowResponse
	}
	if thresholds.FailureBurst <= 0 {
		thresholds.FailureBurst = DefaultFailureBurst
	}
	return &Detector{
		start:      start,
		thresholds: thresholds,
		notify:     notify,
	}
}

// Record implements the collector sink interface.
func (d *Detector) Record(s performance.Sample) {
	d.Observe(s)
}

// Observe feeds one sample and returns the anomalies it fired, if any.
func (d *Detector) Observe(s performance.Sample) []Record {
	at := d.offset(s.CompletedAt)

	d.mu.Lock()
	defer d.mu.Unlock()

	var fired []Record
	if s.Success() {
		d.consecutive = 0
		if s.Latency > d.thresholds.SlowResponse {
			fired = append(fired, Record{
				At:   at,
				Kind: KindSlowResponse,
				Details: Details{
					Endpoint:  s.Endpoint,
					LatencyMs: s.LatencyMs(),
					Threshold: float64(d.thresholds.SlowResponse) / float64(time.Millisecond),
				},
			})
		}
	} else {
		d.consecutive++
		d.maxConsecutive = max(d.maxConsecutive, d.consecutive)
		if d.consecutive == d.thresholds.FailureBurst {
			fired = append(fired, Record{
				At:   at,
				Kind: KindFailureBurst,
				Details: Details{
					Endpoint:            s.Endpoint,
					ConsecutiveFailures: d.consecutive,
					Threshold:           float64(d.thresholds.FailureBurst),
					ErrorKind:           failureLabel(s),
				},
			})
		}
	}

	for _, r := range fired {
		d.log = append(d.log, r)
		if d.notify != nil {
			d.notify(r)
		}
	}
	return fired
}

func (d *Detector) offset(t time.Time) time.Duration {
	if t.IsZero() {
		t = time.Now()
	}
	if at := t.Sub(d.start); at > 0 {
		return at
	}
	return 0
}

// failureLabel names what went wrong with a failed sample.
func failureLabel(s performance.Sample) string {
	switch {
	case s.ErrorKind != "":
		return s.ErrorKind
	case s.Outcome == performance.OutcomeParseError:
		return fmt.Sprintf("HTTP %d (body)", s.StatusCode)
	default:
		return fmt.Sprintf("HTTP %d", s.StatusCode)
	}
}

// Records returns a copy of the anomaly log in firing order.
func (d *Detector) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Record, len(d.log))
	copy(out, d.log)
	return out
}

// ConsecutiveFailures returns the current run of failures.
func (d *Detector) ConsecutiveFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecutive
}

// MaxConsecutiveFailures returns the longest run of failures seen so far.
func (d *Detector) MaxConsecutiveFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxConsecutive
}

// Thresholds returns the effective thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Count returns the number of recorded anomalies of the given kind.
func Count(records []Record, kind Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
