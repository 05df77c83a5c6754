// Package performance provides the request-level building blocks of a stress run:
// the Sample produced by every attempt, its outcome classification and the
// executor that issues requests against the target.
package performance

import (
	"fmt"
	"time"
)

// Outcome classifies a completed request attempt.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response whose body was read completely.
	OutcomeSuccess Outcome = iota
	// OutcomeHTTPError is a response with a status outside the 2xx range.
	OutcomeHTTPError
	// OutcomeTimeout means no response arrived before the request deadline.
	OutcomeTimeout
	// OutcomeConnectionError is a transport fault before any response.
	OutcomeConnectionError
	// OutcomeParseError is a 2xx response whose body could not be read.
	OutcomeParseError
)

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeHTTPError,
	OutcomeTimeout,
	OutcomeConnectionError,
	OutcomeParseError,
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectionError:
		return "connection_error"
	case OutcomeParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, candidate := range Outcomes {
		if candidate.String() == string(b) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(b))
}

// Sample is the immutable result of one completed request attempt.
type Sample struct {
	WorkerID    int           `json:"workerId"`
	Endpoint    string        `json:"endpoint"`
	Latency     time.Duration `json:"latency"`
	Outcome     Outcome       `json:"outcome"`
	StatusCode  int           `json:"statusCode,omitempty"` // 0 when no response was received
	ErrorKind   string        `json:"errorKind,omitempty"`
	Bytes       int64         `json:"bytes"`
	CompletedAt time.Time     `json:"completedAt"`
}

// Success reports whether the sample counts as a successful request.
func (s Sample) Success() bool {
	return s.Outcome == OutcomeSuccess
}

// HasStatus reports whether a transport-level response was received.
func (s Sample) HasStatus() bool {
	return s.StatusCode != 0
}

// LatencyMs returns the latency in fractional milliseconds.
func (s Sample) LatencyMs() float64 {
	return float64(s.Latency) / float64(time.Millisecond)
}
