package config

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ThresholdGroup selects which report figures a threshold applies to.
type ThresholdGroup string

const (
	// GroupLatency compares latency statistics against durations.
	GroupLatency ThresholdGroup = "latency"
	// GroupFailures compares the failure ratio (0..1) or failure count.
	GroupFailures ThresholdGroup = "failures"
	// GroupRequests compares request count or throughput.
	GroupRequests ThresholdGroup = "requests"
)

var groupMetrics = map[ThresholdGroup][]string{
	GroupLatency:  {"min", "max", "avg", "med", "p50", "p75", "p90", "p95", "p99"},
	GroupFailures: {"rate", "count"},
	GroupRequests: {"rate", "count"},
}

var operators = []string{"<", "<=", ">", ">=", "==", "!="}

var thresholdRe = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// Threshold is a parsed expression such as "p95 < 500ms".
type Threshold struct {
	Group  ThresholdGroup
	Expr   string
	Metric string
	Op     string
	// Value is the right-hand side; latency values are in milliseconds.
	Value float64
}

// ParseThreshold parses an expression for the given group.
//
// Valid formats:
//   - "p95 < 500ms" (latency; the value must carry a unit)
//   - "rate < 0.01" (failures)
//   - "count > 1000" (requests)
func ParseThreshold(group ThresholdGroup, expr string) (Threshold, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Threshold{}, fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid expression format: %s", expr)
	}
	metric, op, raw := m[1], m[2], strings.TrimSpace(m[3])

	allowed, ok := groupMetrics[group]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown threshold group %q", group)
	}
	if !slices.Contains(allowed, metric) {
		return Threshold{}, fmt.Errorf("%s thresholds support %s, got %q", group, strings.Join(allowed, ", "), metric)
	}
	if !slices.Contains(operators, op) {
		return Threshold{}, fmt.Errorf("unknown operator %q (use %s)", op, strings.Join(operators, " "))
	}

	t := Threshold{Group: group, Expr: expr, Metric: metric, Op: op}
	if group == GroupLatency {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Threshold{}, fmt.Errorf("failed to parse threshold value: %w", err)
		}
		t.Value = float64(d) / float64(time.Millisecond)
		return t, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("failed to parse threshold value: %w", err)
	}
	t.Value = v
	return t, nil
}

// Compare applies the operator to actual and the threshold value.
func (t Threshold) Compare(actual float64) bool {
	switch t.Op {
	case "<":
		return actual < t.Value
	case "<=":
		return actual <= t.Value
	case ">":
		return actual > t.Value
	case ">=":
		return actual >= t.Value
	case "==":
		return actual == t.Value
	case "!=":
		return actual != t.Value
	default:
		return false
	}
}

// Parsed returns every threshold of the configuration in group order.
// Expressions that do not parse are skipped; Validate reports them.
func (t *ThresholdsConfig) Parsed() []Threshold {
	if t == nil {
		return nil
	}

	var out []Threshold
	add := func(group ThresholdGroup, exprs []string) {
		for _, expr := range exprs {
			if th, err := ParseThreshold(group, expr); err == nil {
				out = append(out, th)
			}
		}
	}
	add(GroupLatency, t.Latency)
	add(GroupFailures, t.Failures)
	add(GroupRequests, t.Requests)
	return out
}
