package report

import (
	"fmt"
	"strconv"

	"github.com/wesleyorama2/stressor/internal/performance/config"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Group      config.ThresholdGroup `json:"group"`
	Expression string                `json:"expression"`
	Passed     bool                  `json:"passed"`
	Value      string                `json:"value"`
	Message    string                `json:"message,omitempty"`
}

// Evaluate checks every configured threshold against the report. An
// expression that does not parse is reported as failed.
func Evaluate(cfg *config.ThresholdsConfig, r *RunReport) []ThresholdResult {
	if cfg.Empty() {
		return nil
	}

	var results []ThresholdResult
	eval := func(group config.ThresholdGroup, exprs []string) {
		for _, expr := range exprs {
			results = append(results, evaluateOne(group, expr, r))
		}
	}
	eval(config.GroupLatency, cfg.Latency)
	eval(config.GroupFailures, cfg.Failures)
	eval(config.GroupRequests, cfg.Requests)
	return results
}

func evaluateOne(group config.ThresholdGroup, expr string, r *RunReport) ThresholdResult {
	result := ThresholdResult{Group: group, Expression: expr}

	th, err := config.ParseThreshold(group, expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	actual, ok := actualValue(th, r)
	if !ok {
		result.Message = fmt.Sprintf("%s has no samples", th.Metric)
		return result
	}

	result.Value = formatActual(group, th.Metric, actual)
	result.Passed = th.Compare(actual)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", th.Metric, result.Value, th.Op, formatActual(group, th.Metric, th.Value))
	}
	return result
}

// actualValue looks up the report figure a threshold refers to. Latency
// figures are unavailable for a run without samples.
func actualValue(th config.Threshold, r *RunReport) (float64, bool) {
	switch th.Group {
	case config.GroupLatency:
		if !r.Latency.Available {
			return 0, false
		}
		switch th.Metric {
		case "min":
			return r.Latency.Min, true
		case "max":
			return r.Latency.Max, true
		case "avg":
			return r.Latency.Mean, true
		case "med", "p50":
			return r.Latency.P50, true
		case "p75":
			return r.Latency.P75, true
		case "p90":
			return r.Latency.P90, true
		case "p95":
			return r.Latency.P95, true
		case "p99":
			return r.Latency.P99, true
		}
	case config.GroupFailures:
		switch th.Metric {
		case "rate":
			return r.FailureRatio(), true
		case "count":
			return float64(r.Failure), true
		}
	case config.GroupRequests:
		switch th.Metric {
		case "rate":
			return r.Throughput, true
		case "count":
			return float64(r.Total), true
		}
	}
	return 0, false
}

func formatActual(group config.ThresholdGroup, metric string, v float64) string {
	switch {
	case group == config.GroupLatency:
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	case metric == "count":
		return strconv.FormatFloat(v, 'f', 0, 64)
	case group == config.GroupFailures:
		return strconv.FormatFloat(v, 'f', 4, 64)
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

func allPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
