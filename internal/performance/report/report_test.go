package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stressor/internal/performance"
	"github.com/wesleyorama2/stressor/internal/performance/anomaly"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/health"
	"github.com/wesleyorama2/stressor/internal/performance/metrics"
	"github.com/wesleyorama2/stressor/internal/performance/stats"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.RunConfig {
	cfg := &config.RunConfig{
		Target:    "http://device",
		Endpoints: []string{"/a", "/b"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// fold replays samples through a real aggregator and returns its copy.
func fold(t *testing.T, endpoints []string, samples []performance.Sample) *metrics.RunStatistics {
	t.Helper()
	agg := metrics.NewAggregator(epoch, endpoints)
	for _, s := range samples {
		agg.Fold(s)
	}
	st := agg.Statistics()
	require.NoError(t, st.CheckInvariants())
	return st
}

func sample(endpoint string, ms int, outcome performance.Outcome, at time.Duration) performance.Sample {
	s := performance.Sample{
		Endpoint:    endpoint,
		Latency:     time.Duration(ms) * time.Millisecond,
		Outcome:     outcome,
		CompletedAt: epoch.Add(at),
	}
	switch outcome {
	case performance.OutcomeSuccess:
		s.StatusCode = 200
		s.Bytes = 10
	case performance.OutcomeHTTPError:
		s.StatusCode = 503
	case performance.OutcomeConnectionError:
		s.ErrorKind = performance.ErrorKindRefused
	}
	return s
}

func TestBuild(t *testing.T) {
	samples := []performance.Sample{
		sample("/a", 10, performance.OutcomeSuccess, 100*time.Millisecond),
		sample("/b", 20, performance.OutcomeSuccess, 200*time.Millisecond),
		sample("/a", 30, performance.OutcomeSuccess, 1100*time.Millisecond),
		sample("/a", 40, performance.OutcomeHTTPError, 1200*time.Millisecond),
		sample("/b", 5, performance.OutcomeConnectionError, 1300*time.Millisecond),
	}
	st := fold(t, []string{"/a", "/b"}, samples)

	r := Build(Input{
		Config:                 testConfig(),
		StartedAt:              epoch,
		Elapsed:                2 * time.Second,
		Statistics:             st,
		MaxConsecutiveFailures: 2,
		Anomalies: []anomaly.Record{
			{At: time.Second, Kind: anomaly.KindSlowResponse},
		},
	})

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "http://device", r.Target)
	assert.Equal(t, int64(5), r.Total)
	assert.Equal(t, int64(3), r.Success)
	assert.Equal(t, int64(2), r.Failure)
	assert.InDelta(t, 60.0, r.SuccessRate, 1e-9)
	assert.InDelta(t, 2.5, r.Throughput, 1e-9)
	assert.Equal(t, int64(30), r.TotalBytes)
	assert.InDelta(t, 0.4, r.FailureRatio(), 1e-9)

	require.True(t, r.Latency.Available)
	assert.Equal(t, 5.0, r.Latency.Min)
	assert.Equal(t, 40.0, r.Latency.Max)
	assert.Equal(t, 20.0, r.Latency.P50)

	var histTotal int
	for _, b := range r.Histogram {
		histTotal += b.Count
	}
	assert.Equal(t, 5, histTotal)

	assert.Equal(t, int64(1), r.StatusCodes[503])
	assert.Equal(t, int64(3), r.StatusCodes[200])
	assert.Equal(t, int64(1), r.ErrorKinds[performance.ErrorKindRefused])

	require.Len(t, r.EndpointStats, 2)
	assert.Equal(t, "/a", r.EndpointStats[0].Endpoint, "busiest endpoint first")
	assert.Equal(t, int64(3), r.EndpointStats[0].Count)
	assert.InDelta(t, 200.0/3, r.EndpointStats[0].SuccessRate, 1e-9)
	assert.InDelta(t, 80.0/3, r.EndpointStats[0].Mean, 1e-9)
	assert.Equal(t, 40.0, r.EndpointStats[0].P95)

	assert.Len(t, r.Timeline, 2)
	assert.Equal(t, 1, r.SlowResponses)
	assert.Equal(t, 0, r.FailureBursts)
	assert.True(t, r.Passed, "no thresholds configured")
	assert.False(t, r.Failed())
}

func TestBuildEmpty(t *testing.T) {
	r := Build(Input{Config: testConfig(), StartedAt: epoch, Statistics: fold(t, nil, nil)})

	assert.Equal(t, int64(0), r.Total)
	assert.Equal(t, 0.0, r.SuccessRate)
	assert.Equal(t, 0.0, r.Throughput)
	assert.False(t, r.Latency.Available)
	assert.Nil(t, r.Histogram)
	assert.Empty(t, r.EndpointStats)
	assert.NotNil(t, r.StatusCodes)
}

func TestBuildHealth(t *testing.T) {
	before := health.Snapshot{Values: map[string]map[string]float64{"sockets": {"restarts": 1}}}
	after := health.Snapshot{Values: map[string]map[string]float64{"sockets": {"restarts": 3}}}

	r := Build(Input{
		Config:       testConfig(),
		Statistics:   fold(t, nil, nil),
		HealthBefore: &before,
		HealthAfter:  &after,
	})
	require.NotNil(t, r.Health)
	require.Len(t, r.Health.Deltas, 1)
	assert.Equal(t, 2.0, r.Health.Deltas[0].Change)

	r = Build(Input{Config: testConfig(), Statistics: fold(t, nil, nil), HealthBefore: &before})
	assert.Nil(t, r.Health)
}

func TestAborted(t *testing.T) {
	d := DiagnosisFromSample(performance.Sample{
		Endpoint:  "/a",
		Outcome:   performance.OutcomeConnectionError,
		ErrorKind: performance.ErrorKindRefused,
		Latency:   3 * time.Millisecond,
	})
	r := Aborted(testConfig(), epoch, d)

	assert.True(t, r.Aborted)
	assert.True(t, r.Failed())
	assert.Equal(t, "/a", r.Diagnosis.Endpoint)
	assert.Equal(t, performance.ErrorKindRefused, r.Diagnosis.ErrorKind)
	assert.Equal(t, 3.0, r.Diagnosis.LatencyMs)
	assert.Equal(t, int64(0), r.Total)
}

func TestEvaluate(t *testing.T) {
	samples := make([]performance.Sample, 0, 100)
	for i := 1; i <= 100; i++ {
		outcome := performance.OutcomeSuccess
		if i%50 == 0 {
			outcome = performance.OutcomeHTTPError
		}
		samples = append(samples, sample("/a", i, outcome, time.Duration(i)*10*time.Millisecond))
	}

	cfg := testConfig()
	cfg.Thresholds = &config.ThresholdsConfig{
		Latency:  []string{"p95 < 200ms", "p99 < 50ms"},
		Failures: []string{"rate < 0.05", "count <= 1"},
		Requests: []string{"count >= 100", "rate > 1000", "bogus"},
	}

	r := Build(Input{Config: cfg, Elapsed: time.Second, Statistics: fold(t, []string{"/a"}, samples)})
	require.Len(t, r.Thresholds, 7)

	byExpr := map[string]ThresholdResult{}
	for _, tr := range r.Thresholds {
		byExpr[tr.Expression] = tr
	}

	assert.True(t, byExpr["p95 < 200ms"].Passed)
	assert.Equal(t, "95.00ms", byExpr["p95 < 200ms"].Value)
	assert.False(t, byExpr["p99 < 50ms"].Passed)
	assert.Contains(t, byExpr["p99 < 50ms"].Message, "p99 is 99.00ms")
	assert.True(t, byExpr["rate < 0.05"].Passed)
	assert.Equal(t, "0.0200", byExpr["rate < 0.05"].Value)
	assert.False(t, byExpr["count <= 1"].Passed)
	assert.True(t, byExpr["count >= 100"].Passed)
	assert.False(t, byExpr["rate > 1000"].Passed)
	assert.False(t, byExpr["bogus"].Passed)
	assert.Contains(t, byExpr["bogus"].Message, "failed to parse expression")

	assert.False(t, r.Passed)
	assert.True(t, r.Failed())
}

func TestEvaluateLatencyWithoutSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds = &config.ThresholdsConfig{Latency: []string{"p95 < 1s"}}

	r := Build(Input{Config: cfg, Statistics: fold(t, nil, nil)})
	require.Len(t, r.Thresholds, 1)
	assert.False(t, r.Thresholds[0].Passed)
	assert.Equal(t, "p95 has no samples", r.Thresholds[0].Message)
}

func withP95(ms float64) stats.Summary {
	return stats.Summary{Available: true, P95: ms}
}

func TestRate(t *testing.T) {
	tests := []struct {
		name   string
		report RunReport
		stars  int
		label  string
		notes  []string
	}{
		{
			name: "excellent",
			report: RunReport{
				SuccessRate: 100, Throughput: 80,
				Latency:                withP95(40),
				MaxConsecutiveFailures: 0,
			},
			stars: 5, label: "Excellent",
			notes: []string{"Excellent reliability", "High throughput", "Fast p95", "Stable"},
		},
		{
			name: "fair",
			report: RunReport{
				SuccessRate: 95, Throughput: 20,
				Latency:                withP95(200),
				MaxConsecutiveFailures: 3,
			},
			stars: 3, label: "Fair",
			notes: []string{},
		},
		{
			name: "critical",
			report: RunReport{
				SuccessRate: 50, Throughput: 5,
				Latency:                withP95(900),
				MaxConsecutiveFailures: 12,
			},
			stars: 1, label: "Critical",
			notes: []string{"Poor reliability", "Low throughput", "Slow p95", "Unstable bursts"},
		},
		{
			name: "good",
			report: RunReport{
				SuccessRate: 98.5, Throughput: 35,
				Latency:                withP95(250),
				MaxConsecutiveFailures: 5,
			},
			stars: 4, label: "Good",
			notes: []string{"Good reliability", "Good throughput", "Unstable bursts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rate(&tt.report)
			assert.Equal(t, tt.stars, got.Stars)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.notes, got.Notes)
		})
	}

	aborted := Rate(&RunReport{Aborted: true})
	assert.Equal(t, 1, aborted.Stars)
}

func TestJSONRoundTrip(t *testing.T) {
	st := fold(t, []string{"/a"}, []performance.Sample{
		sample("/a", 12, performance.OutcomeSuccess, 0),
		sample("/a", 3, performance.OutcomeConnectionError, 10*time.Millisecond),
	})
	r := Build(Input{
		Config:            testConfig(),
		StartedAt:         epoch,
		Elapsed:           time.Second,
		Statistics:        st,
		AnomalyThresholds: anomaly.DefaultThresholds(),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))
	assert.Contains(t, buf.String(), `"connectionError": 1`)
	assert.Contains(t, buf.String(), `"slowResponseMs": 500`)
	assert.Contains(t, buf.String(), `"failureBurst": 3`)
	assert.Contains(t, buf.String(), `"ECONNREFUSED": 1`)

	back, err := Unmarshal(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, r.ID, back.ID)
	assert.Equal(t, r.Total, back.Total)
	assert.Equal(t, r.StatusCodes, back.StatusCodes)
	assert.Equal(t, r.Latency, back.Latency)
	assert.Equal(t, r.Rating, back.Rating)
	assert.Equal(t, r.AnomalyThresholds, back.AnomalyThresholds)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, SaveJSON(path, r))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"))
}

func TestGenerateHTML(t *testing.T) {
	st := fold(t, []string{"/a"}, []performance.Sample{
		sample("/a", 12, performance.OutcomeSuccess, 0),
		sample("/a", 700, performance.OutcomeSuccess, 10*time.Millisecond),
		sample("/a", 3, performance.OutcomeHTTPError, 20*time.Millisecond),
	})
	cfg := testConfig()
	cfg.Thresholds = &config.ThresholdsConfig{Latency: []string{"p95 < 100ms"}}
	r := Build(Input{
		Config:     cfg,
		StartedAt:  epoch,
		Elapsed:    time.Second,
		Statistics: st,
		Anomalies: []anomaly.Record{{
			At:      10 * time.Millisecond,
			Kind:    anomaly.KindSlowResponse,
			Details: anomaly.Details{Endpoint: "/a", LatencyMs: 700, Threshold: 500},
		}},
	})

	html, err := GenerateHTMLString(r)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>http://device - Stress Test Report</title>")
	assert.Contains(t, html, "SLOW_RESPONSE")
	assert.Contains(t, html, "p95 &lt; 100ms")
	assert.Contains(t, html, "Failed")
	assert.Contains(t, html, "503")

	aborted, err := GenerateHTMLString(Aborted(cfg, epoch, &Diagnosis{Endpoint: "/a", Outcome: performance.OutcomeTimeout, ErrorKind: "Timeout"}))
	require.NoError(t, err)
	assert.Contains(t, aborted, "Probe Diagnosis")
	assert.NotContains(t, aborted, "Response Times")

	_, err = GenerateHTMLString(nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, GenerateHTML(r, path))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "-1,000", FormatNumber(-1000))
	assert.Equal(t, "999", FormatNumber(999))

	assert.Equal(t, "500µs", FormatMs(0.5))
	assert.Equal(t, "2.50ms", FormatMs(2.5))
	assert.Equal(t, "123ms", FormatMs(123.4))
	assert.Equal(t, "1.50s", FormatMs(1500))

	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "12 B", FormatBytes(12))

	assert.Equal(t, "500ms", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "1m 30s", FormatDuration(90*time.Second))
	assert.Equal(t, "2m", FormatDuration(2*time.Minute))

	assert.Equal(t, "★★★☆☆", Stars(3))
}
