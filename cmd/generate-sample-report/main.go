// Command generate-sample-report renders an HTML report from a synthetic
// run, for previewing the report template without a live target.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/wesleyorama2/stressor/internal/performance"
	"github.com/wesleyorama2/stressor/internal/performance/anomaly"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/health"
	"github.com/wesleyorama2/stressor/internal/performance/metrics"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

func main() {
	outputPath := "sample-stress-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	r := createSampleReport(time.Now(), 42)
	if err := report.GenerateHTML(r, outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func sampleConfig() *config.RunConfig {
	cfg := config.Default()
	cfg.Target = "http://192.168.4.1"
	cfg.Endpoints = []string{"/ping", "/api/socket-status", "/api/timing"}
	cfg.Concurrency = 8
	cfg.Duration = config.Duration(20 * time.Second)
	cfg.Thresholds = &config.ThresholdsConfig{
		Latency:  []string{"p95 < 300ms", "avg < 100ms"},
		Failures: []string{"rate < 0.05"},
		Requests: []string{"rate > 30"},
	}
	return cfg
}

// createSampleReport simulates a run with a brief outage in the middle:
// steady traffic, a burst of refused connections and a few slow responses.
func createSampleReport(now time.Time, seed uint64) *report.RunReport {
	cfg := sampleConfig()
	rng := rand.New(rand.NewPCG(seed, seed))
	start := now.Add(-cfg.Duration.Std())

	agg := metrics.NewAggregator(start, cfg.Endpoints, metrics.WithHorizon(cfg.Duration.Std()))
	detector := anomaly.NewDetector(start, anomaly.DefaultThresholds(), nil)

	const perSecond = 45
	total := int(cfg.Duration.Std()/time.Second) * perSecond
	for i := range total {
		at := start.Add(time.Duration(i) * time.Second / perSecond)
		s := performance.Sample{
			WorkerID:    i % cfg.Concurrency,
			Endpoint:    cfg.Endpoints[i%len(cfg.Endpoints)],
			Latency:     time.Duration(15+rng.ExpFloat64()*25) * time.Millisecond,
			Outcome:     performance.OutcomeSuccess,
			StatusCode:  200,
			Bytes:       int64(200 + rng.IntN(800)),
			CompletedAt: at,
		}
		switch second := i / perSecond; {
		case second == 9 && i%perSecond < 6:
			s.Outcome = performance.OutcomeConnectionError
			s.StatusCode = 0
			s.ErrorKind = "ECONNREFUSED"
			s.Bytes = 0
			s.Latency = time.Duration(1+rng.IntN(3)) * time.Millisecond
		case rng.IntN(200) == 0:
			s.Outcome = performance.OutcomeHTTPError
			s.StatusCode = 503
		case rng.IntN(150) == 0:
			s.Latency = time.Duration(600+rng.IntN(900)) * time.Millisecond
		}
		agg.Fold(s)
		detector.Observe(s)
	}

	before := health.Snapshot{
		TakenAt: start,
		Values: map[string]map[string]float64{
			"sockets": {"requests_success": 1200, "requests_failed": 4, "server_restarts": 0},
			"timing":  {"uptime_s": 3600},
		},
	}
	after := health.Snapshot{
		TakenAt: now,
		Values: map[string]map[string]float64{
			"sockets": {"requests_success": 1200 + float64(total) - 6, "requests_failed": 10, "server_restarts": 1},
			"timing":  {"uptime_s": 3620},
		},
	}

	return report.Build(report.Input{
		Config:                 cfg,
		StartedAt:              start,
		Elapsed:                cfg.Duration.Std() + 40*time.Millisecond,
		Statistics:             agg.Statistics(),
		Anomalies:              detector.Records(),
		AnomalyThresholds:      detector.Thresholds(),
		MaxConsecutiveFailures: detector.MaxConsecutiveFailures(),
		HealthBefore:           &before,
		HealthAfter:            &after,
	})
}
