// Package perf is the library interface of the stress tester.
//
// A run hammers one HTTP target with a fixed pool of workers for a fixed
// duration and returns a report with latency percentiles, failure
// breakdowns, anomalies, a per-second timeline and a star rating.
//
// # Quick Start
//
//	cfg := perf.DefaultConfig()
//	cfg.Target = "192.168.4.1"
//	cfg.Endpoints = []string{"/ping", "/api/socket-status"}
//	cfg.Concurrency = 8
//
//	result, err := perf.RunTest(context.Background(), cfg)
//	if errors.Is(err, perf.ErrProbeFailed) {
//	    // target unreachable; result.Diagnosis says why
//	}
//	fmt.Printf("Requests: %d\n", result.Total)
//	fmt.Printf("P95: %.1fms\n", result.Latency.P95)
//	fmt.Printf("Rating: %s\n", result.Rating.Label)
//
// # Configuration Files
//
// Configurations can be loaded from YAML or JSON:
//
//	cfg, err := perf.LoadConfig("run.yaml")
//
// # Live Progress
//
// Pass WithProgress to receive snapshots while the run is in progress:
//
//	runner, _ := perf.NewRunner(cfg, perf.WithProgress(func(p perf.Progress) {
//	    fmt.Printf("\r%d requests, %.0f req/s", p.Total, p.Throughput)
//	}, time.Second))
//	result, _ := runner.Run(ctx)
package perf
