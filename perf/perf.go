package perf

import (
	"context"

	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/engine"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

type (
	// Config describes one stress run.
	Config = config.RunConfig

	// Report is the result of a run.
	Report = report.RunReport

	// Progress is a live snapshot handed to the progress callback.
	Progress = engine.Progress

	// Option customizes a Runner.
	Option = engine.Option
)

// Runner options.
var (
	WithLogger        = engine.WithLogger
	WithHTTPClient    = engine.WithHTTPClient
	WithProgress      = engine.WithProgress
	WithSink          = engine.WithSink
	WithHealthChecker = engine.WithHealthChecker
	WithAnomalyHook   = engine.WithAnomalyHook
)

// ErrProbeFailed is wrapped by the error of a run whose connectivity probe
// failed. The accompanying report is marked Aborted.
var ErrProbeFailed = engine.ErrProbeFailed

// DefaultConfig returns a configuration with every default applied. Target
// and Endpoints still have to be set.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads and validates a YAML or JSON run configuration.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runner provides a high-level API for running stress tests.
//
// For programmatic test execution, create a Runner and call Run:
//
//	cfg, _ := perf.LoadConfig("run.yaml")
//	runner, _ := perf.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and creates a runner. The configuration is copied.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run executes the stress test and returns its report. Cancelling ctx ends
// the load window early and still returns the partial report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.engine.Run(ctx)
}

// Stop ends a running test early.
func (r *Runner) Stop() {
	r.engine.Stop()
}

// Config returns the effective configuration.
func (r *Runner) Config() *Config {
	return r.engine.Config()
}

// RunTest is a convenience function to create a runner and execute it.
func RunTest(ctx context.Context, cfg *Config, opts ...Option) (*Report, error) {
	runner, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}
