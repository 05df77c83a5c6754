// Package config provides run configuration parsing and validation.
package config

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/wesleyorama2/stressor/internal/performance/health"
)

// Defaults applied to unset fields.
const (
	DefaultDuration     = 10 * time.Second
	DefaultConcurrency  = 5
	DefaultTimeout      = 3 * time.Second
	DefaultSlowResponse = 500 * time.Millisecond
	DefaultFailureBurst = 3
)

// RunConfig is the configuration of one stress run.
//
// Example YAML:
//
//	target: 192.168.4.1
//	duration: 30s
//	concurrency: 8
//	timeout: 3s
//	endpoints:
//	  - /ping
//	  - /api/socket-status
//	anomaly:
//	  slowResponse: 500ms
//	  failureBurst: 3
//	thresholds:
//	  latency: ["p95 < 300ms"]
//	  failures: ["rate < 0.01"]
type RunConfig struct {
	// Target is the base address; a bare host gets http:// prepended
	Target string `json:"target" yaml:"target" mapstructure:"target" validate:"required"`

	// Endpoints are the paths rotated through by every worker
	Endpoints []string `json:"endpoints" yaml:"endpoints" mapstructure:"endpoints" validate:"required,min=1,dive,required,startswith=/"`

	// Concurrency is the number of workers
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"gt=0,lte=10000"`

	// Duration is how long requests are issued
	Duration Duration `json:"duration" yaml:"duration" mapstructure:"duration" validate:"gt=0"`

	// Timeout bounds each request
	Timeout Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Probe is the endpoint of the connectivity check (default: first endpoint)
	Probe string `json:"probe,omitempty" yaml:"probe,omitempty" mapstructure:"probe" validate:"omitempty,startswith=/"`

	// KeepAlive reuses connections instead of sending "Connection: close"
	KeepAlive bool `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty" mapstructure:"keep-alive"`

	// MaxRate caps requests per second across all workers (0: unlimited)
	MaxRate float64 `json:"maxRate,omitempty" yaml:"maxRate,omitempty" mapstructure:"max-rate" validate:"gte=0"`

	// Anomaly thresholds
	Anomaly AnomalyConfig `json:"anomaly" yaml:"anomaly" mapstructure:"anomaly"`

	// Health lists status endpoints snapshotted before and after the run
	Health []health.Probe `json:"health,omitempty" yaml:"health,omitempty" mapstructure:"health" validate:"omitempty,dive"`

	// Thresholds are pass/fail criteria evaluated on the report
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty" mapstructure:"thresholds" validate:"omitempty"`
}

// AnomalyConfig configures the anomaly detector.
type AnomalyConfig struct {
	// SlowResponse flags successful requests slower than this (0: DefaultSlowResponse)
	SlowResponse Duration `json:"slowResponse" yaml:"slowResponse" mapstructure:"slow-response" validate:"gte=0"`

	// FailureBurst flags this many consecutive failures (0: DefaultFailureBurst)
	FailureBurst int `json:"failureBurst" yaml:"failureBurst" mapstructure:"failure-burst" validate:"gte=0"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	// Latency thresholds, e.g. ["p95 < 500ms", "avg < 200ms"]
	Latency []string `json:"latency,omitempty" yaml:"latency,omitempty" mapstructure:"latency"`

	// Failures thresholds on the failure ratio, e.g. ["rate < 0.01"]
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty" mapstructure:"failures"`

	// Requests thresholds on volume, e.g. ["count > 1000", "rate > 50"]
	Requests []string `json:"requests,omitempty" yaml:"requests,omitempty" mapstructure:"requests"`
}

// Empty reports whether no threshold is configured.
func (t *ThresholdsConfig) Empty() bool {
	return t == nil || len(t.Latency)+len(t.Failures)+len(t.Requests) == 0
}

// Default returns a configuration with every default applied and no target.
func Default() *RunConfig {
	cfg := &RunConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *RunConfig) {
	if cfg.Duration == 0 {
		cfg.Duration = Duration(DefaultDuration)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}
	if cfg.Anomaly.SlowResponse == 0 {
		cfg.Anomaly.SlowResponse = Duration(DefaultSlowResponse)
	}
	if cfg.Anomaly.FailureBurst == 0 {
		cfg.Anomaly.FailureBurst = DefaultFailureBurst
	}
	if cfg.Target != "" {
		cfg.Target = NormalizeTarget(cfg.Target)
	}
}

// ProbeEndpoint returns the endpoint used for the connectivity check.
func (c *RunConfig) ProbeEndpoint() string {
	if c.Probe != "" {
		return c.Probe
	}
	if len(c.Endpoints) > 0 {
		return c.Endpoints[0]
	}
	return "/"
}

// Clone returns a deep copy.
func (c *RunConfig) Clone() *RunConfig {
	out := *c
	out.Endpoints = slices.Clone(c.Endpoints)
	out.Health = slices.Clone(c.Health)
	if c.Thresholds != nil {
		t := *c.Thresholds
		t.Latency = slices.Clone(c.Thresholds.Latency)
		t.Failures = slices.Clone(c.Thresholds.Failures)
		t.Requests = slices.Clone(c.Thresholds.Requests)
		out.Thresholds = &t
	}
	return &out
}

// NormalizeTarget prepends http:// to a bare host or IP and trims a
// trailing slash.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	return strings.TrimRight(target, "/")
}

// validTarget reports whether target is an absolute http(s) URL with a host.
func validTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
