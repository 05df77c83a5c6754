// Package health takes best-effort snapshots of server-reported status
// endpoints before and after a run.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each probe request.
const DefaultTimeout = 2 * time.Second

// maxBody caps how much of a status document is read.
const maxBody = 1 << 20

// Probe describes one read-only status endpoint and the numeric fields to
// pull out of its JSON body.
type Probe struct {
	// Name labels the probe in reports
	Name string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`

	// Path is requested relative to the target base URL
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"required,startswith=/"`

	// Fields maps a label to a JSONPath expression such as "$.requests.failed"
	Fields map[string]string `json:"fields" yaml:"fields" mapstructure:"fields" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// DeviceProbes returns the status endpoints exposed by embedded device
// firmware: socket server counters, I2C and OLED error counters and the
// timing telemetry uptime.
func DeviceProbes() []Probe {
	return []Probe{
		{
			Name: "sockets",
			Path: "/api/socket-status",
			Fields: map[string]string{
				"requests_success": "$.requests.success",
				"requests_failed":  "$.requests.failed",
				"server_restarts":  "$.server_restarts",
			},
		},
		{
			Name:   "i2c",
			Path:   "/api/i2c-status",
			Fields: map[string]string{"errors": "$.errorCount"},
		},
		{
			Name:   "oled",
			Path:   "/api/oled-status",
			Fields: map[string]string{"errors": "$.errors"},
		},
		{
			Name:   "timing",
			Path:   "/api/timing",
			Fields: map[string]string{"uptime_s": "$.uptime_s"},
		},
	}
}

// Snapshot holds the values read from every probe at one point in time.
// Probes that failed are listed in Errors and absent from Values.
type Snapshot struct {
	TakenAt time.Time                     `json:"takenAt"`
	Values  map[string]map[string]float64 `json:"values"`
	Errors  map[string]string             `json:"errors,omitempty"`
}

// Value returns a field value and whether it was read.
func (s Snapshot) Value(probe, field string) (float64, bool) {
	fields, ok := s.Values[probe]
	if !ok {
		return 0, false
	}
	v, ok := fields[field]
	return v, ok
}

// Empty reports whether no probe produced any value.
func (s Snapshot) Empty() bool {
	return len(s.Values) == 0
}

// Delta is the before/after change of one field.
type Delta struct {
	Probe  string  `json:"probe"`
	Field  string  `json:"field"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Change float64 `json:"change"`
}

// Compare returns the deltas of every field present in both snapshots,
// ordered by probe and field name.
func Compare(before, after Snapshot) []Delta {
	var deltas []Delta
	for probe, fields := range after.Values {
		for field, a := range fields {
			b, ok := before.Value(probe, field)
			if !ok {
				continue
			}
			deltas = append(deltas, Delta{
				Probe:  probe,
				Field:  field,
				Before: b,
				After:  a,
				Change: a - b,
			})
		}
	}
	slices.SortFunc(deltas, func(x, y Delta) int {
		if c := strings.Compare(x.Probe, y.Probe); c != 0 {
			return c
		}
		return strings.Compare(x.Field, y.Field)
	})
	return deltas
}

// Option customizes a Checker.
type Option func(*Checker)

// WithHTTPClient sets the client used for probe requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithLogger sets the logger for probe failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// Checker fetches all probes of a target.
type Checker struct {
	baseURL string
	probes  []Probe
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewChecker creates a checker for the probes of baseURL.
func NewChecker(baseURL string, probes []Probe, opts ...Option) *Checker {
	c := &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		probes:  probes,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probes returns the configured probes.
func (c *Checker) Probes() []Probe {
	return c.probes
}

// Snapshot queries every probe concurrently. It never fails: unreachable or
// malformed probes are recorded in Snapshot.Errors.
func (c *Checker) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		TakenAt: time.Now(),
		Values:  make(map[string]map[string]float64),
		Errors:  make(map[string]string),
	}
	if len(c.probes) == 0 {
		return snap
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, probe := range c.probes {
		g.Go(func() error {
			values, err := c.fetch(gctx, probe)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				snap.Errors[probe.Name] = err.Error()
				c.logger.Debug("health probe failed", zap.String("probe", probe.Name), zap.Error(err))
				return nil
			}
			snap.Values[probe.Name] = values
			return nil
		})
	}
	_ = g.Wait()

	return snap
}

func (c *Checker) fetch(ctx context.Context, probe Probe) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+probe.Path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	return Extract(body, probe.Fields), nil
}

// Extract reads numeric fields from a JSON document. Fields that are missing
// or not numeric are skipped.
func Extract(doc []byte, fields map[string]string) map[string]float64 {
	values := make(map[string]float64, len(fields))
	for label, path := range fields {
		res := gjson.GetBytes(doc, ToGjsonPath(path))
		switch res.Type {
		case gjson.Number:
			values[label] = res.Float()
		case gjson.True, gjson.False:
			if res.Bool() {
				values[label] = 1
			} else {
				values[label] = 0
			}
		}
	}
	return values
}
