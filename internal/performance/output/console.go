// Package output renders run progress and the final report on a terminal.
package output

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/stressor/internal/performance/anomaly"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/engine"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

const (
	clearLine  = "\r\033[2K"
	ruleWidth  = 60
	barWidth   = 30
	histWidth  = 40
	maxListed  = 10
	nonTTYTick = time.Second

	progressFilled = "█"
	progressEmpty  = "░"
)

// palette holds the colors used by the console.
type palette struct {
	bold    *color.Color
	dim     *color.Color
	section *color.Color
	ok      *color.Color
	warn    *color.Color
	bad     *color.Color
	value   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
		section: color.New(color.FgCyan),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		value:   color.New(color.FgCyan, color.Bold),
	}
	for _, c := range []*color.Color{p.bold, p.dim, p.section, p.ok, p.warn, p.bad, p.value} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer   io.Writer
	Quiet    bool
	NoColor  bool
	ForceTTY bool
}

// Console prints the live progress line and the final summary.
//
// On a terminal the progress line is redrawn in place; otherwise one plain
// status line is written per second.
type Console struct {
	w      io.Writer
	isTTY  bool
	quiet  bool
	colors palette

	mu         sync.Mutex
	liveLine   bool
	lastStatus time.Time
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := !cfg.NoColor && isTTY && supportsColors()

	return &Console{
		w:      cfg.Writer,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
		colors: newPalette(useColors),
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run parameters.
func (c *Console) PrintHeader(cfg *config.RunConfig) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rule()
	c.println(c.colors.bold.Sprint("Stress Test"))
	c.rule()
	c.printf("  Target:      %s\n", c.colors.bold.Sprint(cfg.Target))
	c.printf("  Endpoints:   %s\n", strings.Join(cfg.Endpoints, ", "))
	c.printf("  Duration:    %s\n", cfg.Duration)
	c.printf("  Concurrency: %d workers\n", cfg.Concurrency)
	c.printf("  Timeout:     %s per request\n", cfg.Timeout)
	if cfg.MaxRate > 0 {
		c.printf("  Max rate:    %.1f req/s\n", cfg.MaxRate)
	}
	c.println("")
}

// Update renders a progress snapshot. It is meant to be passed to
// engine.WithProgress.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		fmt.Fprint(c.w, clearLine+c.progressLine(p))
		c.liveLine = true
		if p.Done {
			fmt.Fprintln(c.w)
			c.liveLine = false
		}
		return
	}

	if !p.Done && time.Since(c.lastStatus) < nonTTYTick {
		return
	}
	c.lastStatus = time.Now()
	c.println(c.statusLine(p))
}

func (c *Console) progressLine(p engine.Progress) string {
	elapsed := min(p.Elapsed, p.Duration)
	return fmt.Sprintf("%s %3.0f%% %s | %s req | %s | %s rps | p95 %s",
		c.colors.ok.Sprint(progressBar(p.Fraction, barWidth)),
		p.Fraction*100,
		c.colors.dim.Sprintf("%s/%s", elapsed.Round(100*time.Millisecond), p.Duration),
		c.colors.value.Sprint(report.FormatNumber(p.Total)),
		c.rateColor(p.SuccessRate()).Sprintf("%.1f%% ok", p.SuccessRate()),
		c.colors.value.Sprintf("%.0f", p.Throughput),
		formatLatency(p.Latency.P95),
	)
}

func (c *Console) statusLine(p engine.Progress) string {
	return fmt.Sprintf("[%s] Progress: %.0f%% | Workers: %d/%d | Reqs: %d | RPS: %.1f | Failed: %d (%.1f%%) | P95: %s",
		report.FormatDuration(p.Elapsed),
		p.Fraction*100,
		p.ActiveWorkers, p.Workers,
		p.Total,
		p.Throughput,
		p.Failure,
		100-p.SuccessRate(),
		formatLatency(p.Latency.P95),
	)
}

// PrintSummary prints the final report.
func (c *Console) PrintSummary(r *report.RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLine {
		fmt.Fprintln(c.w)
		c.liveLine = false
	}

	if c.quiet {
		switch {
		case r.Aborted:
			c.println(c.colors.bad.Sprint("ABORTED"))
		case r.Passed:
			c.println(c.colors.ok.Sprint("PASSED"))
		default:
			c.println(c.colors.bad.Sprint("FAILED"))
		}
		return
	}

	if r.Aborted {
		c.printAborted(r)
		return
	}

	c.println("")
	c.rule()
	c.println(c.colors.bold.Sprint("STRESS TEST RESULTS"))
	c.rule()

	c.printOverview(r)
	c.printLatency(r)
	c.printStatusCodes(r)
	c.printErrors(r)
	c.printEndpoints(r)
	c.printTimeline(r)
	c.printHistogram(r)
	c.printAnomalies(r)
	c.printHealth(r)
	c.printThresholds(r)
	c.printRating(r)
}

func (c *Console) printAborted(r *report.RunReport) {
	d := r.Diagnosis
	c.println("")
	c.printf("%s Cannot connect to %s\n", c.colors.bad.Sprint("✗"), c.colors.bold.Sprint(r.Target))
	if d == nil {
		return
	}
	c.printf("  Endpoint: %s\n", d.Endpoint)
	c.printf("  Outcome:  %s\n", d.Outcome)
	if d.StatusCode != 0 {
		c.printf("  Status:   %d\n", d.StatusCode)
	}
	if d.ErrorKind != "" {
		c.printf("  Error:    %s\n", c.colors.bad.Sprint(d.ErrorKind))
	}
	c.printf("  Latency:  %s\n", report.FormatMs(d.LatencyMs))
}

func (c *Console) printOverview(r *report.RunReport) {
	c.section("Summary")
	c.printf("  Total Requests:    %s\n", c.colors.bold.Sprint(report.FormatNumber(r.Total)))
	c.printf("  Throughput:        %s\n", c.colors.bold.Sprintf("%.1f req/s", r.Throughput))
	c.printf("  Success Rate:      %s\n", c.rateColor(r.SuccessRate).Sprintf("%.2f%%", r.SuccessRate))
	c.printf("  Total Duration:    %.2fs\n", r.Elapsed.Seconds())
	c.printf("  Received:          %s\n", report.FormatBytes(r.TotalBytes))

	c.section("Request Breakdown")
	c.printf("  %s    %s\n", c.colors.ok.Sprint("✓ Successful:"), report.FormatNumber(r.Success))
	c.printf("  %s        %s\n", c.colors.bad.Sprint("✗ Failed:"), report.FormatNumber(r.Failure))
	for _, row := range []struct {
		label string
		n     int64
	}{
		{"Timeouts", r.Outcomes.Timeout},
		{"Conn Errors", r.Outcomes.ConnectionError},
		{"HTTP Errors", r.Outcomes.HTTPError},
		{"Parse Errors", r.Outcomes.ParseError},
	} {
		if row.n > 0 {
			c.printf("    └─ %-13s %d\n", row.label+":", row.n)
		}
	}
}

func (c *Console) printLatency(r *report.RunReport) {
	c.section("Response Times")
	l := r.Latency
	if !l.Available {
		c.println("  n/a")
		return
	}
	row := func(label string, ms float64, note string) {
		c.printf("  %-9s %10s  %s\n", label+":", report.FormatMs(ms), note)
	}
	slow := ""
	if l.Max > 1000 {
		slow = c.colors.warn.Sprint("(slow!)")
	}
	elevated := ""
	if l.P95 > 200 {
		elevated = c.colors.warn.Sprint("(elevated)")
	}
	high := ""
	if l.P99 > 500 {
		high = c.colors.bad.Sprint("(high!)")
	}
	row("Min", l.Min, "")
	row("Max", l.Max, slow)
	row("Average", l.Mean, "")
	row("Std Dev", l.StdDev, "")
	row("Median", l.P50, "")
	row("p75", l.P75, "")
	row("p90", l.P90, "")
	row("p95", l.P95, elevated)
	row("p99", l.P99, high)
}

func (c *Console) printStatusCodes(r *report.RunReport) {
	if len(r.StatusCodes) == 0 {
		return
	}
	c.section("HTTP Status Codes")
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		n := r.StatusCodes[code]
		col := c.colors.bad
		switch {
		case code >= 200 && code < 300:
			col = c.colors.ok
		case code >= 400 && code < 500:
			col = c.colors.warn
		}
		c.printf("  %s: %8s (%s)\n", col.Sprint(code), report.FormatNumber(n), percent(n, r.Total))
	}
}

func (c *Console) printErrors(r *report.RunReport) {
	if len(r.ErrorKinds) == 0 {
		return
	}
	c.section("Errors")
	type kindCount struct {
		kind string
		n    int64
	}
	kinds := make([]kindCount, 0, len(r.ErrorKinds))
	for k, n := range r.ErrorKinds {
		kinds = append(kinds, kindCount{k, n})
	}
	slices.SortFunc(kinds, func(a, b kindCount) int {
		if a.n != b.n {
			return cmp.Compare(b.n, a.n)
		}
		return strings.Compare(a.kind, b.kind)
	})
	for _, k := range kinds {
		c.printf("  %s: %s (%s)\n", c.colors.bad.Sprint(k.kind), report.FormatNumber(k.n), percent(k.n, r.Total))
	}
}

func (c *Console) printEndpoints(r *report.RunReport) {
	if len(r.EndpointStats) == 0 {
		return
	}
	c.section("Per-Endpoint Statistics")
	c.println(c.colors.dim.Sprintf("  %-27s │ %8s │ %7s │ %8s │ %8s │ %8s", "Endpoint", "Requests", "Success", "Avg", "p95", "Max"))
	for _, e := range r.EndpointStats {
		c.printf("  %-27s │ %8s │ %s │ %8s │ %8s │ %8s\n",
			e.Endpoint,
			report.FormatNumber(e.Count),
			c.rateColor(e.SuccessRate).Sprintf("%6.0f%%", e.SuccessRate),
			report.FormatMs(e.Mean),
			report.FormatMs(e.P95),
			report.FormatMs(e.Max),
		)
	}
}

func (c *Console) printTimeline(r *report.RunReport) {
	if len(r.Timeline) == 0 {
		return
	}
	c.section("Timeline (per second)")
	c.println(c.colors.dim.Sprintf("  %6s │ %8s │ %7s │ %6s │ %8s │ %8s", "Second", "Requests", "Success", "Failed", "Avg Time", "Max Time"))
	for _, b := range r.Timeline {
		if b.Count == 0 {
			continue
		}
		rate := float64(b.Success) / float64(b.Count) * 100
		failed := fmt.Sprintf("%6s", report.FormatNumber(b.Failure))
		if b.Failure > 0 {
			failed = c.colors.bad.Sprint(failed)
		}
		c.printf("  %6d │ %8s │ %s │ %s │ %8s │ %8s\n",
			b.Second,
			report.FormatNumber(b.Count),
			c.rateColor(rate).Sprintf("%7s", report.FormatNumber(b.Success)),
			failed,
			report.FormatMs(b.AvgLatency()),
			report.FormatMs(b.Max),
		)
	}
}

func (c *Console) printHistogram(r *report.RunReport) {
	if len(r.Histogram) == 0 {
		return
	}
	c.section("Response Time Distribution")
	largest := 0
	for _, b := range r.Histogram {
		largest = max(largest, b.Count)
	}
	for _, b := range r.Histogram {
		width := 0
		if largest > 0 {
			width = b.Count * histWidth / largest
		}
		c.printf("  %8s - %-8s │%s %d\n",
			report.FormatMs(b.Lower), report.FormatMs(b.Upper),
			c.colors.section.Sprint(strings.Repeat("█", width)), b.Count)
	}
}

func (c *Console) printAnomalies(r *report.RunReport) {
	c.section("Anomaly Detection")
	c.printf("  Max consecutive failures: %d\n", r.MaxConsecutiveFailures)
	c.printf("  Slow responses (>%s): %d\n", r.AnomalyThresholds.SlowResponse, r.SlowResponses)

	if len(r.Anomalies) == 0 {
		c.printf("  %s\n", c.colors.ok.Sprint("✓ No anomalies detected"))
		return
	}
	c.printf("  %s\n", c.colors.warn.Sprintf("⚠ %d anomalies detected:", len(r.Anomalies)))

	byKind := map[anomaly.Kind][]anomaly.Record{}
	for _, rec := range r.Anomalies {
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}
	for _, kind := range []anomaly.Kind{anomaly.KindFailureBurst, anomaly.KindSlowResponse} {
		records := byKind[kind]
		if len(records) == 0 {
			continue
		}
		c.printf("    %s (%d)\n", c.colors.warn.Sprint(kind), len(records))
		for i, rec := range records {
			if i == maxListed {
				c.printf("      %s\n", c.colors.dim.Sprintf("... and %d more", len(records)-maxListed))
				break
			}
			c.printf("      %s\n", rec)
		}
	}
}

func (c *Console) printHealth(r *report.RunReport) {
	if r.Health == nil || len(r.Health.Deltas) == 0 {
		return
	}
	c.section("Server Health (Before → After)")
	for _, d := range r.Health.Deltas {
		line := fmt.Sprintf("  %s.%s: %g → %g (%+g)", d.Probe, d.Field, d.Before, d.After, d.Change)
		if d.Change != 0 && isErrorField(d.Field) {
			c.println(c.colors.warn.Sprint("⚠" + line))
			continue
		}
		c.println(line)
	}
}

// isErrorField reports whether an increase of the field is bad news.
func isErrorField(field string) bool {
	f := strings.ToLower(field)
	return strings.Contains(f, "error") || strings.Contains(f, "fail") || strings.Contains(f, "restart")
}

func (c *Console) printThresholds(r *report.RunReport) {
	if len(r.Thresholds) == 0 {
		return
	}
	c.section("Thresholds")
	for _, t := range r.Thresholds {
		mark := c.colors.ok.Sprint("✓")
		if !t.Passed {
			mark = c.colors.bad.Sprint("✗")
		}
		value := t.Value
		if value == "" {
			value = "n/a"
		}
		c.printf("  %s %s: %s (actual: %s)\n", mark, t.Group, t.Expression, value)
		if !t.Passed && t.Message != "" {
			c.printf("      %s\n", c.colors.dim.Sprint(t.Message))
		}
	}
}

func (c *Console) printRating(r *report.RunReport) {
	c.section("Performance Rating")
	col := c.colors.bad
	switch {
	case r.Rating.Stars >= 4:
		col = c.colors.ok
	case r.Rating.Stars >= 3:
		col = c.colors.warn
	}
	c.printf("  %s\n", col.Sprintf("%s %s", report.Stars(r.Rating.Stars), r.Rating.Label))
	if len(r.Rating.Notes) > 0 {
		c.printf("  %s\n", c.colors.dim.Sprint(strings.Join(r.Rating.Notes, " • ")))
	}
	c.println("")
}

func (c *Console) rateColor(rate float64) *color.Color {
	switch {
	case rate >= 95:
		return c.colors.ok
	case rate >= 80:
		return c.colors.warn
	default:
		return c.colors.bad
	}
}

func (c *Console) section(title string) {
	c.println("")
	c.println(c.colors.section.Sprintf("━━━ %s ━━━", title))
}

func (c *Console) rule() {
	c.println(c.colors.section.Sprint(strings.Repeat("━", ruleWidth)))
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.w, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.w, format, args...)
}

func progressBar(fraction float64, width int) string {
	fraction = min(1, max(0, fraction))
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func formatLatency(d time.Duration) string {
	return report.FormatMs(float64(d) / float64(time.Millisecond))
}

func percent(n, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
