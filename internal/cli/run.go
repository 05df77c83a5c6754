package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stressor/internal/history"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/engine"
	"github.com/wesleyorama2/stressor/internal/performance/health"
	"github.com/wesleyorama2/stressor/internal/performance/output"
	"github.com/wesleyorama2/stressor/internal/performance/report"
	"github.com/wesleyorama2/stressor/internal/performance/telemetry"
)

// ErrThresholdsFailed is returned when the run completed but at least one
// threshold did not pass.
var ErrThresholdsFailed = errors.New("thresholds failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Run a stress test against a target",
		Long: `Run a fixed-duration stress test with a pool of concurrent workers.

Quick mode:
  stressor run 192.168.4.1 --duration 30s --concurrency 8 \
    --endpoints /ping,/api/socket-status

Config file mode:
  stressor run --config run.yaml

Every flag can also be set through the environment, e.g. STRESSOR_CONCURRENCY=8.
Flags override the environment, which overrides the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStress,
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func addRunFlags(fs *pflag.FlagSet) {
	// Run parameters
	fs.StringP("config", "c", "", "Run configuration file (YAML or JSON)")
	fs.String("target", "", "Target host, IP or base URL (alternative to the positional argument)")
	fs.StringSliceP("endpoints", "e", nil, "Comma separated endpoint paths (default: /)")
	fs.IntP("concurrency", "n", config.DefaultConcurrency, "Number of concurrent workers")
	fs.StringP("duration", "d", config.DefaultDuration.String(), "Test duration (e.g. 30s, or bare seconds)")
	fs.StringP("timeout", "t", config.DefaultTimeout.String(), "Per-request timeout")
	fs.String("probe", "", "Endpoint for the connectivity check (default: first endpoint)")
	fs.Bool("keep-alive", false, "Reuse connections instead of sending Connection: close")
	fs.Float64("max-rate", 0, "Cap on requests per second across all workers (0: unlimited)")

	// Anomaly detection
	fs.String("slow-threshold", config.DefaultSlowResponse.String(), "Latency above which a successful response is an anomaly")
	fs.Int("failure-burst", config.DefaultFailureBurst, "Consecutive failures that make an anomaly")

	// Collaborators
	fs.Bool("device-probes", false, "Snapshot the device status endpoints before and after the run")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	fs.String("history-db", "", "Record the report in this SQLite database")

	// Reporting
	fs.Bool("json", false, "Output the report as JSON")
	fs.Bool("html", false, "Generate an HTML report")
	fs.StringP("output", "o", "", "Output file for the report")
	fs.BoolP("quiet", "q", false, "Disable live progress output, show only the verdict")
	fs.Bool("no-color", false, "Disable colored output")
}

func runStress(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := buildRunConfig(v, args)
	if err != nil {
		return err
	}

	outputPath := v.GetString("output")
	outputIsJSON := v.GetBool("json") || strings.HasSuffix(strings.ToLower(outputPath), ".json")
	outputIsHTML := v.GetBool("html") || strings.HasSuffix(strings.ToLower(outputPath), ".html")

	// JSON on stdout keeps the console on stderr.
	consoleOut := cmd.OutOrStdout()
	if outputIsJSON && outputPath == "" {
		consoleOut = cmd.ErrOrStderr()
	}
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  consoleOut,
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
	})

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithProgress(console.Update, progressInterval(console)),
	}
	if len(cfg.Health) > 0 {
		opts = append(opts, engine.WithHealthChecker(health.NewChecker(cfg.Target, cfg.Health, health.WithLogger(logger))))
	}

	if addr := v.GetString("metrics-addr"); addr != "" {
		rec := telemetry.NewRecorder(map[string]string{"target": cfg.Target})
		stop, err := serveMetrics(addr, rec.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		opts = append(opts, engine.WithSink(rec))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	console.PrintHeader(eng.Config())
	result, runErr := eng.Run(ctx)
	if result == nil {
		return runErr
	}
	console.PrintSummary(result)

	if err := writeReports(cmd, result, outputPath, outputIsJSON, outputIsHTML); err != nil {
		logger.Error("failed to write report", zap.Error(err))
	}

	if dbPath := v.GetString("history-db"); dbPath != "" {
		if err := recordHistory(context.WithoutCancel(ctx), dbPath, result); err != nil {
			logger.Error("failed to record run history", zap.Error(err))
		} else {
			logger.Info("run recorded", zap.String("id", result.ID), zap.String("db", dbPath))
		}
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// buildRunConfig layers the config file, the environment, the flags and the
// positional target, in increasing precedence.
func buildRunConfig(v *viper.Viper, args []string) (*config.RunConfig, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("target") {
		cfg.Target = v.GetString("target")
	}
	if len(args) > 0 {
		cfg.Target = args[0]
	}
	if v.IsSet("endpoints") {
		cfg.Endpoints = splitList(v.GetStringSlice("endpoints"))
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"/"}
	}
	if v.IsSet("concurrency") {
		cfg.Concurrency = v.GetInt("concurrency")
	}
	if v.IsSet("probe") {
		cfg.Probe = v.GetString("probe")
	}
	if v.IsSet("keep-alive") {
		cfg.KeepAlive = v.GetBool("keep-alive")
	}
	if v.IsSet("max-rate") {
		cfg.MaxRate = v.GetFloat64("max-rate")
	}
	if v.IsSet("failure-burst") {
		cfg.Anomaly.FailureBurst = v.GetInt("failure-burst")
	}

	durations := []struct {
		key string
		dst *config.Duration
	}{
		{"duration", &cfg.Duration},
		{"timeout", &cfg.Timeout},
		{"slow-threshold", &cfg.Anomaly.SlowResponse},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			continue
		}
		parsed, err := config.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", d.key, err)
		}
		*d.dst = config.Duration(parsed)
	}

	if v.GetBool("device-probes") {
		cfg.Health = append(cfg.Health, health.DeviceProbes()...)
	}
	cfg.Target = config.NormalizeTarget(cfg.Target)
	return cfg, nil
}

// splitList accepts both repeated values and comma separated lists, which
// is how endpoints arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func progressInterval(c *output.Console) time.Duration {
	if c.IsTTY() {
		return engine.DefaultProgressInterval
	}
	return time.Second
}

// serveMetrics exposes handler on addr until the returned function is called.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func writeReports(cmd *cobra.Command, r *report.RunReport, outputPath string, isJSON, isHTML bool) error {
	out := cmd.OutOrStdout()
	switch {
	case isJSON:
		if outputPath == "" {
			return report.WriteJSON(out, r)
		}
		if err := report.SaveJSON(outputPath, r); err != nil {
			return err
		}
		fmt.Fprintf(out, "Results written to: %s\n", outputPath)
	case isHTML:
		if outputPath == "" {
			outputPath = defaultHTMLPath(r.Target, time.Now())
		}
		return writeHTML(out, r, outputPath)
	case outputPath != "":
		// No extension: both formats.
		if err := writeHTML(out, r, outputPath+".html"); err != nil {
			return err
		}
		if err := report.SaveJSON(outputPath+".json", r); err != nil {
			return err
		}
		fmt.Fprintf(out, "Results written to: %s\n", outputPath+".json")
	}
	return nil
}

func writeHTML(out io.Writer, r *report.RunReport, path string) error {
	if err := report.GenerateHTML(r, path); err != nil {
		return fmt.Errorf("failed to generate HTML report: %w", err)
	}
	fmt.Fprintf(out, "HTML report saved to: %s\n", path)
	return nil
}

// defaultHTMLPath derives a report file name from the target.
func defaultHTMLPath(target string, now time.Time) string {
	name := target
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(strings.ToLower(name))
	name = strings.Trim(name, "-")
	return fmt.Sprintf("stress-report-%s-%s.html", name, now.Format("20060102-150405"))
}

func recordHistory(ctx context.Context, path string, r *report.RunReport) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, r)
}
