package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stressor/internal/devicesim"
	"github.com/wesleyorama2/stressor/internal/history"
	"github.com/wesleyorama2/stressor/internal/performance/config"
	"github.com/wesleyorama2/stressor/internal/performance/engine"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if args == nil {
		args = []string{}
	}
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func parseRunFlags(t *testing.T, args ...string) *config.RunConfig {
	t.Helper()
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags(args))
	v, err := newViper(cmd)
	require.NoError(t, err)
	cfg, err := buildRunConfig(v, cmd.Flags().Args())
	require.NoError(t, err)
	return cfg
}

func TestBuildRunConfigDefaults(t *testing.T) {
	cfg := parseRunFlags(t, "192.168.4.1")

	assert.Equal(t, "http://192.168.4.1", cfg.Target)
	assert.Equal(t, []string{"/"}, cfg.Endpoints)
	assert.Equal(t, config.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, config.DefaultDuration, cfg.Duration.Std())
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout.Std())
	assert.Empty(t, cfg.Health)
}

func TestBuildRunConfigFlags(t *testing.T) {
	cfg := parseRunFlags(t,
		"--target", "example.com",
		"-e", "/ping,/api/status", "-e", "/health",
		"-n", "8",
		"-d", "30",
		"-t", "500ms",
		"--max-rate", "25",
		"--keep-alive",
		"--slow-threshold", "1s",
		"--failure-burst", "5",
		"--probe", "/ping",
		"--device-probes",
	)

	assert.Equal(t, "http://example.com", cfg.Target)
	assert.Equal(t, []string{"/ping", "/api/status", "/health"}, cfg.Endpoints)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Duration.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout.Std())
	assert.Equal(t, 25.0, cfg.MaxRate)
	assert.True(t, cfg.KeepAlive)
	assert.Equal(t, time.Second, cfg.Anomaly.SlowResponse.Std())
	assert.Equal(t, 5, cfg.Anomaly.FailureBurst)
	assert.Equal(t, "/ping", cfg.Probe)
	assert.NotEmpty(t, cfg.Health)
}

func TestBuildRunConfigEnvironment(t *testing.T) {
	t.Setenv("STRESSOR_TARGET", "10.0.0.1")
	t.Setenv("STRESSOR_ENDPOINTS", "/a,/b")
	t.Setenv("STRESSOR_CONCURRENCY", "3")
	t.Setenv("STRESSOR_MAX_RATE", "12.5")

	cfg := parseRunFlags(t, "-n", "9")

	assert.Equal(t, "http://10.0.0.1", cfg.Target)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Endpoints)
	assert.Equal(t, 9, cfg.Concurrency, "flags win over the environment")
	assert.Equal(t, 12.5, cfg.MaxRate)
}

func TestBuildRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target: 192.168.4.1
duration: 20s
concurrency: 6
endpoints: [/ping, /api/socket-status]
`), 0o644))

	cfg := parseRunFlags(t, "-c", path, "-n", "2", "other.local")

	assert.Equal(t, "http://other.local", cfg.Target, "positional target wins")
	assert.Equal(t, []string{"/ping", "/api/socket-status"}, cfg.Endpoints)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.Duration.Std())
}

func TestBuildRunConfigInvalidDuration(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-d", "soon"}))
	v, err := newViper(cmd)
	require.NoError(t, err)

	_, err = buildRunConfig(v, nil)
	assert.ErrorContains(t, err, "invalid --duration")
}

func TestRunCommandJSON(t *testing.T) {
	srv := okServer(t)

	stdout, stderr, err := execute(t, "run", srv.URL,
		"-d", "300ms", "-n", "2", "-q", "--json", "--log-level", "none")
	require.NoError(t, err)

	r, err := report.Unmarshal([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, srv.URL, r.Target)
	assert.Positive(t, r.Total)
	assert.Equal(t, r.Total, r.Success)
	assert.True(t, r.Passed)
	assert.Contains(t, stderr, "PASSED")
}

func TestRunCommandThresholdsFail(t *testing.T) {
	srv := okServer(t)
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
duration: 200ms
concurrency: 1
endpoints: [/]
thresholds:
  requests: ["count > 1000000"]
`), 0o644))

	_, _, err := execute(t, "run", srv.URL, "-c", path, "-q", "--log-level", "none")
	assert.ErrorIs(t, err, ErrThresholdsFailed)
}

func TestRunCommandProbeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	stdout, _, err := execute(t, "run", addr, "-d", "1s", "--no-color", "--log-level", "none")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProbeFailed)
	assert.Contains(t, stdout, "Cannot connect to http://"+addr)
}

func TestRunCommandRejectsInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "run", "localhost", "-n", "0", "--log-level", "none")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestRunCommandWritesReports(t *testing.T) {
	srv := okServer(t)
	dir := t.TempDir()
	base := filepath.Join(dir, "result")

	stdout, _, err := execute(t, "run", srv.URL,
		"-d", "200ms", "-n", "1", "-q", "-o", base, "--log-level", "none")
	require.NoError(t, err)

	assert.FileExists(t, base+".html")
	assert.FileExists(t, base+".json")
	assert.Contains(t, stdout, "HTML report saved to: "+base+".html")
}

func TestRunCommandRecordsHistory(t *testing.T) {
	srv := okServer(t)
	db := filepath.Join(t.TempDir(), "history.db")

	_, _, err := execute(t, "run", srv.URL, "-d", "200ms", "-n", "1", "-q",
		"--history-db", db, "--log-level", "none")
	require.NoError(t, err)

	store, err := history.Open(db)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.List(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, srv.URL, entries[0].Target)
	assert.True(t, entries[0].Passed)

	stdout, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, entries[0].ID)
	assert.Contains(t, stdout, "PASSED")

	stdout, _, err = execute(t, "history", "show", entries[0].ID, "--db", db, "--json")
	require.NoError(t, err)
	r, err := report.Unmarshal([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, r.ID)

	_, _, err = execute(t, "history", "delete", entries[0].ID, "--db", db)
	require.NoError(t, err)
	_, _, err = execute(t, "history", "show", entries[0].ID, "--db", db)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestRunCommandDeviceProbes(t *testing.T) {
	device := devicesim.New(devicesim.Options{FailEvery: 10})
	srv := httptest.NewServer(device)
	t.Cleanup(srv.Close)

	stdout, _, err := execute(t, "run", srv.URL, "-e", "/ping", "-d", "300ms", "-n", "2",
		"--device-probes", "--json", "-q", "--log-level", "none")
	require.NoError(t, err, "no thresholds configured, failures alone do not fail the run")

	r, err := report.Unmarshal([]byte(stdout))
	require.NoError(t, err)
	require.NotNil(t, r.Health)

	changes := map[string]float64{}
	for _, d := range r.Health.Deltas {
		changes[d.Probe+"."+d.Field] = d.Change
	}
	// The connectivity probe is served too but is not part of the report.
	assert.Equal(t, float64(r.Success+1), changes["sockets.requests_success"])
	assert.Equal(t, float64(r.Failure), changes["sockets.requests_failed"])
	assert.Equal(t, float64(r.Failure), changes["i2c.errors"])
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b", "/c"}, splitList([]string{"/a, /b", "", "/c"}))
	assert.Nil(t, splitList(nil))
}

func TestDefaultHTMLPath(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "stress-report-192.168.4.1-8080-20260304-050607.html",
		defaultHTMLPath("http://192.168.4.1:8080/", now))
}
