package devicesim

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stressor/internal/performance/health"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestLoadEndpoints(t *testing.T) {
	d := New(Options{FailEvery: 3})
	srv := httptest.NewServer(d)
	defer srv.Close()

	codes := make([]int, 0, 6)
	for range 6 {
		code, _ := get(t, srv.URL+"/ping")
		codes = append(codes, code)
	}
	assert.Equal(t, []int{200, 200, 500, 200, 200, 500}, codes)
	assert.Equal(t, int64(6), d.Requests())

	code, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = get(t, srv.URL+"/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusEndpointsFeedHealthProbes(t *testing.T) {
	d := New(Options{FailEvery: 2, RestartAfter: 4})
	srv := httptest.NewServer(d)
	defer srv.Close()

	checker := health.NewChecker(srv.URL, health.DeviceProbes())
	before := checker.Snapshot(context.Background())
	require.Empty(t, before.Errors)

	for range 4 {
		get(t, srv.URL+"/ping")
	}
	after := checker.Snapshot(context.Background())

	deltas := map[string]float64{}
	for _, delta := range health.Compare(before, after) {
		deltas[delta.Probe+"."+delta.Field] = delta.Change
	}
	assert.Equal(t, 2.0, deltas["sockets.requests_success"])
	assert.Equal(t, 2.0, deltas["sockets.requests_failed"])
	assert.Equal(t, 1.0, deltas["sockets.server_restarts"])
	assert.Equal(t, 2.0, deltas["i2c.errors"])
	assert.Equal(t, 0.0, deltas["oled.errors"])
	assert.Contains(t, deltas, "timing.uptime_s")
}
