package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGjsonPath(t *testing.T) {
	tests := map[string]string{
		"$":                      "@this",
		"$.uptime_s":             "uptime_s",
		"$.requests.failed":      "requests.failed",
		"$.sections[2].max":      "sections.2.max",
		"$['requests']['ok']":    "requests.ok",
		`$["requests"]["ok"]`:    "requests.ok",
		"$[0]":                   "0",
		"requests.success":       "requests.success",
		"sections.#(name==loop)": "sections.#(name==loop)",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToGjsonPath(in), in)
	}
}

func TestExtract(t *testing.T) {
	doc := []byte(`{"requests":{"success":120,"failed":3},"server_restarts":0,"enabled":true,"name":"esp"}`)

	values := Extract(doc, map[string]string{
		"ok":       "$.requests.success",
		"failed":   "$.requests.failed",
		"restarts": "$.server_restarts",
		"enabled":  "$.enabled",
		"name":     "$.name",
		"missing":  "$.nope",
	})

	assert.Equal(t, map[string]float64{
		"ok":       120,
		"failed":   3,
		"restarts": 0,
		"enabled":  1,
	}, values)
}

func TestChecker_Snapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/socket-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requests":{"success":10,"failed":1},"server_restarts":2}`))
	})
	mux.HandleFunc("/api/i2c-status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/oled-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	mux.HandleFunc("/api/timing", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"uptime_s":5}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	checker := NewChecker(server.URL, DeviceProbes(), WithTimeout(100*time.Millisecond))
	snap := checker.Snapshot(context.Background())

	v, ok := snap.Value("sockets", "server_restarts")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = snap.Value("sockets", "requests_failed")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	assert.Contains(t, snap.Errors, "i2c")
	assert.Contains(t, snap.Errors, "oled")
	assert.Contains(t, snap.Errors, "timing")
	assert.Len(t, snap.Values, 1)
	assert.False(t, snap.Empty())
}

func TestChecker_UnreachableTargetNeverFails(t *testing.T) {
	checker := NewChecker("http://127.0.0.1:1", DeviceProbes(), WithTimeout(200*time.Millisecond))
	snap := checker.Snapshot(context.Background())

	assert.True(t, snap.Empty())
	assert.Len(t, snap.Errors, len(DeviceProbes()))
}

func TestChecker_NoProbes(t *testing.T) {
	snap := NewChecker("http://127.0.0.1:1", nil).Snapshot(context.Background())
	assert.True(t, snap.Empty())
	assert.Empty(t, snap.Errors)
}

func TestCompare(t *testing.T) {
	before := Snapshot{Values: map[string]map[string]float64{
		"sockets": {"requests_success": 100, "server_restarts": 0},
		"i2c":     {"errors": 4},
	}}
	after := Snapshot{Values: map[string]map[string]float64{
		"sockets": {"requests_success": 1600, "server_restarts": 1},
		"i2c":     {"errors": 4},
		"oled":    {"errors": 9},
	}}

	deltas := Compare(before, after)
	require.Len(t, deltas, 3)
	assert.Equal(t, Delta{Probe: "i2c", Field: "errors", Before: 4, After: 4, Change: 0}, deltas[0])
	assert.Equal(t, Delta{Probe: "sockets", Field: "requests_success", Before: 100, After: 1600, Change: 1500}, deltas[1])
	assert.Equal(t, "server_restarts", deltas[2].Field)
	assert.Equal(t, 1.0, deltas[2].Change)
}
