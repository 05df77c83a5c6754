// Package devicesim serves a simulated embedded device: a few load
// endpoints plus the JSON status endpoints read by the health probes.
package devicesim

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options controls the simulated behavior.
type Options struct {
	// Latency is added to every load request
	Latency time.Duration

	// Jitter adds up to this much random latency on top of Latency
	Jitter time.Duration

	// FailEvery makes every Nth load request return 500 (0: never)
	FailEvery int

	// RestartAfter simulates a server restart after this many load requests
	// (0: never)
	RestartAfter int64
}

// Device is an http.Handler simulating the device firmware.
//
// # Thread Safety
//
// Device is safe for concurrent use.
type Device struct {
	opts    Options
	started time.Time
	mux     *http.ServeMux

	requests atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64
	restarts atomic.Int64

	mu        sync.Mutex
	i2cErrors int
}

// New creates a simulated device.
func New(opts Options) *Device {
	d := &Device{opts: opts, started: time.Now(), mux: http.NewServeMux()}

	d.mux.HandleFunc("GET /ping", d.load("pong"))
	d.mux.HandleFunc("GET /{$}", d.load("OK"))
	d.mux.HandleFunc("GET /status/200", d.load("OK"))

	d.mux.HandleFunc("GET /api/socket-status", d.socketStatus)
	d.mux.HandleFunc("GET /api/i2c-status", d.i2cStatus)
	d.mux.HandleFunc("GET /api/oled-status", d.oledStatus)
	d.mux.HandleFunc("GET /api/timing", d.timing)
	return d
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.ServeHTTP(w, r)
}

// Requests returns the number of load requests served.
func (d *Device) Requests() int64 {
	return d.requests.Load()
}

func (d *Device) load(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := d.requests.Add(1)
		if delay := d.delay(); delay > 0 {
			time.Sleep(delay)
		}
		if d.opts.RestartAfter > 0 && n%d.opts.RestartAfter == 0 {
			d.restarts.Add(1)
		}

		if d.opts.FailEvery > 0 && n%int64(d.opts.FailEvery) == 0 {
			d.failed.Add(1)
			d.mu.Lock()
			d.i2cErrors++
			d.mu.Unlock()
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}
		d.success.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(body))
	}
}

func (d *Device) delay() time.Duration {
	delay := d.opts.Latency
	if d.opts.Jitter > 0 {
		delay += rand.N(d.opts.Jitter)
	}
	return delay
}

func (d *Device) socketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"requests": map[string]int64{
			"success": d.success.Load(),
			"failed":  d.failed.Load(),
		},
		"server_restarts": d.restarts.Load(),
	})
}

func (d *Device) i2cStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	errs := d.i2cErrors
	d.mu.Unlock()
	writeJSON(w, map[string]any{"errorCount": errs, "bus": "ok"})
}

func (d *Device) oledStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"errors": 0, "enabled": true})
}

func (d *Device) timing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"uptime_s": int64(time.Since(d.started).Seconds())})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
