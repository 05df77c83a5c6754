// Command test-server runs a simulated device to stress locally:
//
//	go run ./scripts/test-server --addr :8080 --latency 5ms --fail-every 50
//	stressor run localhost:8080 -e /ping --device-probes
package main

import (
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/wesleyorama2/stressor/internal/devicesim"
)

func main() {
	addr := pflag.String("addr", ":8080", "Listen address")
	latency := pflag.Duration("latency", 0, "Latency added to every load request")
	jitter := pflag.Duration("jitter", 0, "Random extra latency up to this value")
	failEvery := pflag.Int("fail-every", 0, "Fail every Nth load request with a 500 (0: never)")
	restartAfter := pflag.Int64("restart-after", 0, "Count a simulated restart every N load requests (0: never)")
	pflag.Parse()

	device := devicesim.New(devicesim.Options{
		Latency:      *latency,
		Jitter:       *jitter,
		FailEvery:    *failEvery,
		RestartAfter: *restartAfter,
	})

	// Configure server for high throughput
	server := &http.Server{
		Addr:              *addr,
		Handler:           device,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("Starting simulated device on %s (%d CPU cores)", *addr, runtime.NumCPU())
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
