package performance

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout bounds a single request attempt, including the body read.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// KeepAlive reuses connections between requests. When false every
	// request carries "Connection: close" so each attempt opens a fresh socket.
	KeepAlive bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns the defaults used for stress runs.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             3 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           false,
	}
}

// NewHTTPClient creates an HTTP client with the configured transport settings.
//
// The client carries no overall timeout; callers bound each attempt with a
// context deadline so that the elapsed time up to the abort can be measured.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   !cfg.KeepAlive,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
	}

	return &http.Client{Transport: transport}
}

// RequestExecutor performs single GET requests against the target and turns
// each attempt into a Sample. It is safe for concurrent use.
type RequestExecutor struct {
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	keepAlive bool
	now       func() time.Time
}

// ExecutorOption customizes a RequestExecutor.
type ExecutorOption func(*RequestExecutor)

// WithHTTPClient replaces the client built from the HTTPClientConfig.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *RequestExecutor) {
		e.client = client
	}
}

// WithClock overrides the wall clock used to stamp CompletedAt.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *RequestExecutor) {
		e.now = now
	}
}

// NewRequestExecutor creates an executor for the given base URL.
func NewRequestExecutor(baseURL string, cfg HTTPClientConfig, opts ...ExecutorOption) *RequestExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPClientConfig().Timeout
	}

	e := &RequestExecutor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   cfg.Timeout,
		keepAlive: cfg.KeepAlive,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = NewHTTPClient(cfg)
	}
	return e
}

// Timeout returns the per-request bound.
func (e *RequestExecutor) Timeout() time.Duration {
	return e.timeout
}

// URL returns the absolute URL for an endpoint path.
func (e *RequestExecutor) URL(endpoint string) string {
	return e.baseURL + endpoint
}

// Do issues one GET request for endpoint and returns its Sample.
//
// Do never returns an error: every failure mode is encoded in the sample's
// Outcome. Cancelling ctx does not interrupt a request that is already in
// flight; the attempt still completes or times out on its own deadline.
func (e *RequestExecutor) Do(ctx context.Context, workerID int, endpoint string) Sample {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	sample := Sample{
		WorkerID: workerID,
		Endpoint: endpoint,
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.URL(endpoint), nil)
	if err != nil {
		sample.Outcome = OutcomeConnectionError
		sample.ErrorKind = truncateMessage(err.Error())
		sample.Latency = time.Since(start)
		sample.CompletedAt = e.now()
		return sample
	}
	if !e.keepAlive {
		req.Close = true
		req.Header.Set("Connection", "close")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		sample.Latency = time.Since(start)
		sample.CompletedAt = e.now()
		sample.Outcome, sample.ErrorKind = Classify(0, err, nil)
		return sample
	}

	n, bodyErr := io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	sample.Latency = time.Since(start)
	sample.CompletedAt = e.now()
	sample.StatusCode = resp.StatusCode
	sample.Bytes = n
	sample.Outcome, _ = Classify(resp.StatusCode, nil, bodyErr)
	return sample
}
