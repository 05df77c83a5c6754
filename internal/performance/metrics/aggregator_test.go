package metrics

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stressor/internal/performance"
)

var testStart = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func sampleAt(endpoint string, offset time.Duration, outcome performance.Outcome, latency time.Duration) performance.Sample {
	s := performance.Sample{
		Endpoint:    endpoint,
		Latency:     latency,
		Outcome:     outcome,
		CompletedAt: testStart.Add(offset),
	}
	switch outcome {
	case performance.OutcomeSuccess, performance.OutcomeParseError:
		s.StatusCode = 200
	case performance.OutcomeHTTPError:
		s.StatusCode = 500
	case performance.OutcomeTimeout:
		s.ErrorKind = performance.ErrorKindTimeout
	case performance.OutcomeConnectionError:
		s.ErrorKind = performance.ErrorKindRefused
	}
	return s
}

func TestAggregator_InvariantsHoldAfterEveryFold(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/a", "/b", "/c"})
	rng := rand.New(rand.NewSource(7))
	endpoints := []string{"/a", "/b", "/c", "/unlisted"}

	for i := 0; i < 500; i++ {
		s := sampleAt(
			endpoints[rng.Intn(len(endpoints))],
			time.Duration(rng.Intn(5000))*time.Millisecond,
			performance.Outcomes[rng.Intn(len(performance.Outcomes))],
			time.Duration(rng.Intn(300)+1)*time.Millisecond,
		)
		agg.Fold(s)
		require.NoError(t, agg.Statistics().CheckInvariants(), "after fold %d", i)
	}

	st := agg.Statistics()
	assert.Equal(t, int64(500), st.Total)
	assert.NotNil(t, st.Endpoint("/unlisted"))
}

func TestAggregator_ConcurrentFolds(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/a", "/b"})

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				outcome := performance.OutcomeSuccess
				if i%4 == 0 {
					outcome = performance.OutcomeTimeout
				}
				ep := "/a"
				if (w+i)%2 == 1 {
					ep = "/b"
				}
				agg.Fold(sampleAt(ep, time.Duration(i)*10*time.Millisecond, outcome, 5*time.Millisecond))
			}
		}(w)
	}

	// Snapshots taken while folding must be consistent too.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			assert.NoError(t, agg.Statistics().CheckInvariants())
			_ = agg.Progress()
		}
	}()

	wg.Wait()
	<-done

	st := agg.Statistics()
	require.NoError(t, st.CheckInvariants())
	assert.Equal(t, int64(workers*perWorker), st.Total)
	assert.Equal(t, int64(workers*perWorker/4), st.Outcomes.Timeout)
	assert.Equal(t, int64(workers*perWorker/4), st.ErrorKinds[performance.ErrorKindTimeout])
	assert.Len(t, st.Latencies, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), agg.Progress().Total)
}

func TestAggregator_TimelineHasNoGaps(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/"})

	agg.Fold(sampleAt("/", 200*time.Millisecond, performance.OutcomeSuccess, 10*time.Millisecond))
	agg.Fold(sampleAt("/", 3500*time.Millisecond, performance.OutcomeHTTPError, 30*time.Millisecond))
	agg.Fold(sampleAt("/", 900*time.Millisecond, performance.OutcomeSuccess, 20*time.Millisecond))

	st := agg.Statistics()
	require.Len(t, st.Timeline, 4)
	for i, b := range st.Timeline {
		assert.Equal(t, i, b.Second)
	}
	assert.Equal(t, int64(2), st.Timeline[0].Count)
	assert.Equal(t, 10.0, st.Timeline[0].Min)
	assert.Equal(t, 20.0, st.Timeline[0].Max)
	assert.Equal(t, 15.0, st.Timeline[0].AvgLatency())
	assert.Zero(t, st.Timeline[1].Count)
	assert.Zero(t, st.Timeline[2].Count)
	assert.Equal(t, int64(1), st.Timeline[3].Failure)
}

func TestAggregator_HorizonClampsDrainSamples(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/"}, WithHorizon(time.Second))

	agg.Fold(sampleAt("/", 500*time.Millisecond, performance.OutcomeSuccess, 10*time.Millisecond))
	agg.Fold(sampleAt("/", 1010*time.Millisecond, performance.OutcomeSuccess, 10*time.Millisecond))

	st := agg.Statistics()
	require.Len(t, st.Timeline, 1)
	assert.Equal(t, int64(2), st.Timeline[0].Count)
}

func TestAggregator_Histograms(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/a"})

	agg.Fold(sampleAt("/a", 0, performance.OutcomeSuccess, time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeHTTPError, time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeHTTPError, time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeConnectionError, time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeParseError, time.Millisecond))

	st := agg.Statistics()
	assert.Equal(t, map[int]int64{200: 2, 500: 2}, st.StatusCodes)
	assert.Equal(t, map[string]int64{performance.ErrorKindRefused: 1}, st.ErrorKinds)
	assert.Equal(t, int64(1), st.Success)
	assert.Equal(t, int64(4), st.Failure)
	assert.Equal(t, int64(1), st.Outcomes.ParseError)
	assert.InDelta(t, 20.0, st.SuccessRate(), 1e-9)
}

func TestAggregator_EndpointsCreatedLazilyInConfigOrder(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/a", "/b", "/c"})

	assert.Empty(t, agg.Statistics().Endpoints)

	agg.Fold(sampleAt("/c", 0, performance.OutcomeSuccess, 30*time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeSuccess, 10*time.Millisecond))
	agg.Fold(sampleAt("/a", 0, performance.OutcomeTimeout, 50*time.Millisecond))

	st := agg.Statistics()
	require.Len(t, st.Endpoints, 2)
	assert.Equal(t, "/a", st.Endpoints[0].Endpoint)
	assert.Equal(t, "/c", st.Endpoints[1].Endpoint)
	assert.Equal(t, int64(2), st.Endpoints[0].Count)
	assert.Equal(t, int64(1), st.Endpoints[0].Failure)
	assert.Equal(t, 10.0, st.Endpoints[0].Min)
	assert.Equal(t, 50.0, st.Endpoints[0].Max)
	assert.Nil(t, st.Endpoint("/b"))
}

func TestAggregator_StatisticsIsACopy(t *testing.T) {
	agg := NewAggregator(testStart, []string{"/"})
	agg.Fold(sampleAt("/", 0, performance.OutcomeSuccess, 10*time.Millisecond))

	st := agg.Statistics()
	st.Latencies[0] = 999
	st.Endpoints[0].Latencies[0] = 999
	st.StatusCodes[200] = 999

	fresh := agg.Statistics()
	assert.Equal(t, 10.0, fresh.Latencies[0])
	assert.Equal(t, 10.0, fresh.Endpoints[0].Latencies[0])
	assert.Equal(t, int64(1), fresh.StatusCodes[200])
}

func TestAggregator_Progress(t *testing.T) {
	agg := NewAggregator(time.Now(), []string{"/"}, WithPublishInterval(0))

	for i := 1; i <= 100; i++ {
		outcome := performance.OutcomeSuccess
		if i%10 == 0 {
			outcome = performance.OutcomeHTTPError
		}
		s := sampleAt("/", 0, outcome, time.Duration(i)*time.Millisecond)
		s.CompletedAt = time.Now()
		agg.Record(s)
	}

	p := agg.Progress()
	assert.Equal(t, int64(100), p.Total)
	assert.Equal(t, int64(90), p.Success)
	assert.Equal(t, int64(10), p.Failure)
	assert.InDelta(t, 90.0, p.SuccessRate(), 1e-9)
	assert.True(t, p.Throughput > 0)
	assert.InDelta(t, float64(50*time.Millisecond), float64(p.Latency.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(p.Latency.Max), float64(time.Millisecond))
}

func TestRunStatistics_CheckInvariantsDetectsDrift(t *testing.T) {
	st := newRunStatistics()
	st.Total = 2
	st.Success = 1
	assert.ErrorIs(t, st.CheckInvariants(), ErrInvariant)

	st.Failure = 1
	st.Outcomes = OutcomeCounts{Success: 1, HTTPError: 1}
	st.Latencies = []float64{1, 2}
	st.Endpoints = []*EndpointStats{{Endpoint: "/", Count: 2, Success: 1, Failure: 1}}
	st.Timeline = []TimelineBucket{{Second: 0, Count: 1}}
	err := st.CheckInvariants()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeline")

	st.Timeline[0].Count = 2
	assert.NoError(t, st.CheckInvariants())
}

func BenchmarkAggregator_Fold(b *testing.B) {
	endpoints := make([]string, 8)
	for i := range endpoints {
		endpoints[i] = fmt.Sprintf("/e%d", i)
	}
	agg := NewAggregator(testStart, endpoints, WithHorizon(time.Minute))
	s := sampleAt("/e3", 1500*time.Millisecond, performance.OutcomeSuccess, 12*time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.Fold(s)
	}
}
