// Package stats computes order statistics over a finished collection of
// latency values. Every function is pure and never sees samples as they arrive.
package stats

import (
	"math"
	"slices"
)

// DefaultBuckets is the number of histogram buckets used by reports.
const DefaultBuckets = 10

// Percentile returns the nearest-rank percentile of an ascending slice.
//
// The rank is ceil(p/100*n)-1 clamped to [0, n-1]; no interpolation is done.
// The boolean is false when sorted is empty.
func Percentile(sorted []float64, p float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx], true
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean.
// It is 0 for fewer than two values.
func StdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Bucket is one equal-width histogram bin covering [Lower, Upper).
// The last bucket also includes Upper.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram partitions [min, max] of values into bucketCount equal-width
// buckets. When min equals max the width is 1. It returns nil for no values.
func Histogram(values []float64, bucketCount int) []Bucket {
	if len(values) == 0 {
		return nil
	}
	if bucketCount <= 0 {
		bucketCount = DefaultBuckets
	}

	lo, hi := slices.Min(values), slices.Max(values)
	width := (hi - lo) / float64(bucketCount)
	if width == 0 {
		width = 1
	}

	buckets := make([]Bucket, bucketCount)
	for i := range buckets {
		buckets[i].Lower = lo + float64(i)*width
		buckets[i].Upper = lo + float64(i+1)*width
	}

	last := bucketCount - 1
	for _, v := range values {
		idx := int(math.Floor((v - lo) / width))
		if idx > last {
			idx = last
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].Count++
	}
	return buckets
}

// Summary bundles the latency figures shown in a report.
type Summary struct {
	Available bool    `json:"available"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	P50       float64 `json:"p50"`
	P75       float64 `json:"p75"`
	P90       float64 `json:"p90"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
}

// Summarize sorts a copy of values and derives the full summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean := Mean(sorted)
	pct := func(p float64) float64 {
		v, _ := Percentile(sorted, p)
		return v
	}

	return Summary{
		Available: true,
		Count:     len(sorted),
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      mean,
		StdDev:    StdDev(sorted, mean),
		P50:       pct(50),
		P75:       pct(75),
		P90:       pct(90),
		P95:       pct(95),
		P99:       pct(99),
	}
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted
}
