package report

// Rating is the star score of a run, from 1 (Critical) to 5 (Excellent).
type Rating struct {
	Stars int      `json:"stars"`
	Label string   `json:"label"`
	Notes []string `json:"notes"`
}

var ratingLabels = [...]string{1: "Critical", 2: "Poor", 3: "Fair", 4: "Good", 5: "Excellent"}

// Rate scores a report. Every run starts at three stars and gains or loses
// points for reliability, throughput, p95 latency and failure bursts:
//   - success rate: >= 99.5% +2, >= 98% +1, < 90% -1
//   - throughput: >= 50 req/s +2, >= 30 req/s +1, < 15 req/s -1
//   - p95: <= 100ms +1, > 300ms -1
//   - max consecutive failures: <= 1 +1, >= 5 -1
func Rate(r *RunReport) Rating {
	if r.Aborted {
		return Rating{Stars: 1, Label: ratingLabels[1], Notes: []string{"Aborted"}}
	}

	score := 0
	notes := []string{}

	switch rate := r.SuccessRate; {
	case rate >= 99.5:
		score += 2
		notes = append(notes, "Excellent reliability")
	case rate >= 98:
		score++
		notes = append(notes, "Good reliability")
	case rate < 90:
		score--
		notes = append(notes, "Poor reliability")
	}

	switch rps := r.Throughput; {
	case rps >= 50:
		score += 2
		notes = append(notes, "High throughput")
	case rps >= 30:
		score++
		notes = append(notes, "Good throughput")
	case rps < 15:
		score--
		notes = append(notes, "Low throughput")
	}

	switch p95 := r.Latency.P95; {
	case p95 <= 100:
		score++
		notes = append(notes, "Fast p95")
	case p95 > 300:
		score--
		notes = append(notes, "Slow p95")
	}

	switch burst := r.MaxConsecutiveFailures; {
	case burst <= 1:
		score++
		notes = append(notes, "Stable")
	case burst >= 5:
		score--
		notes = append(notes, "Unstable bursts")
	}

	stars := min(5, max(1, 3+score))
	return Rating{Stars: stars, Label: ratingLabels[stars], Notes: notes}
}
