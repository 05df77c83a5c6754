package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stressor/internal/performance/stats"
)

// GenerateHTML renders the report and writes it to a file.
func GenerateHTML(r *RunReport, outputPath string) error {
	html, err := GenerateHTMLString(r)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders the report as a self-contained HTML page.
func GenerateHTMLString(r *RunReport) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": FormatDuration,
		"formatNumber":   FormatNumber,
		"formatMs":       FormatMs,
		"formatBytes":    FormatBytes,
		"stars":          Stars,
		"statusCodes":    sortedStatusCodes,
		"barWidth":       barWidth,
		"offset":         func(d time.Duration) string { return fmt.Sprintf("%.2fs", d.Seconds()) },
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// FormatNumber formats a count with thousands separators.
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}

	var sb strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		sb.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(str[i : i+3])
	}
	return sb.String()
}

// FormatMs formats a latency given in milliseconds.
func FormatMs(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 10:
		return fmt.Sprintf("%.2fms", ms)
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// Stars renders a rating as filled and empty stars.
func Stars(n int) string {
	n = min(5, max(0, n))
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

type statusCount struct {
	Code  int
	Count int64
}

func sortedStatusCodes(m map[int]int64) []statusCount {
	out := make([]statusCount, 0, len(m))
	for code, n := range m {
		out = append(out, statusCount{Code: code, Count: n})
	}
	slices.SortFunc(out, func(a, b statusCount) int { return a.Code - b.Code })
	return out
}

// barWidth returns a CSS width for count relative to the fullest bucket.
func barWidth(count int, buckets []stats.Bucket) string {
	largest := 0
	for _, b := range buckets {
		largest = max(largest, b.Count)
	}
	if largest == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(count)/float64(largest)*100)
}
