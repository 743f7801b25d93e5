// Package report writes load test results as an HTML report or a JSON
// document.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
)

// ErrNilResult is returned when no result is given.
var ErrNilResult = errors.New("result cannot be nil")

// ReportData contains all data needed to render the HTML report.
type ReportData struct {
	*engine.TestResult
	TimeSeriesJSON template.JS
}

// TimeSeriesPoint is one chart point; latencies are in milliseconds.
type TimeSeriesPoint struct {
	Timestamp         string  `json:"timestamp"`
	IntervalRPS       float64 `json:"rps"`
	IntervalErrorRate float64 `json:"errorRate"`
	LatencyP50        float64 `json:"p50"`
	LatencyP95        float64 `json:"p95"`
	LatencyP99        float64 `json:"p99"`
	ActiveUsers       int     `json:"users"`
	Phase             string  `json:"phase"`
}

// GenerateHTML renders result as an HTML report and writes it to outputPath.
func GenerateHTML(result *engine.TestResult, outputPath string) error {
	html, err := GenerateHTMLString(result)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders result as an HTML report.
func GenerateHTMLString(result *engine.TestResult) (string, error) {
	if result == nil {
		return "", ErrNilResult
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	timeSeriesJSON, err := convertTimeSeriesJSON(result.TimeSeries)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}

	data := ReportData{
		TestResult:     result,
		TimeSeriesJSON: template.JS(timeSeriesJSON),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func convertTimeSeriesJSON(timeSeries []*metrics.TimeBucket) (string, error) {
	if len(timeSeries) == 0 {
		return "[]", nil
	}

	points := make([]TimeSeriesPoint, len(timeSeries))
	for i, bucket := range timeSeries {
		points[i] = TimeSeriesPoint{
			Timestamp:         bucket.Timestamp.Format(time.RFC3339),
			IntervalRPS:       bucket.IntervalRPS,
			IntervalErrorRate: bucket.IntervalErrorRate,
			LatencyP50:        millis(bucket.LatencyP50),
			LatencyP95:        millis(bucket.LatencyP95),
			LatencyP99:        millis(bucket.LatencyP99),
			ActiveUsers:       bucket.ActiveUsers,
			Phase:             string(bucket.Phase),
		}
	}

	jsonBytes, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(jsonBytes), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"percent":        percent,
		"successRate":    successRate,
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// formatDuration formats a run duration.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}

	str := fmt.Sprintf("%d", n)
	var buf bytes.Buffer
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			buf.WriteByte(',')
		}
		buf.WriteRune(c)
	}
	return buf.String()
}

// formatLatency formats a latency.
func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		ms := millis(d)
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// formatBytes formats a byte count.
func formatBytes(bytes int64) string {
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

// percent formats a 0..1 fraction as a percentage.
func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests)
}
