package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
)

// CSV file suffixes appended to the --csv prefix, as Locust names them.
const (
	StatsCSVSuffix   = "_stats.csv"
	HistoryCSVSuffix = "_stats_history.csv"
)

var statsHeader = []string{
	"Type", "Name", "Request Count", "Failure Count",
	"Median Response Time", "Average Response Time", "Min Response Time", "Max Response Time",
	"Average Content Size", "Requests/s", "Failures/s",
	"50%", "90%", "95%", "99%", "100%",
}

var historyHeader = []string{
	"Timestamp", "User Count", "Type", "Name", "Requests/s", "Failures/s",
	"50%", "90%", "95%", "99%", "100%",
	"Total Request Count", "Total Failure Count",
}

// EncodeStatsCSV writes one row per request name followed by an Aggregated
// row. Response times are in milliseconds.
func EncodeStatsCSV(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return ErrNilResult
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(statsHeader); err != nil {
		return err
	}

	seconds := result.Duration.Seconds()
	for _, r := range result.Requests {
		if err := cw.Write(statsRow(r.Method, r.Name, r.Requests, r.Failures, r.Bytes, r.Latency, r.RPS, seconds)); err != nil {
			return err
		}
	}

	if m := result.Metrics; m != nil {
		row := statsRow("", "Aggregated", m.TotalRequests, m.FailedRequests, m.TotalBytes, m.Latency, m.OverallRPS, seconds)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func statsRow(method, name string, requests, failures, bytes int64, l metrics.LatencyStats, rps, seconds float64) []string {
	var avgSize, failRate float64
	if requests > 0 {
		avgSize = float64(bytes) / float64(requests)
	}
	if seconds > 0 {
		failRate = float64(failures) / seconds
	}
	return []string{
		method,
		name,
		strconv.FormatInt(requests, 10),
		strconv.FormatInt(failures, 10),
		csvMillis(l.P50),
		strconv.FormatFloat(float64(l.Mean)/float64(time.Millisecond), 'f', 2, 64),
		csvMillis(l.Min),
		csvMillis(l.Max),
		strconv.FormatFloat(avgSize, 'f', 2, 64),
		strconv.FormatFloat(rps, 'f', 2, 64),
		strconv.FormatFloat(failRate, 'f', 2, 64),
		csvMillis(l.P50),
		csvMillis(l.P90),
		csvMillis(l.P95),
		csvMillis(l.P99),
		csvMillis(l.Max),
	}
}

// EncodeHistoryCSV writes one Aggregated row per time series bucket.
func EncodeHistoryCSV(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return ErrNilResult
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}

	for _, b := range result.TimeSeries {
		row := []string{
			strconv.FormatInt(b.Timestamp.Unix(), 10),
			strconv.Itoa(b.ActiveUsers),
			"",
			"Aggregated",
			strconv.FormatFloat(b.IntervalRPS, 'f', 2, 64),
			strconv.FormatFloat(b.IntervalRPS*b.IntervalErrorRate, 'f', 2, 64),
			csvMillis(b.LatencyP50),
			csvMillis(b.LatencyP90),
			csvMillis(b.LatencyP95),
			csvMillis(b.LatencyP99),
			csvMillis(b.LatencyMax),
			strconv.FormatInt(b.TotalRequests, 10),
			strconv.FormatInt(b.TotalFailures, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSV writes the stats and stats history files for prefix and returns
// their paths.
func WriteCSV(result *engine.TestResult, prefix string) ([]string, error) {
	if result == nil {
		return nil, ErrNilResult
	}

	files := []struct {
		path   string
		encode func(io.Writer, *engine.TestResult) error
	}{
		{prefix + StatsCSVSuffix, EncodeStatsCSV},
		{prefix + HistoryCSVSuffix, EncodeHistoryCSV},
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		f, err := os.Create(file.path)
		if err != nil {
			return paths, fmt.Errorf("failed to create CSV file: %w", err)
		}
		if err := file.encode(f, result); err != nil {
			f.Close()
			return paths, fmt.Errorf("failed to write CSV file: %w", err)
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, file.path)
	}
	return paths, nil
}

func csvMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
