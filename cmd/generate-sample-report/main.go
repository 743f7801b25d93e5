// Command generate-sample-report renders an HTML report from a synthetic
// stepped run, for previewing report changes without a Fleets server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/imuser"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
	"github.com/wesleyorama2/imload/internal/loadtest/report"
	"github.com/wesleyorama2/imload/internal/loadtest/shape"
)

// requestsPerUserSecond approximates one task every two seconds per user.
const requestsPerUserSecond = 0.5

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	result := createSampleTestResult(gofakeit.New(7))

	if err := report.GenerateHTML(result, outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func createSampleTestResult(faker *gofakeit.Faker) *engine.TestResult {
	step := shape.NewStepLoadShape()
	end := time.Now()
	start := end.Add(-step.TimeLimit)

	series := createSampleTimeSeries(faker, step, start)
	last := series[len(series)-1]

	var requests []metrics.RequestStats
	weights := config.DefaultTaskWeights()
	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}
	for _, name := range config.TaskNames() {
		share := float64(weights[name]) / float64(totalWeight)
		count := int64(float64(last.TotalRequests) * share * 0.9)
		requests = append(requests, sampleRequest(faker, name, methodFor(name), count, step.TimeLimit))
	}
	adminCount := last.TotalRequests / 20
	requests = append(requests,
		sampleRequest(faker, imuser.RequestLogin, "POST", 220, step.TimeLimit),
		sampleRequest(faker, imuser.RequestLogout, "POST", 220, step.TimeLimit),
		sampleRequest(faker, imuser.RequestAdminList, "GET", adminCount, step.TimeLimit),
	)

	return &engine.TestResult{
		RunID:      faker.UUID(),
		Name:       "Fleets IM load test (sample)",
		Host:       config.DefaultHost,
		StartTime:  start,
		EndTime:    end,
		Duration:   step.TimeLimit,
		StopReason: engine.StopReasonShape,
		Spawned:    map[string]int{config.ClassIMUser: 110, config.ClassAdminUser: 110},
		PeakUsers:  220,
		Metrics: &metrics.Snapshot{
			TotalRequests:   last.TotalRequests,
			SuccessRequests: last.TotalSuccesses,
			FailedRequests:  last.TotalFailures,
			TotalBytes:      last.TotalBytes,
			RPS:             float64(last.TotalRequests) / step.TimeLimit.Seconds(),
			OverallRPS:      float64(last.TotalRequests) / step.TimeLimit.Seconds(),
			ErrorRate:       float64(last.TotalFailures) / float64(last.TotalRequests),
			Latency: metrics.LatencyStats{
				Min:   2 * time.Millisecond,
				Max:   1800 * time.Millisecond,
				Mean:  64 * time.Millisecond,
				P50:   41 * time.Millisecond,
				P90:   130 * time.Millisecond,
				P95:   210 * time.Millisecond,
				P99:   620 * time.Millisecond,
				Count: last.TotalRequests,
			},
			StartTime: start,
			Timestamp: end,
		},
		Requests:   requests,
		TimeSeries: series,
		Passed:     true,
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 500ms", Passed: true, Value: "210ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.01", Passed: true, Value: "0.0040"},
		},
	}
}

func createSampleTimeSeries(faker *gofakeit.Faker, step *shape.StepLoadShape, start time.Time) []*metrics.TimeBucket {
	seconds := int(step.TimeLimit / time.Second)
	buckets := make([]*metrics.TimeBucket, 0, seconds)

	var total, failures int64
	users := 0
	for i := 1; i <= seconds; i++ {
		elapsed := time.Duration(i) * time.Second
		tick, ok := step.Tick(elapsed)
		if !ok {
			break
		}

		phase := metrics.PhaseSteady
		if users < tick.Users {
			phase = metrics.PhaseRampUp
			users += int(tick.SpawnRate)
			if users > tick.Users {
				users = tick.Users
			}
		}

		rps := float64(users)*requestsPerUserSecond + faker.Float64Range(-2, 2)
		if rps < 0 {
			rps = 0
		}
		interval := int64(rps)
		intervalFailures := int64(0)
		if faker.Float64Range(0, 1) < 0.2 {
			intervalFailures = int64(faker.IntRange(0, 2))
		}
		if intervalFailures > interval {
			intervalFailures = interval
		}
		total += interval
		failures += intervalFailures

		// Latency grows with the user count.
		base := time.Duration(30+users/4) * time.Millisecond
		errorRate := 0.0
		if interval > 0 {
			errorRate = float64(intervalFailures) / float64(interval)
		}

		buckets = append(buckets, &metrics.TimeBucket{
			Timestamp:         start.Add(elapsed),
			TotalRequests:     total,
			TotalSuccesses:    total - failures,
			TotalFailures:     failures,
			TotalBytes:        total * 512,
			IntervalRequests:  interval,
			IntervalFailures:  intervalFailures,
			IntervalRPS:       rps,
			IntervalErrorRate: errorRate,
			LatencyMin:        2 * time.Millisecond,
			LatencyMax:        base * 12,
			LatencyP50:        base,
			LatencyP90:        base * 3,
			LatencyP95:        base * 4,
			LatencyP99:        base * 9,
			ActiveUsers:       users,
			Phase:             phase,
		})
	}

	return buckets
}

func sampleRequest(faker *gofakeit.Faker, name, method string, count int64, d time.Duration) metrics.RequestStats {
	mean := time.Duration(faker.IntRange(20, 90)) * time.Millisecond
	return metrics.RequestStats{
		Name:     name,
		Method:   method,
		Requests: count,
		Failures: count / int64(faker.IntRange(200, 400)),
		Bytes:    count * 512,
		RPS:      float64(count) / d.Seconds(),
		Latency: metrics.LatencyStats{
			Min:   2 * time.Millisecond,
			Max:   mean * 20,
			Mean:  mean,
			P50:   mean * 2 / 3,
			P90:   mean * 2,
			P95:   mean * 3,
			P99:   mean * 8,
			Count: count,
		},
	}
}

func methodFor(task string) string {
	if task == config.TaskSendMessage {
		return "POST"
	}
	return "GET"
}
