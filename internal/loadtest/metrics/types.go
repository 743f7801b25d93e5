// Package metrics collects request statistics for a load test run.
//
// Latencies are recorded in HDR histograms (overall and per request name),
// counters are atomic, and a background emitter snapshots the run into
// fixed-interval time buckets.
package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the phase before any user is spawned
	PhaseInit Phase = "init"

	// PhaseRampUp is the phase while users are being spawned
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the phase at the target user count
	PhaseSteady Phase = "steady"

	// PhaseRampDown is the phase while users are being stopped
	PhaseRampDown Phase = "ramp-down"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of the run.
type Snapshot struct {
	TotalRequests   int64 `json:"totalRequests"`
	SuccessRequests int64 `json:"successRequests"`
	FailedRequests  int64 `json:"failedRequests"`
	TotalBytes      int64 `json:"totalBytes"`

	Latency LatencyStats `json:"latency"`

	// RPS is the steady-state rate when available, otherwise the overall rate
	RPS            float64 `json:"rps"`
	OverallRPS     float64 `json:"overallRps"`
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	ActiveUsers  int           `json:"activeUsers"`
	CurrentPhase Phase         `json:"currentPhase"`
	Elapsed      time.Duration `json:"elapsed"`
	StartTime    time.Time     `json:"startTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// RequestStats are the statistics of one request name.
type RequestStats struct {
	Name     string       `json:"name"`
	Method   string       `json:"method"`
	Requests int64        `json:"requests"`
	Failures int64        `json:"failures"`
	Bytes    int64        `json:"bytes"`
	Latency  LatencyStats `json:"latency"`

	// RPS is the average rate over the run so far
	RPS float64 `json:"rps"`
}

// FailureRate returns the fraction of failed requests.
func (r RequestStats) FailureRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Failures) / float64(r.Requests)
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// TimeBucket captures the run state at the end of one emit interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters
	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	// Interval counters
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalFailures  int64   `json:"intervalFailures"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveUsers int   `json:"activeUsers"`
	Phase       Phase `json:"phase"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     int64(time.Hour / time.Microsecond),
		HistogramSigFigs: 3,
	}
}
