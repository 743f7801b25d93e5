package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

// requestKey groups statistics by request name and method.
type requestKey struct {
	name   string
	method string
}

// requestEntry is the per-request accumulator. Guarded by Engine.requestsMu.
type requestEntry struct {
	hist     *hdrhistogram.Histogram
	requests int64
	failures int64
	bytes    int64
}

// Engine collects and aggregates run statistics.
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms use mutex protection, and the background emitter runs
// in its own goroutine.
type Engine struct {
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requests   map[requestKey]*requestEntry
	requestsMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	// Exact latency totals for the stop summary; the histogram rounds.
	latencySum atomic.Int64
	latencyMax atomic.Int64

	activeUsers atomic.Int32

	buckets *TimeBucketStore

	phase        Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time
	stopTime  time.Time
	timeMu    sync.RWMutex

	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

// NewEngine creates a metrics engine with the default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine and starts its bucket emitter.
func NewEngineWithConfig(config EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = def.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requests:      make(map[requestKey]*requestEntry),
		buckets:       NewTimeBucketStore(config.MaxBuckets),
		phase:         PhaseInit,
		startTime:     time.Now(),
		emitterCancel: cancel,
		config:        config,
	}

	e.emitterWg.Add(1)
	go e.runEmitter(ctx)

	return e
}

// Subscribe records every request event published on bus.
func (e *Engine) Subscribe(bus *events.Bus) {
	bus.OnRequest(e.Record)
}

// Record records one completed request.
func (e *Engine) Record(ev events.RequestEvent) {
	micros := ev.Duration.Microseconds()
	if micros < e.config.HistogramMin {
		micros = e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		micros = e.config.HistogramMax
	}

	success := ev.Success()

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(micros)
	e.latencyHistMu.Unlock()

	e.recordRequest(ev, micros, success)

	e.recordLatency(ev.Duration)

	e.totalRequests.Add(1)
	e.totalBytes.Add(ev.BytesReceived)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	e.buckets.RecordRequest(success)
}

func (e *Engine) recordLatency(d time.Duration) {
	n := int64(d)
	e.latencySum.Add(n)
	for {
		cur := e.latencyMax.Load()
		if n <= cur || e.latencyMax.CompareAndSwap(cur, n) {
			return
		}
	}
}

// NOTE: HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
func (e *Engine) recordRequest(ev events.RequestEvent, micros int64, success bool) {
	key := requestKey{name: ev.Name, method: ev.Method}

	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	entry, ok := e.requests[key]
	if !ok {
		entry = &requestEntry{
			hist: hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		}
		e.requests[key] = entry
	}

	_ = entry.hist.RecordValue(micros)
	entry.requests++
	entry.bytes += ev.BytesReceived
	if !success {
		entry.failures++
	}
}

// SetPhase records a phase transition.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.phase == phase {
		return
	}

	e.phase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// PhaseHistory returns the phase transitions so far.
func (e *Engine) PhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	out := make([]PhaseChange, len(e.phaseHistory))
	copy(out, e.phaseHistory)
	return out
}

// SetActiveUsers updates the active user count.
func (e *Engine) SetActiveUsers(count int) {
	e.activeUsers.Store(int32(count))
}

// ActiveUsers returns the active user count.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

// MarkStart resets the run clock. The engine starts its clock on creation;
// the runner calls MarkStart right before the first user is spawned.
func (e *Engine) MarkStart() {
	e.timeMu.Lock()
	defer e.timeMu.Unlock()
	e.startTime = time.Now()
}

func (e *Engine) runEmitter(ctx context.Context) {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.buckets.CreateBucket(Totals{
		Requests:  e.totalRequests.Load(),
		Successes: e.successRequests.Load(),
		Failures:  e.failedRequests.Load(),
		Bytes:     e.totalBytes.Load(),
	}, e.LatencyPercentiles(), e.ActiveUsers(), e.GetPhase())
}

// LatencyPercentiles returns the current overall latency percentiles.
func (e *Engine) LatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// elapsed returns the run duration, frozen once the engine is stopped.
func (e *Engine) elapsed() (time.Time, time.Duration) {
	e.timeMu.RLock()
	defer e.timeMu.RUnlock()

	end := e.stopTime
	if end.IsZero() {
		end = time.Now()
	}
	return e.startTime, end.Sub(e.startTime)
}

// Snapshot returns a point-in-time view of the run.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := histogramStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	start, elapsed := e.elapsed()
	total := e.totalRequests.Load()
	failed := e.failedRequests.Load()

	overall := 0.0
	if elapsed > 0 {
		overall = float64(total) / elapsed.Seconds()
	}

	steady, steadyBuckets := e.buckets.SteadyStateRPS()
	rps := overall
	if steadyBuckets > 0 {
		rps = steady
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failed,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		OverallRPS:      overall,
		SteadyStateRPS:  steady,
		ErrorRate:       errorRate,
		ActiveUsers:     e.ActiveUsers(),
		CurrentPhase:    e.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       start,
		Timestamp:       time.Now(),
	}
}

// Stats summarizes the run for the test stop event. Average and maximum
// response times are exact.
func (e *Engine) Stats() events.Stats {
	_, elapsed := e.elapsed()
	total := e.totalRequests.Load()

	stats := events.Stats{
		TotalRequests:   total,
		TotalFailures:   e.failedRequests.Load(),
		MaxResponseTime: time.Duration(e.latencyMax.Load()),
	}
	if total > 0 {
		stats.AvgResponseTime = time.Duration(e.latencySum.Load() / total)
	}
	if elapsed > 0 {
		stats.RPS = float64(total) / elapsed.Seconds()
	}
	return stats
}

// RequestStats returns per-request statistics sorted by name, then method.
func (e *Engine) RequestStats() []RequestStats {
	_, elapsed := e.elapsed()

	e.requestsMu.Lock()
	out := make([]RequestStats, 0, len(e.requests))
	for key, entry := range e.requests {
		stats := RequestStats{
			Name:     key.name,
			Method:   key.method,
			Requests: entry.requests,
			Failures: entry.failures,
			Bytes:    entry.bytes,
			Latency:  histogramStats(entry.hist),
		}
		if elapsed > 0 {
			stats.RPS = float64(entry.requests) / elapsed.Seconds()
		}
		out = append(out, stats)
	}
	e.requestsMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// TimeSeries returns all time buckets.
func (e *Engine) TimeSeries() []*TimeBucket {
	return e.buckets.Buckets()
}

// LatestBucket returns the most recent time bucket, or nil.
func (e *Engine) LatestBucket() *TimeBucket {
	return e.buckets.Latest()
}

// Stop stops the emitter, emits a final bucket and freezes the run clock.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()

		e.timeMu.Lock()
		e.stopTime = time.Now()
		e.timeMu.Unlock()
	})
}

func histogramStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
