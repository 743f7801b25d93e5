package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore keeps time buckets in a fixed-size ring buffer; the oldest
// bucket is overwritten once the ring is full.
//
// Requests are accumulated lock-free between buckets.
type TimeBucketStore struct {
	mu    sync.RWMutex
	ring  []*TimeBucket
	next  int
	count int

	lastEmit time.Time

	pendingRequests atomic.Int64
	pendingFailures atomic.Int64
}

// NewTimeBucketStore creates a store that keeps at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = DefaultEngineConfig().MaxBuckets
	}

	return &TimeBucketStore{
		ring:     make([]*TimeBucket, maxBuckets),
		lastEmit: time.Now(),
	}
}

// RecordRequest adds one request to the pending interval.
func (s *TimeBucketStore) RecordRequest(success bool) {
	s.pendingRequests.Add(1)
	if !success {
		s.pendingFailures.Add(1)
	}
}

// Totals are the cumulative counters stored in a bucket.
type Totals struct {
	Requests  int64
	Successes int64
	Failures  int64
	Bytes     int64
}

// CreateBucket closes the pending interval and appends a bucket.
func (s *TimeBucketStore) CreateBucket(totals Totals, latencies LatencyPercentiles, activeUsers int, phase Phase) *TimeBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	requests := s.pendingRequests.Swap(0)
	failures := s.pendingFailures.Swap(0)

	seconds := now.Sub(s.lastEmit).Seconds()
	if seconds <= 0 {
		seconds = 1
	}

	bucket := &TimeBucket{
		Timestamp:        now,
		TotalRequests:    totals.Requests,
		TotalSuccesses:   totals.Successes,
		TotalFailures:    totals.Failures,
		TotalBytes:       totals.Bytes,
		IntervalRequests: requests,
		IntervalFailures: failures,
		IntervalRPS:      float64(requests) / seconds,
		LatencyMin:       latencies.Min,
		LatencyMax:       latencies.Max,
		LatencyP50:       latencies.P50,
		LatencyP90:       latencies.P90,
		LatencyP95:       latencies.P95,
		LatencyP99:       latencies.P99,
		ActiveUsers:      activeUsers,
		Phase:            phase,
	}
	if requests > 0 {
		bucket.IntervalErrorRate = float64(failures) / float64(requests)
	}

	s.ring[s.next] = bucket
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.lastEmit = now

	return bucket
}

// Buckets returns all buckets in chronological order.
func (s *TimeBucketStore) Buckets() []*TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	out := make([]*TimeBucket, s.count)
	start := (s.next - s.count + len(s.ring)) % len(s.ring)
	for i := range out {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out
}

// Latest returns the most recent bucket, or nil if none.
func (s *TimeBucketStore) Latest() *TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}
	return s.ring[(s.next-1+len(s.ring))%len(s.ring)]
}

// Count returns the number of stored buckets.
func (s *TimeBucketStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// SteadyStateRPS returns the request rate averaged over steady-phase buckets
// and the number of such buckets.
func (s *TimeBucketStore) SteadyStateRPS() (float64, int) {
	var sum float64
	n := 0
	for _, b := range s.Buckets() {
		if b.Phase != PhaseSteady {
			continue
		}
		sum += b.IntervalRPS
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
