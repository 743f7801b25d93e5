package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

func request(name, method string, d time.Duration, err error, bytes int64) events.RequestEvent {
	return events.RequestEvent{
		Name:          name,
		Method:        method,
		Duration:      d,
		BytesReceived: bytes,
		Err:           err,
	}
}

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	snapshot := engine.Snapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
}

func TestEngine_Record(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	failure := &events.StatusError{StatusCode: 500}
	engine.Record(request("send message", http.MethodPost, 10*time.Millisecond, nil, 1000))
	engine.Record(request("send message", http.MethodPost, 20*time.Millisecond, nil, 2000))
	engine.Record(request("send message", http.MethodPost, 30*time.Millisecond, failure, 500))

	snapshot := engine.Snapshot()

	if snapshot.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 3500 {
		t.Errorf("TotalBytes = %d, want 3500", snapshot.TotalBytes)
	}
	if snapshot.ErrorRate < 0.33 || snapshot.ErrorRate > 0.34 {
		t.Errorf("ErrorRate = %f, want ~0.333", snapshot.ErrorRate)
	}
}

func TestEngine_LatencyStats(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 1; i <= 10; i++ {
		engine.Record(request("r", http.MethodGet, time.Duration(i*10)*time.Millisecond, nil, 0))
	}

	lat := engine.Snapshot().Latency
	tolerance := time.Millisecond

	check := func(name string, got, want time.Duration) {
		t.Helper()
		if got < want-tolerance || got > want+tolerance {
			t.Errorf("%s = %v, want ~%v", name, got, want)
		}
	}

	check("Min", lat.Min, 10*time.Millisecond)
	check("Max", lat.Max, 100*time.Millisecond)
	check("Mean", lat.Mean, 55*time.Millisecond)
	check("P50", lat.P50, 50*time.Millisecond)
	check("P90", lat.P90, 90*time.Millisecond)
	if lat.Count != 10 {
		t.Errorf("Count = %d, want 10", lat.Count)
	}
}

func TestEngine_RequestStats(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.Record(request("user login", http.MethodPost, 5*time.Millisecond, nil, 100))
	engine.Record(request("list friends", http.MethodGet, 8*time.Millisecond, nil, 10))
	engine.Record(request("list friends", http.MethodGet, 12*time.Millisecond, errors.New("boom"), 0))
	engine.Record(request("list friends", http.MethodGet, 10*time.Millisecond, nil, 10))

	stats := engine.RequestStats()
	if len(stats) != 2 {
		t.Fatalf("RequestStats() returned %d entries, want 2", len(stats))
	}

	friends := stats[0]
	if friends.Name != "list friends" || friends.Method != http.MethodGet {
		t.Fatalf("first entry = %s %s, want GET list friends", friends.Method, friends.Name)
	}
	if friends.Requests != 3 || friends.Failures != 1 || friends.Bytes != 20 {
		t.Errorf("list friends stats = %+v", friends)
	}
	if friends.Latency.Count != 3 {
		t.Errorf("list friends latency count = %d", friends.Latency.Count)
	}
	if r := friends.FailureRate(); r < 0.33 || r > 0.34 {
		t.Errorf("FailureRate() = %f", r)
	}

	login := stats[1]
	if login.Name != "user login" || login.Requests != 1 || login.Failures != 0 {
		t.Errorf("user login stats = %+v", login)
	}
	if (RequestStats{}).FailureRate() != 0 {
		t.Error("empty FailureRate() should be 0")
	}
}

func TestEngine_Subscribe(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	bus := events.NewBus()
	engine.Subscribe(bus)

	bus.FireRequest(request("user info", http.MethodGet, time.Millisecond, nil, 1))
	bus.FireRequest(request("user info", http.MethodGet, time.Millisecond, errors.New("x"), 1))

	stats := engine.Stats()
	if stats.TotalRequests != 2 || stats.TotalFailures != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEngine_StatsExactLatency(t *testing.T) {
	engine := NewEngineWithConfig(EngineConfig{HistogramMax: int64(time.Minute / time.Microsecond)})
	defer engine.Stop()

	// Values the histogram would round or clamp.
	engine.Record(request("send message", http.MethodPost, 1234567*time.Nanosecond, nil, 0))
	engine.Record(request("send message", http.MethodPost, 2345679*time.Nanosecond, nil, 0))
	engine.Record(request("user info", http.MethodGet, 90*time.Minute+7*time.Nanosecond, nil, 0))

	stats := engine.Stats()
	want := 90*time.Minute + 7*time.Nanosecond
	if stats.MaxResponseTime != want {
		t.Errorf("MaxResponseTime = %v, want %v", stats.MaxResponseTime, want)
	}
	sum := 1234567*time.Nanosecond + 2345679*time.Nanosecond + want
	if stats.AvgResponseTime != sum/3 {
		t.Errorf("AvgResponseTime = %v, want %v", stats.AvgResponseTime, sum/3)
	}
	if stats.TotalRequests != 3 || stats.RPS <= 0 {
		t.Errorf("Stats() = %+v", stats)
	}

	idle := NewEngine()
	defer idle.Stop()
	if empty := idle.Stats(); empty.AvgResponseTime != 0 || empty.MaxResponseTime != 0 {
		t.Errorf("empty Stats() = %+v", empty)
	}
}

func TestEngine_Phase(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.SetPhase(PhaseRampUp)
	engine.SetPhase(PhaseRampUp)
	engine.SetPhase(PhaseSteady)

	if engine.GetPhase() != PhaseSteady {
		t.Errorf("GetPhase() = %v, want steady", engine.GetPhase())
	}

	history := engine.PhaseHistory()
	if len(history) != 2 {
		t.Fatalf("PhaseHistory() has %d entries, want 2", len(history))
	}
	if history[0].Phase != PhaseRampUp || history[1].Phase != PhaseSteady {
		t.Errorf("PhaseHistory() = %+v", history)
	}
}

func TestEngine_ActiveUsers(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.SetActiveUsers(42)
	if engine.ActiveUsers() != 42 {
		t.Errorf("ActiveUsers() = %d, want 42", engine.ActiveUsers())
	}
	if engine.Snapshot().ActiveUsers != 42 {
		t.Error("Snapshot().ActiveUsers not updated")
	}
}

func TestEngine_BucketsAndSteadyRPS(t *testing.T) {
	engine := NewEngineWithConfig(EngineConfig{BucketInterval: 20 * time.Millisecond, MaxBuckets: 100})

	engine.SetPhase(PhaseSteady)
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		engine.Record(request("r", http.MethodGet, time.Millisecond, nil, 0))
		time.Sleep(2 * time.Millisecond)
	}
	engine.Stop()

	series := engine.TimeSeries()
	if len(series) < 5 {
		t.Fatalf("TimeSeries() has %d buckets, want >= 5", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Before(series[i-1].Timestamp) {
			t.Fatal("buckets are not chronological")
		}
	}
	if last := engine.LatestBucket(); last != series[len(series)-1] {
		t.Error("LatestBucket() is not the last bucket")
	}

	snap := engine.Snapshot()
	if snap.SteadyStateRPS <= 0 {
		t.Errorf("SteadyStateRPS = %f, want > 0", snap.SteadyStateRPS)
	}
	if snap.RPS != snap.SteadyStateRPS {
		t.Errorf("RPS = %f, want steady-state %f", snap.RPS, snap.SteadyStateRPS)
	}
}

func TestEngine_StopFreezesElapsed(t *testing.T) {
	engine := NewEngine()
	engine.Stop()
	engine.Stop()

	first := engine.Snapshot().Elapsed
	time.Sleep(20 * time.Millisecond)
	if second := engine.Snapshot().Elapsed; second != first {
		t.Errorf("Elapsed changed after Stop(): %v -> %v", first, second)
	}
}

func TestTimeBucketStore_Ring(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := 1; i <= 5; i++ {
		store.RecordRequest(i%2 == 0)
		store.CreateBucket(Totals{Requests: int64(i)}, LatencyPercentiles{}, i, PhaseSteady)
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	buckets := store.Buckets()
	for i, b := range buckets {
		if want := int64(i + 3); b.TotalRequests != want {
			t.Errorf("bucket %d TotalRequests = %d, want %d", i, b.TotalRequests, want)
		}
		if b.IntervalRequests != 1 {
			t.Errorf("bucket %d IntervalRequests = %d, want 1", i, b.IntervalRequests)
		}
	}
	if buckets[0].IntervalErrorRate != 1 || buckets[1].IntervalErrorRate != 0 {
		t.Errorf("interval error rates = %f, %f", buckets[0].IntervalErrorRate, buckets[1].IntervalErrorRate)
	}
	if store.Latest().ActiveUsers != 5 {
		t.Errorf("Latest().ActiveUsers = %d, want 5", store.Latest().ActiveUsers)
	}
}

func TestTimeBucketStore_Empty(t *testing.T) {
	store := NewTimeBucketStore(0)

	if store.Buckets() != nil || store.Latest() != nil {
		t.Error("empty store should return nil")
	}
	if rps, n := store.SteadyStateRPS(); rps != 0 || n != 0 {
		t.Errorf("SteadyStateRPS() = %f, %d", rps, n)
	}
}
