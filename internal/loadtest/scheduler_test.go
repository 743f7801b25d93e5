package loadtest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest"
)

func TestDefaultHTTPClientConfig(t *testing.T) {
	cfg := loadtest.DefaultHTTPClientConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxIdleConnsPerHost != 100 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 100", cfg.MaxIdleConnsPerHost)
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should default to false")
	}
}

func TestNewHTTPClient_InsecureSkipVerify(t *testing.T) {
	cfg := loadtest.DefaultHTTPClientConfig()
	cfg.InsecureSkipVerify = true
	client := loadtest.NewHTTPClient(cfg)

	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatal("Transport is nil")
	}
}

func newTestScheduler() *loadtest.Scheduler {
	return loadtest.NewScheduler(loadtest.SessionConfig{Seed: 1}, loadtest.DefaultHTTPClientConfig(), time.Second)
}

func waitForCount(s *loadtest.Scheduler, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Count() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestScheduler_SpawnAndStopAll(t *testing.T) {
	s := newTestScheduler()
	defer s.Close()

	b := newFakeBehavior(t, loadtest.Constant(10*time.Millisecond))
	class := loadtest.UserClass{Name: "fake", Weight: 1, Behavior: b}

	ctx := context.Background()
	ids := make(map[int]bool)
	for i := 0; i < 5; i++ {
		vu := s.Spawn(ctx, class)
		ids[vu.ID] = true
		if vu.Session.Class != "fake" {
			t.Errorf("session class = %q", vu.Session.Class)
		}
	}

	if len(ids) != 5 {
		t.Errorf("unique VU IDs = %d, want 5", len(ids))
	}
	if got := s.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
	if got := s.CountByClass()["fake"]; got != 5 {
		t.Errorf("CountByClass()[fake] = %d, want 5", got)
	}

	s.StopAll()
	if !s.Wait(2 * time.Second) {
		t.Fatal("VUs did not stop")
	}

	if s.Count() != 0 {
		t.Errorf("Count() after stop = %d", s.Count())
	}
	if b.starts.Load() != 5 || b.stops.Load() != 5 {
		t.Errorf("starts=%d stops=%d, want 5 and 5", b.starts.Load(), b.stops.Load())
	}
}

func TestScheduler_StopNewest(t *testing.T) {
	s := newTestScheduler()
	defer s.Close()

	b := newFakeBehavior(t, loadtest.Constant(time.Hour))
	class := loadtest.UserClass{Name: "fake", Weight: 1, Behavior: b}

	ctx := context.Background()
	var vus []*loadtest.VirtualUser
	for i := 0; i < 4; i++ {
		vus = append(vus, s.Spawn(ctx, class))
	}

	if n := s.StopNewest(2); n != 2 {
		t.Errorf("StopNewest(2) = %d", n)
	}
	if !waitForCount(s, 2) {
		t.Fatalf("Count() = %d, want 2", s.Count())
	}

	for _, vu := range vus[2:] {
		if !vu.WaitForStop(time.Second) {
			t.Errorf("VU %d did not stop", vu.ID)
		}
	}
	for _, vu := range vus[:2] {
		if st := vu.GetState(); st == loadtest.VUStateStopping || st == loadtest.VUStateStopped {
			t.Errorf("VU %d state = %v, should still run", vu.ID, st)
		}
	}

	if n := s.StopNewest(10); n != 2 {
		t.Errorf("StopNewest(10) = %d, want 2", n)
	}
	if n := s.StopNewest(0); n != 0 {
		t.Errorf("StopNewest(0) = %d", n)
	}

	if !s.Wait(2 * time.Second) {
		t.Fatal("VUs did not stop")
	}
}

func TestScheduler_ContextCancelStopsVUs(t *testing.T) {
	s := newTestScheduler()
	defer s.Close()

	b := newFakeBehavior(t, loadtest.Constant(time.Hour))
	class := loadtest.UserClass{Name: "fake", Weight: 1, Behavior: b}

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		s.Spawn(ctx, class)
	}
	cancel()

	if !s.Wait(2 * time.Second) {
		t.Fatal("VUs did not stop after cancel")
	}
	if b.stops.Load() != 3 {
		t.Errorf("stops = %d, want 3", b.stops.Load())
	}
}

func TestScheduler_WaitTimeout(t *testing.T) {
	s := newTestScheduler()
	defer s.Close()

	b := newFakeBehavior(t, loadtest.Constant(time.Hour))
	class := loadtest.UserClass{Name: "fake", Weight: 1, Behavior: b}

	s.Spawn(context.Background(), class)
	if s.Wait(50 * time.Millisecond) {
		t.Error("Wait() should time out while VU runs")
	}

	s.StopAll()
	if !s.Wait(2 * time.Second) {
		t.Error("Wait() should succeed after stop")
	}
}

func TestScheduler_ConcurrentSpawn(t *testing.T) {
	s := newTestScheduler()
	defer s.Close()

	b := newFakeBehavior(t, loadtest.Constant(time.Hour))
	class := loadtest.UserClass{Name: "fake", Weight: 1, Behavior: b}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Spawn(context.Background(), class)
		}()
	}
	wg.Wait()

	if got := s.Count(); got != 20 {
		t.Errorf("Count() = %d, want 20", got)
	}

	s.StopAll()
	if !s.Wait(2 * time.Second) {
		t.Fatal("VUs did not stop")
	}
}
