package events

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBus_DispatchesInOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.OnTestStart(func(StartEvent) { order = append(order, "start-1") })
	bus.OnTestStart(func(StartEvent) { order = append(order, "start-2") })
	bus.OnTestStop(func(StopEvent) { order = append(order, "stop") })

	bus.FireTestStart(StartEvent{Host: "http://localhost:8080"})
	bus.FireTestStop(StopEvent{})

	want := []string{"start-1", "start-2", "stop"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBus_ConcurrentRequests(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	bus.OnRequest(func(RequestEvent) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.FireRequest(RequestEvent{Name: "send message"})
			}
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 1000 {
		t.Errorf("request handler calls = %d, want 1000", got)
	}
}

func TestBus_NilFireRequest(t *testing.T) {
	var bus *Bus
	bus.FireRequest(RequestEvent{})
}

func TestStatusError(t *testing.T) {
	err := &StatusError{StatusCode: 502, Status: "502 Bad Gateway"}
	if err.Error() != "HTTP 502 Bad Gateway" {
		t.Errorf("Error() = %q", err.Error())
	}

	err = &StatusError{StatusCode: 404}
	if err.Error() != "HTTP 404" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRegisterLifecycleObservers_StartBanner(t *testing.T) {
	tests := []struct {
		name  string
		event StartEvent
		users string
	}{
		{"fixed users", StartEvent{Host: "http://im.local", Users: 20}, "Users:       20"},
		{"shape driven", StartEvent{Host: "http://im.local", Users: 20, ShapeDriven: true}, "Users:       unknown"},
		{"zero users", StartEvent{Host: "http://im.local"}, "Users:       unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			bus := NewBus()
			RegisterLifecycleObservers(bus, &buf, nil)

			bus.FireTestStart(tt.event)

			out := buf.String()
			for _, want := range []string{"Fleets IM load test starting", "Target host: http://im.local", tt.users} {
				if !strings.Contains(out, want) {
					t.Errorf("banner missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRegisterLifecycleObservers_StopSummary(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus()
	RegisterLifecycleObservers(bus, &buf, nil)

	bus.FireTestStop(StopEvent{Stats: Stats{
		TotalRequests:   1200,
		TotalFailures:   3,
		AvgResponseTime: 12500 * time.Microsecond,
		MaxResponseTime: 2 * time.Second,
		RPS:             19.987,
	}})

	out := buf.String()
	for _, want := range []string{
		"Fleets IM load test finished",
		"Total requests:    1200",
		"Failed requests:   3",
		"Avg response time: 12.50ms",
		"Max response time: 2000.00ms",
		"RPS:               19.99",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRegisterLifecycleObservers_NoRequests(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus()
	RegisterLifecycleObservers(bus, &buf, nil)

	bus.FireTestStop(StopEvent{})

	out := buf.String()
	if !strings.Contains(out, "Fleets IM load test finished") {
		t.Errorf("summary missing title:\n%s", out)
	}
	if strings.Contains(out, "Total requests") {
		t.Errorf("summary should omit statistics without requests:\n%s", out)
	}
}

func TestRegisterLifecycleObservers_FailedRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := NewBus()
	RegisterLifecycleObservers(bus, &bytes.Buffer{}, zap.New(core))

	bus.FireRequest(RequestEvent{Method: "GET", Name: "friend list", StatusCode: 200})
	bus.FireRequest(RequestEvent{Method: "POST", Name: "send message", Err: errors.New("connection reset")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["name"] != "send message" || fields["method"] != "POST" {
		t.Errorf("fields = %v", fields)
	}
	if fields["error"] != "connection reset" {
		t.Errorf("error field = %v", fields["error"])
	}
}
