// Package events provides the lifecycle event bus for load test runs.
//
// Three kinds of events are published:
//   - test start, once per run before any virtual user is spawned
//   - test stop, once per run after all virtual users have stopped
//   - request, after every HTTP request completes
//
// Handlers run synchronously on the publishing goroutine. Request handlers
// are called from many virtual users at once and must be safe for
// concurrent use.
package events

import (
	"fmt"
	"sync"
	"time"
)

// RequestEvent describes one completed HTTP request.
type RequestEvent struct {
	// Method is the HTTP method (GET, POST, ...)
	Method string

	// Name is the display name used for statistics grouping
	Name string

	// URL is the full request URL
	URL string

	// StatusCode is 0 when no response was received
	StatusCode int

	StartTime     time.Time
	Duration      time.Duration
	BytesReceived int64

	// Err is set for transport errors and for responses with status >= 400
	Err error
}

// Success reports whether the request completed without error.
func (e RequestEvent) Success() bool {
	return e.Err == nil
}

// StatusError is reported for responses with a failing status code.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// StartEvent is published when a run begins.
type StartEvent struct {
	RunID string
	Host  string

	// Users is the configured user count; 0 when a load shape drives the count
	Users int

	SpawnRate   float64
	ShapeDriven bool
	StartTime   time.Time
}

// Stats are the aggregate statistics published with StopEvent.
type Stats struct {
	TotalRequests   int64
	TotalFailures   int64
	AvgResponseTime time.Duration
	MaxResponseTime time.Duration
	RPS             float64
}

// StopEvent is published when a run ends.
type StopEvent struct {
	RunID    string
	Host     string
	Duration time.Duration
	Stats    Stats
}

// Bus dispatches lifecycle events to subscribed handlers.
//
// The zero value is ready to use.
type Bus struct {
	mu      sync.RWMutex
	start   []func(StartEvent)
	stop    []func(StopEvent)
	request []func(RequestEvent)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnTestStart subscribes fn to test start events.
func (b *Bus) OnTestStart(fn func(StartEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = append(b.start, fn)
}

// OnTestStop subscribes fn to test stop events.
func (b *Bus) OnTestStop(fn func(StopEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop = append(b.stop, fn)
}

// OnRequest subscribes fn to request events.
func (b *Bus) OnRequest(fn func(RequestEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.request = append(b.request, fn)
}

// FireTestStart publishes a test start event.
func (b *Bus) FireTestStart(ev StartEvent) {
	b.mu.RLock()
	handlers := b.start
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// FireTestStop publishes a test stop event.
func (b *Bus) FireTestStop(ev StopEvent) {
	b.mu.RLock()
	handlers := b.stop
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// FireRequest publishes a request event.
func (b *Bus) FireRequest(ev RequestEvent) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := b.request
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
