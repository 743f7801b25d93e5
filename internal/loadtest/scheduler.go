package loadtest

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the given settings.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Scheduler manages the lifecycle of Virtual Users.
//
// It provides:
//   - VU spawning with one session per VU
//   - a shared HTTP client for connection pooling
//   - scale-down by stopping the most recently spawned VUs
//   - graceful shutdown coordination
type Scheduler struct {
	sessionCfg   SessionConfig
	gracefulStop time.Duration

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32

	client *http.Client
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. The session config's client is replaced
// by a shared client built from httpCfg.
func NewScheduler(sessionCfg SessionConfig, httpCfg HTTPClientConfig, gracefulStop time.Duration) *Scheduler {
	client := NewHTTPClient(httpCfg)
	sessionCfg.Client = client

	return &Scheduler{
		sessionCfg:   sessionCfg,
		gracefulStop: gracefulStop,
		vus:          make(map[int]*VirtualUser),
		client:       client,
	}
}

// Client returns the shared HTTP client.
func (s *Scheduler) Client() *http.Client {
	return s.client
}

// NewSession creates a session bound to the shared client.
func (s *Scheduler) NewSession(id int, class string) *Session {
	return NewSession(id, class, s.sessionCfg)
}

// Spawn creates a VU for class and starts it on its own goroutine.
func (s *Scheduler) Spawn(ctx context.Context, class UserClass) *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, class, s.NewSession(id, class.Name))

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.remove(id)
		vu.Run(ctx, s.gracefulStop)
	}()

	return vu
}

func (s *Scheduler) remove(id int) {
	s.vusMu.Lock()
	delete(s.vus, id)
	s.vusMu.Unlock()
}

// Count returns the number of VUs that have not been asked to stop.
func (s *Scheduler) Count() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if st := vu.GetState(); st != VUStateStopping && st != VUStateStopped {
			count++
		}
	}
	return count
}

// CountByClass returns the active VU count per user class.
func (s *Scheduler) CountByClass() map[string]int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	out := make(map[string]int)
	for _, vu := range s.vus {
		if st := vu.GetState(); st != VUStateStopping && st != VUStateStopped {
			out[vu.Class.Name]++
		}
	}
	return out
}

// StopNewest asks the n most recently spawned active VUs to stop and
// returns how many were signalled.
func (s *Scheduler) StopNewest(n int) int {
	if n <= 0 {
		return 0
	}

	s.vusMu.RLock()
	active := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if st := vu.GetState(); st != VUStateStopping && st != VUStateStopped {
			active = append(active, vu)
		}
	}
	s.vusMu.RUnlock()

	sort.Slice(active, func(i, j int) bool { return active[i].ID > active[j].ID })
	if n > len(active) {
		n = len(active)
	}
	for _, vu := range active[:n] {
		vu.RequestStop()
	}
	return n
}

// StopAll asks every VU to stop.
func (s *Scheduler) StopAll() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Wait blocks until every VU goroutine has exited or timeout elapses.
// It returns false on timeout.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Close releases idle connections of the shared client.
func (s *Scheduler) Close() {
	s.client.CloseIdleConnections()
}
