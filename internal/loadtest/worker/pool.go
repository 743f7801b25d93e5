package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest"
)

// fencedPause is how long RunOnce idles while the pool is fenced, so that
// callers looping on it do not spin.
const fencedPause = 100 * time.Millisecond

// SessionFactory creates the session for a new pooled user.
type SessionFactory func(id int, class string) *loadtest.Session

// Pool keeps the started sessions of one user class between task
// invocations. A task borrows a session, creating and starting a new one
// when none is idle, and returns it afterwards.
//
// Drain fences the pool and stops every idle session. Sessions borrowed
// before a drain are stopped when they are returned, and no session is
// started until Resume is called.
type Pool struct {
	class        loadtest.UserClass
	newSession   SessionFactory
	gracefulStop time.Duration

	nextID *atomic.Int32

	mu         sync.Mutex
	idle       []*pooled
	generation int
	created    int

	fenced bool
	fence  chan struct{} // closed while fenced

	borrowed int
	returned chan struct{} // closed when borrowed drops to zero
}

type pooled struct {
	session    *loadtest.Session
	generation int
	fence      <-chan struct{}
}

// NewPool creates a pool for class. ids is shared between pools so that
// session ids are unique across classes.
func NewPool(class loadtest.UserClass, newSession SessionFactory, ids *atomic.Int32, gracefulStop time.Duration) *Pool {
	if ids == nil {
		ids = &atomic.Int32{}
	}
	if gracefulStop <= 0 {
		gracefulStop = loadtest.DefaultGracefulStop
	}
	return &Pool{
		class:        class,
		newSession:   newSession,
		gracefulStop: gracefulStop,
		nextID:       ids,
		fence:        make(chan struct{}),
	}
}

// Class returns the pool's user class.
func (p *Pool) Class() loadtest.UserClass {
	return p.class
}

// get borrows an idle session or creates and starts a new one. It returns
// nil while the pool is fenced.
func (p *Pool) get(ctx context.Context) *pooled {
	p.mu.Lock()
	if p.fenced {
		p.mu.Unlock()
		return nil
	}
	if p.borrowed == 0 {
		p.returned = make(chan struct{})
	}
	p.borrowed++

	if n := len(p.idle); n > 0 {
		item := p.idle[n-1]
		p.idle = p.idle[:n-1]
		item.fence = p.fence
		p.mu.Unlock()
		return item
	}
	item := &pooled{generation: p.generation, fence: p.fence}
	p.created++
	p.mu.Unlock()

	item.session = p.newSession(int(p.nextID.Add(1)), p.class.Name)
	p.class.Behavior.OnStart(ctx, item.session)
	return item
}

// put returns a borrowed session. A session from before the last drain is
// stopped instead of pooled, and counts as borrowed until it has stopped.
func (p *Pool) put(item *pooled) {
	p.mu.Lock()
	if item.generation == p.generation {
		p.idle = append(p.idle, item)
		p.release()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stop(item)

	p.mu.Lock()
	p.release()
	p.mu.Unlock()
}

// release must be called with p.mu held.
func (p *Pool) release() {
	p.borrowed--
	if p.borrowed == 0 {
		close(p.returned)
	}
}

// RunOnce borrows a session, runs one task and the wait that follows it,
// then returns the session. The wait ends early when ctx is done or the
// pool is drained. While the pool is fenced RunOnce runs nothing.
func (p *Pool) RunOnce(ctx context.Context) {
	item := p.get(ctx)
	if item == nil {
		pause := time.NewTimer(fencedPause)
		defer pause.Stop()
		select {
		case <-ctx.Done():
		case <-pause.C:
		}
		return
	}
	defer p.put(item)

	if ctx.Err() != nil {
		return
	}

	_, wait := loadtest.RunOnce(ctx, p.class.Behavior, item.session)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-item.fence:
	case <-timer.C:
	}
}

// Drain fences the pool, stops every idle session and returns how many
// were stopped.
func (p *Pool) Drain() int {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.generation++
	if !p.fenced {
		p.fenced = true
		close(p.fence)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, item := range idle {
		wg.Add(1)
		go func(item *pooled) {
			defer wg.Done()
			p.stop(item)
		}(item)
	}
	wg.Wait()
	return len(idle)
}

// Resume lifts the fence set by Drain.
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fenced {
		p.fenced = false
		p.fence = make(chan struct{})
	}
}

// Fenced reports whether the pool refuses to start sessions.
func (p *Pool) Fenced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fenced
}

// Wait blocks until no session is borrowed or timeout elapses, and reports
// whether every session was returned.
func (p *Pool) Wait(timeout time.Duration) bool {
	p.mu.Lock()
	if p.borrowed == 0 {
		p.mu.Unlock()
		return true
	}
	returned := p.returned
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-returned:
		return true
	case <-timer.C:
		return false
	}
}

// Size returns the number of idle sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Borrowed returns the number of sessions currently out of the pool.
func (p *Pool) Borrowed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.borrowed
}

// Created returns how many sessions the pool has started.
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

func (p *Pool) stop(item *pooled) {
	ctx, cancel := context.WithTimeout(context.Background(), p.gracefulStop)
	defer cancel()
	p.class.Behavior.OnStop(ctx, item.session)
}
