package loadtest

import (
	"context"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is created but not started.
	VUStateIdle VUState = iota
	// VUStateStarting indicates the VU is running its on-start hook.
	VUStateStarting
	// VUStateRunning indicates the VU is running tasks.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has run its on-stop hook and exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateStarting:
		return "starting"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultGracefulStop bounds the on-stop hook once the run is over.
const DefaultGracefulStop = 30 * time.Second

// VirtualUser is one simulated user running a behavior.
//
// Tasks run sequentially; a VU never has more than one request in flight.
type VirtualUser struct {
	ID    int
	Class UserClass

	Session *Session

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

// NewVirtualUser creates a VU for class bound to session.
func NewVirtualUser(id int, class UserClass, session *Session) *VirtualUser {
	return &VirtualUser{
		ID:      id,
		Class:   class,
		Session: session,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of tasks run so far.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Run executes the VU lifecycle: on-start, the task loop, on-stop.
//
// The loop ends when RequestStop is called or ctx is cancelled. The on-stop
// hook runs with a context detached from ctx and bounded by gracefulStop so
// that logout still happens after an interrupt.
func (vu *VirtualUser) Run(ctx context.Context, gracefulStop time.Duration) {
	defer vu.markStopped()

	if gracefulStop <= 0 {
		gracefulStop = DefaultGracefulStop
	}

	behavior := vu.Class.Behavior
	s := vu.Session

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStarting))
	behavior.OnStart(ctx, s)
	vu.state.CompareAndSwap(int32(VUStateStarting), int32(VUStateRunning))

	vu.loop(ctx, behavior)

	vu.state.Store(int32(VUStateStopping))
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gracefulStop)
	defer cancel()
	behavior.OnStop(stopCtx, s)
}

func (vu *VirtualUser) loop(ctx context.Context, behavior Behavior) {
	tasks := behavior.Tasks()
	wait := behavior.WaitTime()

	for {
		if vu.stopping(ctx) {
			return
		}

		task := tasks.Pick(vu.Session.Faker)
		vu.iteration.Add(1)
		task.Fn(ctx, vu.Session)

		if vu.stopping(ctx) {
			return
		}

		if wait == nil {
			continue
		}
		if !vu.sleep(ctx, wait(vu.Session.Faker)) {
			return
		}
	}
}

func (vu *VirtualUser) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d; it returns false when interrupted by a stop.
func (vu *VirtualUser) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// RequestStop signals the VU to stop after its current task.
func (vu *VirtualUser) RequestStop() {
	for {
		current := vu.state.Load()
		if VUState(current) == VUStateStopping || VUState(current) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(current, int32(VUStateStopping)) {
			close(vu.stopCh)
			return
		}
	}
}

// Done returns a channel closed when the VU has fully stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
