// Package worker runs the user classes as a Locust worker: a Locust master
// drives spawning over the boomer protocol and receives the request
// statistics.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/myzhan/boomer"
	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

// Boomer event topics.
const (
	topicSpawn = "boomer:spawn"
	topicStop  = "boomer:stop"
	topicQuit  = "boomer:quit"
)

// DefaultMasterPort is the Locust master's default worker port.
const DefaultMasterPort = 5557

// Recorder receives request results. *boomer.Boomer implements it.
type Recorder interface {
	RecordSuccess(requestType, name string, responseTime int64, responseLength int64)
	RecordFailure(requestType, name string, responseTime int64, exception string)
}

// Forward reports every request event on bus to r. Response times are in
// milliseconds and the request type is the HTTP method.
func Forward(bus *events.Bus, r Recorder) {
	bus.OnRequest(func(ev events.RequestEvent) {
		ms := ev.Duration.Milliseconds()
		if ev.Success() {
			r.RecordSuccess(ev.Method, ev.Name, ms, ev.BytesReceived)
			return
		}
		r.RecordFailure(ev.Method, ev.Name, ms, ev.Err.Error())
	})
}

// Config configures a Worker.
type Config struct {
	MasterHost string
	MasterPort int

	Bus    *events.Bus
	Logger *zap.Logger
}

// Worker connects to a Locust master and runs one boomer task per user
// class.
type Worker struct {
	cfg    Config
	test   *config.TestConfig
	pools  []*Pool
	logger *zap.Logger
	bus    *events.Bus

	scheduler *loadtest.Scheduler

	// stopTimeout bounds how long a stop waits for borrowed users: one
	// request plus a graceful logout.
	stopTimeout time.Duration

	runMu   sync.Mutex
	runID   string
	started time.Time
}

// New creates a worker for the given classes. Defaults are applied to test
// before it is validated.
func New(test *config.TestConfig, classes []loadtest.UserClass, cfg Config) (*Worker, error) {
	config.ApplyDefaults(test)
	if err := test.Validate(); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, errors.New("no user classes to run")
	}
	if cfg.MasterHost == "" {
		cfg.MasterHost = "127.0.0.1"
	}
	if cfg.MasterPort == 0 {
		cfg.MasterPort = DefaultMasterPort
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	graceful := test.Settings.GracefulStop.GetDuration(loadtest.DefaultGracefulStop)
	httpCfg := engine.HTTPClientConfig(test.Settings)
	scheduler := loadtest.NewScheduler(loadtest.SessionConfig{
		BaseURL:   test.Host,
		Bus:       cfg.Bus,
		Logger:    cfg.Logger,
		UserAgent: test.Settings.UserAgent,
		Headers:   test.Settings.Headers,
		Seed:      test.Seed,
	}, httpCfg, graceful)

	w := &Worker{
		cfg:         cfg,
		test:        test,
		logger:      cfg.Logger,
		bus:         cfg.Bus,
		scheduler:   scheduler,
		stopTimeout: httpCfg.Timeout + graceful,
	}

	ids := &atomic.Int32{}
	for _, class := range classes {
		if err := class.Validate(); err != nil {
			return nil, err
		}
		w.pools = append(w.pools, NewPool(class, scheduler.NewSession, ids, graceful))
	}

	return w, nil
}

// Pools returns the per-class session pools.
func (w *Worker) Pools() []*Pool {
	return w.pools
}

// Tasks returns one boomer task per user class, weighted by class weight.
// Each invocation runs one task of a pooled user and its wait time.
func (w *Worker) Tasks(ctx context.Context) []*boomer.Task {
	tasks := make([]*boomer.Task, 0, len(w.pools))
	for _, pool := range w.pools {
		pool := pool
		tasks = append(tasks, &boomer.Task{
			Name:   pool.Class().Name,
			Weight: pool.Class().Weight,
			Fn:     func() { pool.RunOnce(ctx) },
		})
	}
	return tasks
}

// Drain fences every pool and logs out the idle pooled users. It returns
// how many were stopped.
func (w *Worker) Drain() int {
	var wg sync.WaitGroup
	var total atomic.Int64
	for _, pool := range w.pools {
		wg.Add(1)
		go func(p *Pool) {
			defer wg.Done()
			total.Add(int64(p.Drain()))
		}(pool)
	}
	wg.Wait()
	return int(total.Load())
}

// stopUsers drains the pools, then waits for borrowed users to finish their
// request and log out.
func (w *Worker) stopUsers() int {
	n := w.Drain()
	deadline := time.Now().Add(w.stopTimeout)
	for _, pool := range w.pools {
		if !pool.Wait(time.Until(deadline)) {
			w.logger.Warn("users still busy after stop",
				zap.String("class", pool.Class().Name),
				zap.Int("borrowed", pool.Borrowed()),
			)
		}
	}
	return n
}

// handleSpawn lifts the fence of a previous stop. The master sends a spawn
// message for every change of the user count; only the first one of a test
// starts it.
func (w *Worker) handleSpawn(workers int, spawnRate float64) {
	w.logger.Info("spawning users", zap.Int("users", workers), zap.Float64("spawn_rate", spawnRate))
	for _, pool := range w.pools {
		pool.Resume()
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.runID != "" {
		return
	}
	w.runID = uuid.NewString()
	w.started = time.Now()
	w.bus.FireTestStart(events.StartEvent{
		RunID:     w.runID,
		Host:      w.test.Host,
		Users:     workers,
		SpawnRate: spawnRate,
		StartTime: w.started,
	})
}

// handleStop logs out every user before the master's stop completes. Task
// goroutines may still call into the pools while it runs.
func (w *Worker) handleStop() {
	n := w.stopUsers()
	w.logger.Info("test stopped by master", zap.Int("logged_out", n))

	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.runID == "" {
		return
	}
	// Statistics are aggregated by the master.
	w.bus.FireTestStop(events.StopEvent{
		RunID:    w.runID,
		Host:     w.test.Host,
		Duration: time.Since(w.started),
	})
	w.runID = ""
}

// Run connects to the master and blocks until the master quits or ctx is
// cancelled. Pooled users are logged out whenever the master stops the test.
func (w *Worker) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer w.scheduler.Close()

	b := boomer.NewBoomer(w.cfg.MasterHost, w.cfg.MasterPort)
	Forward(w.bus, b)

	quit := make(chan struct{})
	var quitOnce sync.Once
	onQuit := func() {
		quitOnce.Do(func() { close(quit) })
	}

	subscriptions := []struct {
		topic string
		fn    interface{}
	}{
		{topicSpawn, w.handleSpawn},
		{topicStop, w.handleStop},
		{topicQuit, onQuit},
	}
	for _, s := range subscriptions {
		if err := boomer.Events.Subscribe(s.topic, s.fn); err != nil {
			return err
		}
	}
	defer func() {
		for _, s := range subscriptions {
			_ = boomer.Events.Unsubscribe(s.topic, s.fn)
		}
	}()

	w.logger.Info("connecting to master",
		zap.String("master_host", w.cfg.MasterHost),
		zap.Int("master_port", w.cfg.MasterPort),
		zap.String("host", w.test.Host),
	)
	b.Run(w.Tasks(runCtx)...)

	select {
	case <-ctx.Done():
		cancel()
		b.Quit()
	case <-quit:
		cancel()
	}

	n := w.stopUsers()
	w.logger.Info("worker stopped", zap.Int("logged_out", n))
	return nil
}
