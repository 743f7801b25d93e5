// Package engine runs a load test: it spawns virtual users of the configured
// classes, follows the target user count (fixed or shape-driven), collects
// metrics and publishes the run lifecycle on the event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
	"github.com/wesleyorama2/imload/internal/loadtest/shape"
)

// ErrAlreadyRunning is returned by Run when the engine has already been used.
var ErrAlreadyRunning = errors.New("engine is already running")

// DefaultTickInterval is how often the load shape is queried.
const DefaultTickInterval = time.Second

// Stop reasons reported in TestResult.
const (
	StopReasonRunTime     = "run time elapsed"
	StopReasonShape       = "load shape finished"
	StopReasonInterrupted = "interrupted"
	StopReasonStopped     = "stopped"
)

// TestResult contains the complete result of a run.
type TestResult struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	Host      string        `json:"host"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	StopReason string `json:"stopReason"`

	// Spawned counts the users started per class over the whole run
	Spawned map[string]int `json:"spawned"`

	// PeakUsers is the highest number of concurrently running users
	PeakUsers int `json:"peakUsers"`

	Metrics    *metrics.Snapshot      `json:"metrics"`
	Requests   []metrics.RequestStats `json:"requests"`
	TimeSeries []*metrics.TimeBucket  `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange  `json:"phases,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus publishes lifecycle and request events on bus.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithShape drives the user count with s instead of the configured shape.
func WithShape(s shape.LoadShape) Option {
	return func(e *Engine) { e.shape = s }
}

// WithExporter serves live metrics through exp for the duration of the run.
func WithExporter(exp *metrics.PrometheusExporter) Option {
	return func(e *Engine) { e.exporter = exp }
}

// WithTickInterval sets how often the load shape is queried.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithMetricsConfig configures the metrics engine.
func WithMetricsConfig(cfg metrics.EngineConfig) Option {
	return func(e *Engine) { e.metricsConfig = cfg }
}

// Engine orchestrates a single load test run.
//
// It coordinates:
//   - spawning users at the spawn rate and assigning them to classes
//   - following the load shape, if any
//   - metrics collection and threshold evaluation
//   - graceful shutdown of every user
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("imload.yaml")
//	classes, _ := imuser.Classes(cfg)
//	eng, _ := engine.New(cfg, classes)
//	result, _ := eng.Run(ctx)
type Engine struct {
	config  *config.TestConfig
	classes []loadtest.UserClass
	shape   shape.LoadShape

	bus           *events.Bus
	logger        *zap.Logger
	exporter      *metrics.PrometheusExporter
	tickInterval  time.Duration
	metricsConfig metrics.EngineConfig

	metrics   *metrics.Engine
	scheduler *loadtest.Scheduler
	picker    *classPicker
	limiter   *rate.Limiter

	target    atomic.Int64
	retarget  chan struct{}
	peakUsers atomic.Int64

	spawned   map[string]int
	spawnedMu sync.Mutex

	used     atomic.Bool
	cancel   context.CancelFunc
	cancelMu sync.Mutex
	stopped  atomic.Bool
}

// New creates an engine for cfg. Defaults are applied to cfg before it is
// validated. classes must hold one entry per class in cfg.Classes.
func New(cfg *config.TestConfig, classes []loadtest.UserClass, opts ...Option) (*Engine, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if len(classes) == 0 {
		return nil, errors.New("no user classes to run")
	}
	for _, c := range classes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		config:        cfg,
		classes:       classes,
		tickInterval:  DefaultTickInterval,
		metricsConfig: metrics.DefaultEngineConfig(),
		retarget:      make(chan struct{}, 1),
		spawned:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.bus == nil {
		e.bus = events.NewBus()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tickInterval <= 0 {
		e.tickInterval = DefaultTickInterval
	}
	if e.shape == nil {
		s, err := shape.FromConfig(cfg.Shape)
		if err != nil {
			return nil, fmt.Errorf("invalid load shape: %w", err)
		}
		e.shape = s
	}

	return e, nil
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Metrics returns the metrics engine of the current run, or nil before Run.
func (e *Engine) Metrics() *metrics.Engine {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	return e.metrics
}

// TargetUsers returns the user count the engine is converging on.
func (e *Engine) TargetUsers() int {
	return int(e.target.Load())
}

// Stop ends a running test as if its run time had elapsed.
func (e *Engine) Stop() {
	e.stopped.Store(true)

	e.cancelMu.Lock()
	cancel := e.cancel
	e.cancelMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Run executes the test and blocks until every user has stopped.
//
// Users stop gracefully when the run time elapses, the shape finishes or
// Stop is called: the current task completes, then the on-stop hook runs.
// Cancelling ctx also aborts in-flight requests. In every case the on-stop
// hooks run, bounded by the graceful stop timeout.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	cfg := e.config
	runID := uuid.NewString()

	m := metrics.NewEngineWithConfig(e.metricsConfig)
	defer m.Stop()
	m.Subscribe(e.bus)

	if e.exporter != nil {
		e.exporter.Subscribe(e.bus)
		if err := e.exporter.Start(); err != nil {
			return nil, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = e.exporter.Stop(shutdownCtx)
		}()
	}

	graceful := cfg.Settings.GracefulStop.GetDuration(loadtest.DefaultGracefulStop)
	httpCfg := HTTPClientConfig(cfg.Settings)

	e.scheduler = loadtest.NewScheduler(loadtest.SessionConfig{
		BaseURL:   cfg.Host,
		Bus:       e.bus,
		Logger:    e.logger,
		UserAgent: cfg.Settings.UserAgent,
		Headers:   cfg.Settings.Headers,
		Seed:      cfg.Seed,
	}, httpCfg, graceful)
	defer e.scheduler.Close()

	e.picker = newClassPicker(e.classes)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if runTime := time.Duration(cfg.RunTime); runTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, runTime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.cancelMu.Lock()
	e.metrics = m
	e.cancel = cancel
	e.cancelMu.Unlock()
	if e.stopped.Load() {
		cancel()
	}

	startTime := time.Now()
	e.bus.FireTestStart(events.StartEvent{
		RunID:       runID,
		Host:        cfg.Host,
		Users:       e.configuredUsers(),
		SpawnRate:   cfg.SpawnRate,
		ShapeDriven: e.shape != nil,
		StartTime:   startTime,
	})
	m.MarkStart()

	e.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("host", cfg.Host),
		zap.Int("classes", len(e.classes)),
	)

	initial := rate.Limit(cfg.SpawnRate)
	if e.shape != nil {
		initial = rate.Inf
	}
	e.limiter = rate.NewLimiter(initial, 1)

	spawnerDone := make(chan struct{})
	go func() {
		defer close(spawnerDone)
		e.spawnLoop(runCtx, ctx)
	}()

	shapeFinished := false
	if e.shape != nil {
		shapeFinished = e.followShape(runCtx, startTime)
	} else {
		e.setTarget(cfg.Users, cfg.SpawnRate)
		<-runCtx.Done()
	}

	stopReason := e.stopReason(ctx, runCtx, shapeFinished)
	cancel()
	<-spawnerDone

	e.logger.Info("stopping users", zap.String("reason", stopReason), zap.Int("users", e.scheduler.Count()))
	m.SetPhase(metrics.PhaseRampDown)
	e.scheduler.StopAll()
	if !e.scheduler.Wait(graceful + httpCfg.Timeout) {
		e.logger.Warn("users did not stop in time", zap.Duration("timeout", graceful+httpCfg.Timeout))
	}
	e.publishActiveUsers()

	m.SetPhase(metrics.PhaseDone)
	m.Stop()

	endTime := time.Now()
	snapshot := m.Snapshot()

	e.bus.FireTestStop(events.StopEvent{
		RunID:    runID,
		Host:     cfg.Host,
		Duration: snapshot.Elapsed,
		Stats:    m.Stats(),
	})

	thresholds := EvaluateThresholds(cfg.Thresholds, snapshot)
	passed := true
	for _, tr := range thresholds {
		if !tr.Passed {
			passed = false
			break
		}
	}

	return &TestResult{
		RunID:      runID,
		Name:       cfg.Name,
		Host:       cfg.Host,
		StartTime:  startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(startTime),
		StopReason: stopReason,
		Spawned:    e.spawnedCopy(),
		PeakUsers:  int(e.peakUsers.Load()),
		Metrics:    snapshot,
		Requests:   m.RequestStats(),
		TimeSeries: m.TimeSeries(),
		Phases:     m.PhaseHistory(),
		Passed:     passed,
		Thresholds: thresholds,
	}, nil
}

// HTTPClientConfig derives the shared HTTP client settings from s.
func HTTPClientConfig(s config.GlobalSettings) loadtest.HTTPClientConfig {
	httpCfg := loadtest.DefaultHTTPClientConfig()
	httpCfg.Timeout = s.Timeout.GetDuration(httpCfg.Timeout)
	httpCfg.MaxConnsPerHost = s.MaxConnectionsPerHost
	httpCfg.InsecureSkipVerify = s.InsecureSkipVerify
	if s.MaxIdleConnsPerHost > 0 {
		httpCfg.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	return httpCfg
}

func (e *Engine) configuredUsers() int {
	if e.shape != nil {
		return 0
	}
	return e.config.Users
}

func (e *Engine) stopReason(parent, runCtx context.Context, shapeFinished bool) string {
	switch {
	case shapeFinished:
		return StopReasonShape
	case parent.Err() != nil:
		return StopReasonInterrupted
	case e.stopped.Load():
		return StopReasonStopped
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return StopReasonRunTime
	default:
		return StopReasonStopped
	}
}

// followShape applies the shape every tick until it finishes (returning true)
// or runCtx is done.
func (e *Engine) followShape(runCtx context.Context, start time.Time) bool {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		tick, ok := e.shape.Tick(time.Since(start))
		if !ok {
			return true
		}
		e.setTarget(tick.Users, tick.SpawnRate)

		select {
		case <-runCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// setTarget changes the desired user count and spawn rate.
func (e *Engine) setTarget(users int, spawnRate float64) {
	if users < 0 {
		users = 0
	}

	prev := e.target.Swap(int64(users))
	if prev != int64(users) {
		e.logger.Info("ramping users",
			zap.Int("target", users),
			zap.Float64("spawn_rate", spawnRate),
		)
	}

	if spawnRate > 0 {
		e.limiter.SetLimit(rate.Limit(spawnRate))
	}

	select {
	case e.retarget <- struct{}{}:
	default:
	}
}

// spawnLoop converges the running user count on the target until runCtx is
// done. Users run on userCtx so that a graceful stop does not abort requests.
func (e *Engine) spawnLoop(runCtx, userCtx context.Context) {
	m := e.metrics
	reached := false

	for {
		current := e.scheduler.Count()
		target := int(e.target.Load())

		switch {
		case current > target:
			m.SetPhase(metrics.PhaseRampDown)
			e.scheduler.StopNewest(current - target)
			e.publishActiveUsers()
			continue

		case current < target:
			m.SetPhase(metrics.PhaseRampUp)
			reached = false
			if err := e.limiter.Wait(runCtx); err != nil {
				return
			}
			if e.scheduler.Count() >= int(e.target.Load()) {
				continue
			}
			class := e.picker.next()
			e.scheduler.Spawn(userCtx, class)
			e.recordSpawn(class.Name)
			e.publishActiveUsers()
			continue
		}

		if !reached && target > 0 {
			reached = true
			m.SetPhase(metrics.PhaseSteady)
			e.logger.Info("all users spawned",
				zap.Any("classes", e.scheduler.CountByClass()),
				zap.Int("total", current),
			)
		}

		select {
		case <-runCtx.Done():
			return
		case <-e.retarget:
		}
	}
}

func (e *Engine) recordSpawn(class string) {
	e.spawnedMu.Lock()
	e.spawned[class]++
	e.spawnedMu.Unlock()
}

func (e *Engine) spawnedCopy() map[string]int {
	e.spawnedMu.Lock()
	defer e.spawnedMu.Unlock()

	out := make(map[string]int, len(e.spawned))
	for k, v := range e.spawned {
		out[k] = v
	}
	return out
}

func (e *Engine) publishActiveUsers() {
	n := e.scheduler.Count()
	e.metrics.SetActiveUsers(n)
	if e.exporter != nil {
		e.exporter.SetActiveUsers(n)
	}

	for {
		peak := e.peakUsers.Load()
		if int64(n) <= peak || e.peakUsers.CompareAndSwap(peak, int64(n)) {
			return
		}
	}
}
