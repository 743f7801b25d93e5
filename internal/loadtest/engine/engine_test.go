package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
	"github.com/wesleyorama2/imload/internal/loadtest/imuser"
	"github.com/wesleyorama2/imload/internal/loadtest/shape"
)

// fleets counts requests per path.
type fleets struct {
	mu   sync.Mutex
	hits map[string]int
}

func newFleets(t *testing.T) (*fleets, *httptest.Server) {
	t.Helper()

	f := &fleets{hits: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == imuser.PathLogin {
			_, _ = w.Write([]byte(`{"code":200,"data":{"token":"tok","userId":7}}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{}}`))
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fleets) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func testConfig(host string, classes map[string]int) *config.TestConfig {
	cfg := &config.TestConfig{
		Host:      host,
		Users:     4,
		SpawnRate: 1000,
		RunTime:   config.Duration(400 * time.Millisecond),
		Classes:   classes,
		Seed:      1,
		IMUser: config.IMUserConfig{
			MinWait: config.Duration(5 * time.Millisecond),
			MaxWait: config.Duration(10 * time.Millisecond),
		},
		AdminUser: config.AdminUserConfig{
			MinWait: config.Duration(5 * time.Millisecond),
			MaxWait: config.Duration(10 * time.Millisecond),
		},
		Settings: config.GlobalSettings{
			GracefulStop: config.Duration(2 * time.Second),
			Timeout:      config.Duration(2 * time.Second),
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func newEngine(t *testing.T, cfg *config.TestConfig, opts ...engine.Option) *engine.Engine {
	t.Helper()

	classes, err := imuser.Classes(cfg)
	require.NoError(t, err)

	eng, err := engine.New(cfg, classes, opts...)
	require.NoError(t, err)
	return eng
}

func TestEngine_SpawnsUsersByClassWeight(t *testing.T) {
	f, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{
		config.ClassIMUser:    1,
		config.ClassAdminUser: 1,
	})

	result, err := newEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{config.ClassIMUser: 2, config.ClassAdminUser: 2}, result.Spawned)
	assert.Equal(t, 4, result.PeakUsers)
	assert.Equal(t, engine.StopReasonRunTime, result.StopReason)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, 2, f.count(imuser.PathLogin))
	assert.Equal(t, 2, f.count(imuser.PathLogout), "every logged-in user logs out once")
	assert.Positive(t, f.count(imuser.PathUserList))

	assert.Positive(t, result.Metrics.TotalRequests)
	assert.Zero(t, result.Metrics.FailedRequests)
	assert.Zero(t, result.Metrics.ActiveUsers)
	assert.NotEmpty(t, result.Requests)
	assert.True(t, result.Passed)
}

func TestEngine_UnevenClassWeights(t *testing.T) {
	_, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{
		config.ClassIMUser:    3,
		config.ClassAdminUser: 1,
	})
	cfg.Users = 8
	cfg.RunTime = config.Duration(200 * time.Millisecond)

	result, err := newEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, result.Spawned[config.ClassIMUser])
	assert.Equal(t, 2, result.Spawned[config.ClassAdminUser])
}

func TestEngine_LifecycleEvents(t *testing.T) {
	_, server := newFleets(t)

	bus := events.NewBus()
	var starts, stops atomic.Int32
	var startEv events.StartEvent
	var stopEv events.StopEvent
	bus.OnTestStart(func(ev events.StartEvent) {
		starts.Add(1)
		startEv = ev
	})
	bus.OnTestStop(func(ev events.StopEvent) {
		stops.Add(1)
		stopEv = ev
	})

	cfg := testConfig(server.URL, map[string]int{config.ClassIMUser: 1})
	cfg.RunTime = config.Duration(200 * time.Millisecond)

	result, err := newEngine(t, cfg, engine.WithBus(bus)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), stops.Load())

	assert.Equal(t, server.URL, startEv.Host)
	assert.Equal(t, 4, startEv.Users)
	assert.False(t, startEv.ShapeDriven)
	assert.Equal(t, result.RunID, startEv.RunID)

	assert.Equal(t, result.RunID, stopEv.RunID)
	assert.Equal(t, result.Metrics.TotalRequests, stopEv.Stats.TotalRequests)
	assert.Equal(t, result.Metrics.FailedRequests, stopEv.Stats.TotalFailures)
}

func TestEngine_StepShapeStopsRun(t *testing.T) {
	f, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassIMUser: 1})
	cfg.RunTime = 0

	step := &shape.StepLoadShape{
		StepTime:  100 * time.Millisecond,
		StepLoad:  2,
		SpawnRate: 1000,
		TimeLimit: 390 * time.Millisecond,
	}

	bus := events.NewBus()
	var shapeDriven atomic.Bool
	bus.OnTestStart(func(ev events.StartEvent) { shapeDriven.Store(ev.ShapeDriven) })

	eng := newEngine(t, cfg,
		engine.WithBus(bus),
		engine.WithShape(step),
		engine.WithTickInterval(10*time.Millisecond),
	)

	done := make(chan struct{})
	var result *engine.TestResult
	go func() {
		defer close(done)
		var err error
		result, err = eng.Run(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shape did not stop the run")
	}

	assert.True(t, shapeDriven.Load())
	assert.Equal(t, engine.StopReasonShape, result.StopReason)
	assert.Equal(t, 8, result.PeakUsers)
	assert.Equal(t, 8, result.Spawned[config.ClassIMUser])
	assert.Equal(t, f.count(imuser.PathLogin), f.count(imuser.PathLogout))
}

// scriptedShape returns users[i] during the i-th window of width step.
type scriptedShape struct {
	step  time.Duration
	users []int
}

func (s scriptedShape) Tick(elapsed time.Duration) (shape.Tick, bool) {
	i := int(elapsed / s.step)
	if i >= len(s.users) {
		return shape.Tick{}, false
	}
	return shape.Tick{Users: s.users[i], SpawnRate: 1000}, true
}

func TestEngine_ShapeScalesDown(t *testing.T) {
	f, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassIMUser: 1})
	cfg.RunTime = 0

	eng := newEngine(t, cfg,
		engine.WithShape(scriptedShape{step: 150 * time.Millisecond, users: []int{4, 1}}),
		engine.WithTickInterval(10*time.Millisecond),
	)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StopReasonShape, result.StopReason)
	assert.Equal(t, 4, result.PeakUsers)
	assert.Equal(t, 4, result.Spawned[config.ClassIMUser], "scaling down must not respawn users")
	assert.Equal(t, 4, f.count(imuser.PathLogout))
}

func TestEngine_ContextCancelStillLogsOut(t *testing.T) {
	f, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassIMUser: 1})
	cfg.Users = 2
	cfg.RunTime = 0

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := newEngine(t, cfg).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, engine.StopReasonInterrupted, result.StopReason)
	assert.Equal(t, 2, f.count(imuser.PathLogin))
	assert.Equal(t, 2, f.count(imuser.PathLogout))
}

func TestEngine_Stop(t *testing.T) {
	_, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassAdminUser: 1})
	cfg.RunTime = 0
	eng := newEngine(t, cfg)

	time.AfterFunc(100*time.Millisecond, eng.Stop)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StopReasonStopped, result.StopReason)
}

func TestEngine_RunOnlyOnce(t *testing.T) {
	_, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassAdminUser: 1})
	cfg.RunTime = config.Duration(50 * time.Millisecond)
	eng := newEngine(t, cfg)

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrAlreadyRunning)
}

func TestEngine_Thresholds(t *testing.T) {
	_, server := newFleets(t)

	cfg := testConfig(server.URL, map[string]int{config.ClassAdminUser: 1})
	cfg.RunTime = config.Duration(100 * time.Millisecond)
	cfg.Thresholds = &config.ThresholdsConfig{
		HTTPReqFailed: []string{"rate < 0.01"},
		HTTPReqs:      []string{"count > 1000000"},
	}

	result, err := newEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Thresholds, 2)
	assert.True(t, result.Thresholds[0].Passed)
	assert.False(t, result.Thresholds[1].Passed)
	assert.False(t, result.Passed)
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig("ftp://example.com", map[string]int{config.ClassIMUser: 1})
	_, err := engine.New(cfg, nil)
	var verrs *config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	cfg = testConfig("http://localhost:8080", map[string]int{config.ClassIMUser: 1})
	_, err = engine.New(cfg, nil)
	assert.Error(t, err)
}
