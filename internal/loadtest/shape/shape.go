// Package shape provides load shapes: functions of elapsed run time that
// return the desired user count and spawn rate.
package shape

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/imload/internal/config"
)

// Tick is the desired state returned by a load shape.
type Tick struct {
	Users     int
	SpawnRate float64
}

// LoadShape controls the user count over the course of a run.
type LoadShape interface {
	// Tick returns the desired state at elapsed run time. ok is false once
	// the run should stop.
	Tick(elapsed time.Duration) (tick Tick, ok bool)
}

// StepLoadShape adds StepLoad users every StepTime until TimeLimit.
//
// At elapsed time t the target is (floor(t/StepTime)+1)*StepLoad users.
// The run stops once t exceeds TimeLimit.
type StepLoadShape struct {
	StepTime  time.Duration
	StepLoad  int
	SpawnRate float64
	TimeLimit time.Duration
}

// NewStepLoadShape returns the default step shape: 20 more users every
// minute at 5 users/s for ten minutes.
func NewStepLoadShape() *StepLoadShape {
	return &StepLoadShape{
		StepTime:  config.DefaultStepTime,
		StepLoad:  config.DefaultStepLoad,
		SpawnRate: config.DefaultShapeSpawnRate,
		TimeLimit: config.DefaultTimeLimit,
	}
}

// Tick implements LoadShape.
func (s *StepLoadShape) Tick(elapsed time.Duration) (Tick, bool) {
	if elapsed > s.TimeLimit {
		return Tick{}, false
	}
	if elapsed < 0 {
		elapsed = 0
	}

	step := int(elapsed / s.StepTime)
	return Tick{
		Users:     (step + 1) * s.StepLoad,
		SpawnRate: s.SpawnRate,
	}, true
}

// FromConfig builds the shape described by cfg. A nil cfg yields a nil shape.
func FromConfig(cfg *config.ShapeConfig) (LoadShape, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Type {
	case config.ShapeStep, "":
		s := NewStepLoadShape()
		s.StepTime = cfg.StepTime.GetDuration(s.StepTime)
		if cfg.StepLoad > 0 {
			s.StepLoad = cfg.StepLoad
		}
		if cfg.SpawnRate > 0 {
			s.SpawnRate = cfg.SpawnRate
		}
		s.TimeLimit = cfg.TimeLimit.GetDuration(s.TimeLimit)
		if s.StepTime <= 0 {
			return nil, fmt.Errorf("step time must be positive, got %s", s.StepTime)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown shape type: %s", cfg.Type)
	}
}

// Point is one step of a shape schedule.
type Point struct {
	At        time.Duration
	Users     int
	SpawnRate float64
}

// Schedule samples shape every interval from zero until it stops or limit
// is reached, keeping only points where the target changes. The final point
// has Users == -1 when the shape stopped.
func Schedule(s LoadShape, interval, limit time.Duration) []Point {
	if interval <= 0 {
		interval = time.Second
	}

	var points []Point
	last := Tick{Users: -1}
	for at := time.Duration(0); at <= limit; at += interval {
		tick, ok := s.Tick(at)
		if !ok {
			return append(points, Point{At: at, Users: -1})
		}
		if tick != last {
			points = append(points, Point{At: at, Users: tick.Users, SpawnRate: tick.SpawnRate})
			last = tick
		}
	}
	return points
}
