package loadtest

import (
	"time"
)

// Rand is the random source used for task selection and wait times.
// *gofakeit.Faker satisfies it.
type Rand interface {
	IntRange(min, max int) int
	Float64Range(min, max float64) float64
}

// WaitTime computes the pause between two consecutive tasks of a user.
type WaitTime func(r Rand) time.Duration

// Between returns a wait time drawn uniformly from [min, max].
func Between(min, max time.Duration) WaitTime {
	if max < min {
		min, max = max, min
	}
	return func(r Rand) time.Duration {
		if max == min {
			return min
		}
		return time.Duration(r.Float64Range(float64(min), float64(max)))
	}
}

// Constant returns a fixed wait time.
func Constant(d time.Duration) WaitTime {
	return func(Rand) time.Duration {
		return d
	}
}
