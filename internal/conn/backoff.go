package conn

import (
	"math/rand"
	"time"
)

// BuildDelayTable generates the reconnect backoff table: start at max(1ms,
// min), multiply by factor (forcing at least +1ms when the multiplication does
// not strictly increase the delay) until max is reached, then append max as
// the final, repeatable ceiling. The last element always equals max.
func BuildDelayTable(min, max time.Duration, factor float64) []time.Duration {
	if max <= 0 {
		max = time.Second
	}
	d := min
	if d < time.Millisecond {
		d = time.Millisecond
	}
	var table []time.Duration
	for d < max {
		table = append(table, d)
		next := time.Duration(float64(d) * factor)
		if next <= d {
			next = d + time.Millisecond
		}
		d = next
	}
	return append(table, max)
}

// Jitter spreads a base delay by a uniform factor in [-jitterFactor,
// +jitterFactor] so that a fleet of clients does not reconnect in lockstep.
// jitterFactor is clamped to [0,1] and the result is never negative.
func Jitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor < 0 {
		jitterFactor = 0
	}
	if jitterFactor > 1 {
		jitterFactor = 1
	}
	u := rand.Float64()*2 - 1
	jittered := time.Duration(float64(base) * (1 + u*jitterFactor))
	if jittered < 0 {
		return 0
	}
	return jittered
}
