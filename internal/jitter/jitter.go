// Package jitter supplies the random source used to spread retry
// delays, injected so the backoff scheduler is unit-testable.
package jitter

import "math/rand/v2"

// Source produces a uniform float in [0, 1).
type Source interface {
	Float64() float64
}

// Real wraps math/rand/v2's top-level source.
func Real() Source {
	return realSource{}
}

type realSource struct{}

func (realSource) Float64() float64 { return rand.Float64() }

// Fixed is a test Source that always returns the same value.
type Fixed float64

// Float64 implements Source.
func (f Fixed) Float64() float64 { return float64(f) }

// Sequence cycles deterministically through a fixed list of values,
// useful when a test wants to assert on several successive draws.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence builds a Sequence over values, wrapping once exhausted.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float64 implements Source.
func (s *Sequence) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
