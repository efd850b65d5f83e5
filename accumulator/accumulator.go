// Package accumulator integrates a time-varying scalar signal with the
// trapezoidal rule against a millisecond clock.
package accumulator

import "gyrosense/core"

// Float is the set of sample types the accumulator can integrate
type Float interface {
	~float32 | ~float64
}

// Accumulator keeps a running trapezoidal integral of the values passed to
// AddData. A configurable center is subtracted from every step so a constant
// sensor bias can be removed without touching past samples.
type Accumulator[T Float] struct {
	clock core.Clock

	accumulated T
	samples     uint32
	lastValue   T
	lastTime    uint32
	center      T
}

// New creates an accumulator with an integral of zero
func New[T Float](clock core.Clock) *Accumulator[T] {
	return NewWithDefault[T](clock, 0)
}

// NewWithDefault creates an accumulator whose integral starts at initial.
// The first step is measured from the time of this call.
func NewWithDefault[T Float](clock core.Clock, initial T) *Accumulator[T] {
	return &Accumulator[T]{
		clock:       clock,
		accumulated: initial,
		lastTime:    clock.Millis(),
	}
}

// AddData integrates value against the previous sample using the
// trapezoidal rule, then subtracts the center.
func (a *Accumulator[T]) AddData(value T) {
	now := a.clock.Millis()

	// Modular subtraction: a counter wrap between samples still gives the
	// right delta.
	deltaMs := now - a.lastTime
	area := T(deltaMs)*1e-3*(a.lastValue+value)/2 - a.center

	a.accumulated += area
	a.lastValue = value
	a.lastTime = now
	a.samples++
}

// IntegratedValue returns the running integral, unscaled
func (a *Accumulator[T]) IntegratedValue() T {
	return a.accumulated
}

// LastValue returns the most recently added sample
func (a *Accumulator[T]) LastValue() T {
	return a.lastValue
}

// Samples returns the number of samples added since the last Reset
func (a *Accumulator[T]) Samples() uint32 {
	return a.samples
}

// IntegratedAverage returns the mean contribution per sample since the last
// Reset. The caller must have added at least one sample; with none the
// result is NaN or ±Inf.
func (a *Accumulator[T]) IntegratedAverage() T {
	return a.accumulated / T(a.samples)
}

// Reset zeroes the integral, the last value and the sample count, and
// restarts the step timer from now. The center is kept.
func (a *Accumulator[T]) Reset() {
	a.accumulated = 0
	a.lastValue = 0
	a.samples = 0
	a.lastTime = a.clock.Millis()
}

// SetIntegratedCenter sets the offset subtracted from every future step.
// The existing integral is not corrected.
func (a *Accumulator[T]) SetIntegratedCenter(center T) {
	a.center = center
}

// IntegratedCenter returns the offset currently subtracted per step
func (a *Accumulator[T]) IntegratedCenter() T {
	return a.center
}
