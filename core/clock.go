package core

import "time"

// Clock is a monotonic millisecond time source.
//
// The count is 32 bits wide and wraps after ~49.7 days. Consumers must take
// differences with unsigned arithmetic (now - then) so that a single wrap
// between two reads still produces the correct small delta.
type Clock interface {
	Millis() uint32
}

// MillisCounter is a Clock advanced by a fixed-period interrupt calling Tick.
// The zero value is a counter at 0 ready for use.
type MillisCounter struct {
	ticks uint32
}

// Tick advances the counter by one millisecond.
// Call this from the 1 kHz timer interrupt handler.
func (c *MillisCounter) Tick() {
	addTicks(&c.ticks, 1)
}

// Advance moves the counter forward by ms milliseconds
func (c *MillisCounter) Advance(ms uint32) {
	addTicks(&c.ticks, ms)
}

// Set overwrites the current count (for testing/hardware integration)
func (c *MillisCounter) Set(ms uint32) {
	storeTicks(&c.ticks, ms)
}

// Millis returns the current count. Safe to call while Tick runs
// concurrently from interrupt context.
func (c *MillisCounter) Millis() uint32 {
	return loadTicks(&c.ticks)
}

// ClockFunc adapts a plain function to the Clock interface
type ClockFunc func() uint32

// Millis calls f
func (f ClockFunc) Millis() uint32 {
	return f()
}

// MillisSince returns the time elapsed since start, modulo 2^32
func MillisSince(c Clock, start uint32) uint32 {
	return c.Millis() - start
}

// SystemClock returns a Clock counting milliseconds from the call, backed by
// the runtime's monotonic time
func SystemClock() Clock {
	start := time.Now()
	return ClockFunc(func() uint32 {
		return uint32(time.Since(start) / time.Millisecond)
	})
}
