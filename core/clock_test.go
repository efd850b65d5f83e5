package core

import (
	"sync"
	"testing"
)

func TestMillisCounter(t *testing.T) {
	var c MillisCounter

	if c.Millis() != 0 {
		t.Errorf("Expected zero value to read 0, got %d", c.Millis())
	}

	c.Tick()
	c.Tick()
	c.Advance(8)
	if c.Millis() != 10 {
		t.Errorf("Expected 10, got %d", c.Millis())
	}

	c.Set(1234)
	if c.Millis() != 1234 {
		t.Errorf("Expected 1234 after Set, got %d", c.Millis())
	}
}

func TestMillisSinceWraparound(t *testing.T) {
	var c MillisCounter
	c.Set(0xFFFFFFF0)
	start := c.Millis()

	c.Advance(0x20)

	if c.Millis() != 0x10 {
		t.Errorf("Expected counter to wrap to 0x10, got 0x%X", c.Millis())
	}
	if got := MillisSince(&c, start); got != 0x20 {
		t.Errorf("Expected 32ms elapsed across the wrap, got %d", got)
	}
}

func TestMillisCounterConcurrentTicks(t *testing.T) {
	var c MillisCounter
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Tick()
			}
		}()
	}
	wg.Wait()

	if c.Millis() != 4000 {
		t.Errorf("Expected 4000 ticks, got %d", c.Millis())
	}
}

func TestClockFunc(t *testing.T) {
	now := uint32(42)
	clock := ClockFunc(func() uint32 { return now })

	if clock.Millis() != 42 {
		t.Errorf("Expected 42, got %d", clock.Millis())
	}

	now = 50
	if got := MillisSince(clock, 42); got != 8 {
		t.Errorf("Expected 8, got %d", got)
	}
}

func TestSystemClockStartsNearZero(t *testing.T) {
	clock := SystemClock()
	first := clock.Millis()
	if first > 1000 {
		t.Errorf("Expected a fresh clock near 0, got %d", first)
	}
	if clock.Millis() < first {
		t.Error("System clock went backwards")
	}
}
