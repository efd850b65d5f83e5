//go:build tinygo

package core

import (
	"runtime/interrupt"
	"runtime/volatile"
)

// On 8- and 16-bit MCUs a uint32 access takes several instructions, so the
// tick interrupt could land in the middle of one. Every access runs with
// interrupts masked.

func loadTicks(p *uint32) uint32 {
	state := interrupt.Disable()
	v := volatile.LoadUint32(p)
	interrupt.Restore(state)
	return v
}

func storeTicks(p *uint32, v uint32) {
	state := interrupt.Disable()
	volatile.StoreUint32(p, v)
	interrupt.Restore(state)
}

func addTicks(p *uint32, d uint32) {
	state := interrupt.Disable()
	volatile.StoreUint32(p, volatile.LoadUint32(p)+d)
	interrupt.Restore(state)
}
