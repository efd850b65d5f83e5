//go:build !tinygo

package core

import "sync/atomic"

// On a regular Go runtime the "interrupt" is a goroutine (or a test), so
// plain atomics give the same no-torn-read guarantee as masking interrupts.

func loadTicks(p *uint32) uint32 {
	return atomic.LoadUint32(p)
}

func storeTicks(p *uint32, v uint32) {
	atomic.StoreUint32(p, v)
}

func addTicks(p *uint32, d uint32) {
	atomic.AddUint32(p, d)
}
