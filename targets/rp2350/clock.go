//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"gyrosense/core"
)

// RP2350 TIMER0 sits at a different address than the RP2040 TIMER
// (0x40054000). Register offsets are the same:
// timeRawH @ 0x24 - raw read from upper 32b
// timeRawL @ 0x28 - raw read from lower 32b
const (
	timerBase     = 0x400B0000
	timerTimeRawH = timerBase + 0x24
	timerTimeRawL = timerBase + 0x28
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// hardwareClock derives milliseconds from the free-running 1 MHz timer, so
// no tick interrupt is needed on this target
var hardwareClock = core.ClockFunc(func() uint32 {
	return uint32(GetHardwareUptime() / 1000)
})

// InitClock lets the timer settle after TinyGo's tick generator setup
func InitClock() {
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	_ = timerRawL.Get()
}

// GetHardwareUptime reads the full 64-bit microsecond timer
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()

		// Retry if the low word rolled over during the read
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}
