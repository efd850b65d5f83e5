//go:build rp2040

package main

import (
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"gyrosense/core"
)

// RP2040 TIMER peripheral. The runtime uses alarm 0 for sleeps, so the
// millisecond tick runs on alarm 1.
const (
	timerBase     = 0x40054000
	timerALARM1   = timerBase + 0x14
	timerTIMERAWH = timerBase + 0x24 // Raw timer high word
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
	timerINTR     = timerBase + 0x34
	timerINTE     = timerBase + 0x38

	tickAlarmBit = 1 << 1
	tickPeriodUs = 1000
	irqTimer1    = 1
)

var (
	timerRAWH   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	timerAlarm1 = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM1)))
	timerIntr   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerInte   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))

	// millis is advanced by the alarm 1 interrupt
	millis   core.MillisCounter
	nextTick uint32
)

// InitClock seeds millis with the uptime since boot and starts the 1 kHz
// tick interrupt driving it
func InitClock() {
	uptime := GetHardwareUptime()
	millis.Set(uint32(uptime / 1000))

	timerInte.SetBits(tickAlarmBit)

	intr := interrupt.New(irqTimer1, tickHandler)
	intr.Enable()

	nextTick = firstTick(uptime)
	timerAlarm1.Set(nextTick)
}

// firstTick returns the low timer word at the millisecond boundary following
// uptime, keeping alarm ticks in phase with uptime/1000
func firstTick(uptime uint64) uint32 {
	return uint32(uptime - uptime%tickPeriodUs + tickPeriodUs)
}

func tickHandler(interrupt.Interrupt) {
	timerIntr.Set(tickAlarmBit) // acknowledge

	// Schedule from the previous deadline so latency does not accumulate
	nextTick += tickPeriodUs
	timerAlarm1.Set(nextTick)

	millis.Tick()
}

// GetHardwareUptime reads the full 64-bit microsecond timer
func GetHardwareUptime() uint64 {
	// Read high, low, high again to detect a carry between the reads
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}
