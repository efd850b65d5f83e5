//go:build rp2350

package main

import (
	"machine"

	"gyrosense/core"
)

// initDebug routes core debug output to UART1 on GPIO36 (TX) and GPIO37 (RX)
// at 115200 baud. USB stays reserved for the host link.
func initDebug() {
	uart := machine.UART1

	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       pinTX,
		RX:       pinRX,
	})
	if err != nil {
		core.SetDebugEnabled(false)
		return
	}

	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	core.DebugPrintln("=== RP2350 Debug UART Initialized ===")
}

// ledBlink blinks the LED count times for diagnostics before the debug
// UART is usable
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		sleepMs(150)
		led.Low()
		sleepMs(150)
	}
	sleepMs(500)
}
