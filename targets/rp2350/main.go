//go:build rp2350

package main

import (
	"machine"
	"time"

	"gyrosense/adxrs450"
	"gyrosense/core"
	"gyrosense/firmware"
)

var (
	loop      *firmware.Loop
	usbErrors uint32
)

func main() {
	InitUSB()

	// Clear a watchdog left armed by a previous image
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitClock()
	initDebug()

	// 1 blink = clock and debug up
	ledBlink(1)

	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.High()
	pinBtn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	bus, err := newBus(gyroSPI)
	if err != nil {
		halt(3, "[?] SPI setup failed: "+err.Error())
	}

	dev, err := adxrs450.New(bus, pinCS, adxrs450.Config{Clock: hardwareClock})
	if err != nil {
		halt(4, "[?] "+err.Error())
	}

	// 2 blinks = gyro calibrated
	ledBlink(2)

	loop = firmware.New(firmware.Config{
		Gyro:        dev,
		Clock:       hardwareClock,
		ResetButton: pinBtn,
		Output:      machine.Serial,
	})

	go usbReaderLoop()

	core.DebugPrintln("[+] " + firmware.Version + " running on rp2350")
	loop.Run(nil)
}

// halt blinks code and repeats msg forever
func halt(code int, msg string) {
	for {
		core.DebugPrintln(msg)
		ledBlink(code)
	}
}

func sleepMs(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func sleepYield() {
	time.Sleep(100 * time.Microsecond)
}

// delayNs busy-waits roughly d; each loop iteration is about 8ns at 150 MHz
func delayNs(d time.Duration) {
	loops := int(d / (8 * time.Nanosecond))
	for i := 0; i < loops; i++ {
		_ = i
	}
}
