//go:build rp2040

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
	// Disable the watchdog left armed by a previous image
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	initDebug()
	InitUSB()
	InitClock()

	core.DebugPrintln("[+] " + firmware.Version + " starting")

	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.High()
	pinBtn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	core.DebugPrintln("[+] configuring " + spiBackend + " SPI bus at " + core.Utoa(gyroSPI.Rate) + " Hz")
	bus, err := newBus(gyroSPI)
	if err != nil {
		halt("[?] SPI setup failed: " + err.Error())
	}

	core.DebugPrintln("[+] creating gyro instance")
	dev, err := adxrs450.New(bus, pinCS, adxrs450.Config{Clock: &millis})
	if err != nil {
		halt("[?] " + err.Error())
	}

	sn, err := dev.SerialNumber()
	if err == nil {
		core.DebugPrintln("[+] ADXRS450 serial " + core.Hex(sn, 8))
	}

	loop = firmware.New(firmware.Config{
		Gyro:        dev,
		Clock:       &millis,
		ResetButton: pinBtn,
		Output:      machine.Serial,
	})

	go usbReaderLoop()

	core.DebugPrintln("[+] starting main loop")
	loop.Run(nil)
}

// initDebug sends debug output to UART0, leaving USB to the host link
func initDebug() {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       pinTX,
		RX:       pinRX,
	})

	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

// halt reports a fatal setup error forever
func halt(msg string) {
	for {
		core.DebugPrintln(msg)
		time.Sleep(time.Second)
	}
}

// sleepYield lets other goroutines run
func sleepYield() {
	time.Sleep(100 * time.Microsecond)
}
