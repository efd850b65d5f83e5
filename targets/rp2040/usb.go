//go:build rp2040

package main

import "machine"

// InitUSB configures the USB CDC port carrying the host link
func InitUSB() {
	// On RP2040 machine.Serial is USB CDC; the baud rate is ignored
	machine.Serial.Configure(machine.UARTConfig{})
}

// usbReaderLoop moves received bytes into the firmware loop's input
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			usbErrors++
			go usbReaderLoop()
		}
	}()

	var buf [64]byte
	for {
		n := 0
		for n < len(buf) && machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				usbErrors++
				break
			}
			buf[n] = b
			n++
		}

		for data := buf[:n]; len(data) > 0; {
			written := loop.Feed(data)
			data = data[written:]
			if written == 0 {
				// Input full, wait for the loop to drain it
				usbErrors++
				sleepYield()
			}
		}

		sleepYield()
	}
}
