//go:build rp2350

package main

import "machine"

// InitUSB configures USB CDC-ACM; the descriptors come from TinyGo's runtime
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbReaderLoop moves received bytes into the firmware loop's input
func usbReaderLoop() {
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
				usbErrors++
				sleepYield()
			}
		}

		sleepYield()
	}
}
