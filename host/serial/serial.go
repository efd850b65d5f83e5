// Package serial opens the link to the gyro firmware's USB CDC port.
package serial

import (
	"io"
	"time"
)

// Port is an open link to the firmware
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and waits for pending output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it; a UART bridge must match the firmware.
	Baud int

	// ReadTimeout bounds a single Read so the reader can notice Close.
	// Zero blocks.
	ReadTimeout time.Duration
}

// DefaultBaud matches the firmware's console rate
const DefaultBaud = 115200

// DefaultConfig returns the configuration for the firmware on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
