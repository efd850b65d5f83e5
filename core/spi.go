// SPI device support: a bus shared through tinygo drivers' SPI interface plus
// an optional chip select line managed around every transfer.
package core

import (
	"errors"

	"tinygo.org/x/drivers"
)

// SPI device flags
const (
	SF_CS_ACTIVE_HIGH = 0x02 // Chip select active high (default is active low)
	SF_HAVE_PIN       = 0x04 // Has chip select pin
)

var errSPILength = errors.New("spi: tx and rx buffer lengths must match")

// SPIDevice represents one peripheral on an SPI bus
type SPIDevice struct {
	Bus   drivers.SPI // Full-duplex bus, MSB first
	Pin   OutputPin   // Chip select pin (if SF_HAVE_PIN is set)
	Flags uint8       // Device flags (CS polarity etc.)
}

// NewSPIDevice creates a device with an active-low chip select.
// The select line is driven to its inactive level immediately.
// cs may be nil for devices without a select line.
func NewSPIDevice(bus drivers.SPI, cs OutputPin) *SPIDevice {
	dev := &SPIDevice{Bus: bus, Pin: cs}
	if cs != nil {
		dev.Flags |= SF_HAVE_PIN
		dev.Deselect()
	}
	return dev
}

// Select asserts chip select if the device has a CS pin
func (dev *SPIDevice) Select() {
	if dev.Flags&SF_HAVE_PIN == 0 {
		return
	}
	// Active low by default
	dev.Pin.Set(dev.Flags&SF_CS_ACTIVE_HIGH != 0)
}

// Deselect deasserts chip select if the device has a CS pin
func (dev *SPIDevice) Deselect() {
	if dev.Flags&SF_HAVE_PIN == 0 {
		return
	}
	dev.Pin.Set(dev.Flags&SF_CS_ACTIVE_HIGH == 0)
}

// Transfer performs one chip-select framed full-duplex transfer.
// rx receives len(tx) bytes; rx may be nil to discard the input.
func (dev *SPIDevice) Transfer(tx []byte, rx []byte) error {
	if rx != nil && len(rx) != len(tx) {
		return errSPILength
	}

	dev.Select()
	err := dev.Bus.Tx(tx, rx)
	dev.Deselect()

	return err
}
