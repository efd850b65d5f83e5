//go:build rp2040

package main

import (
	"errors"
	"machine"

	"gyrosense/core"

	"tinygo.org/x/drivers"
)

// Gyro wiring: SPI0 on GPIO16-19 with chip select on GPIO17
const (
	pinSCK  = machine.GPIO18
	pinSDO  = machine.GPIO19 // MOSI
	pinSDI  = machine.GPIO16 // MISO
	pinCS   = machine.GPIO17
	pinBtn  = machine.GPIO15 // angle reset, closes to ground
	pinTX   = machine.GPIO0  // debug UART
	pinRX   = machine.GPIO1
	spiRate = 1000000 // ADXRS450 allows up to 8.08 MHz
)

// gyroSPI is the ADXRS450's bus setup: 8-bit mode 0, MSB first
var gyroSPI = core.SPIConfig{
	Mode: core.SPIMode0,
	Rate: spiRate,
}

// spiBackend selects the bus implementation: "hw" for the SPI0 peripheral,
// "pio" for a PIO state machine on the same pins.
// Set with -ldflags "-X main.spiBackend=pio".
var spiBackend = "hw"

var errSPIMode = errors.New("spi: unsupported mode")

// newBus configures the bus selected by spiBackend
func newBus(cfg core.SPIConfig) (drivers.SPI, error) {
	if spiBackend == "pio" {
		return newPIOSPI(cfg)
	}
	return newHardwareSPI(cfg)
}

func newHardwareSPI(cfg core.SPIConfig) (drivers.SPI, error) {
	if cfg.Mode > core.SPIMode3 {
		return nil, errSPIMode
	}

	spi := machine.SPI0
	err := spi.Configure(machine.SPIConfig{
		Frequency: cfg.Rate,
		SCK:       pinSCK,
		SDO:       pinSDO, // SDO = Serial Data Out (MOSI)
		SDI:       pinSDI, // SDI = Serial Data In (MISO)
		Mode:      uint8(cfg.Mode),
		LSBFirst:  false,
	})
	if err != nil {
		return nil, err
	}

	return spi, nil
}
