//go:build rp2350

package main

import (
	"machine"

	"gyrosense/core"

	"tinygo.org/x/drivers"
)

// Gyro wiring: bit-banged SPI on GPIO2-5
const (
	pinSCK  = machine.GPIO2
	pinSDO  = machine.GPIO3 // MOSI
	pinSDI  = machine.GPIO4 // MISO
	pinCS   = machine.GPIO5
	pinBtn  = machine.GPIO15 // angle reset, closes to ground
	pinTX   = machine.GPIO36 // debug UART1
	pinRX   = machine.GPIO37
	spiRate = 500000
)

var gyroSPI = core.SPIConfig{
	Mode: core.SPIMode0,
	Rate: spiRate,
}

// newBus configures the GPIO lines and returns a software SPI bus on them
func newBus(cfg core.SPIConfig) (drivers.SPI, error) {
	pinSCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinSDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinSDI.Configure(machine.PinConfig{Mode: machine.PinInput})

	spi, err := core.NewSoftwareSPI(pinSCK, pinSDO, pinSDI, cfg)
	if err != nil {
		return nil, err
	}

	// time.Sleep granularity is coarser than a half period
	spi.Delay = delayNs

	return spi, nil
}
