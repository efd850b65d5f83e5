package core

import (
	"errors"
	"time"
)

var errSPIModeInvalid = errors.New("spi: invalid mode")

// SoftwareSPI bit-bangs an SPI bus on three GPIO lines, MSB first.
// It satisfies drivers.SPI.
type SoftwareSPI struct {
	SCLK OutputPin
	MOSI OutputPin
	MISO InputPin

	// Delay waits half a clock period. Defaults to time.Sleep.
	Delay func(time.Duration)

	halfPeriod time.Duration
	cpol       bool // clock idles high
	cpha       bool // sample on the second edge
	clk        bool // current clock level
}

// NewSoftwareSPI configures the lines for cfg and parks the clock at its
// idle level
func NewSoftwareSPI(sclk, mosi OutputPin, miso InputPin, cfg SPIConfig) (*SoftwareSPI, error) {
	if cfg.Mode > SPIMode3 {
		return nil, errSPIModeInvalid
	}

	s := &SoftwareSPI{
		SCLK:  sclk,
		MOSI:  mosi,
		MISO:  miso,
		Delay: time.Sleep,
		cpol:  cfg.Mode&2 != 0,
		cpha:  cfg.Mode&1 != 0,
	}

	// Half period is 1 / (2 * rate); 0 means 100 kHz
	if cfg.Rate > 0 {
		s.halfPeriod = time.Duration(500000000/cfg.Rate) * time.Nanosecond
	} else {
		s.halfPeriod = 5 * time.Microsecond
	}

	s.clk = s.cpol
	s.SCLK.Set(s.clk)
	s.MOSI.Set(false)

	return s, nil
}

// Tx clocks w out while reading into r. r may be nil; otherwise it must be
// as long as w.
func (s *SoftwareSPI) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return errSPILength
	}
	for i, b := range w {
		in := s.transferByte(b)
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// Transfer exchanges a single byte
func (s *SoftwareSPI) Transfer(b byte) (byte, error) {
	return s.transferByte(b), nil
}

func (s *SoftwareSPI) transferByte(out byte) byte {
	var in byte

	for bit := 7; bit >= 0; bit-- {
		s.MOSI.Set(out&(1<<bit) != 0)

		// CPHA=0: data is valid before the first edge
		if !s.cpha && s.MISO.Get() {
			in |= 1 << bit
		}

		s.toggleClock()
		s.Delay(s.halfPeriod)

		if s.cpha && s.MISO.Get() {
			in |= 1 << bit
		}

		s.toggleClock()
		s.Delay(s.halfPeriod)
	}

	return in
}

func (s *SoftwareSPI) toggleClock() {
	s.clk = !s.clk
	s.SCLK.Set(s.clk)
}

// HalfPeriod returns the delay between clock edges
func (s *SoftwareSPI) HalfPeriod() time.Duration {
	return s.halfPeriod
}
