//go:build rp2040

package main

import (
	"errors"
	"machine"

	"gyrosense/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Each bit takes four PIO cycles: data out with clock low for two,
// sample with clock high for two.
const (
	pioCyclesPerBit    = 4
	pioSPIStateMachine = 0
)

var errPIOBusy = errors.New("spi: PIO state machine already claimed")

// buildSPIProgram returns a mode 0 (CPOL=0, CPHA=0) full duplex program.
// SCK is the side-set pin; autopull and autopush move one byte at a time.
func buildSPIProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 1}
	return []uint16{
		// .wrap_target
		asm.Out(rp2pio.OutDestPins, 1).Side(0).Delay(1).Encode(), // 0: out pins, 1 side 0 [1]
		asm.In(rp2pio.InSrcPins, 1).Side(1).Delay(1).Encode(),    // 1: in pins, 1 side 1 [1]
		// .wrap
	}
}

// programWrap returns the wrap target (bottom) and wrap (top) of a program
// of n instructions loaded at offset
func programWrap(offset uint8, n int) (target, wrap uint8) {
	return offset, offset + uint8(n) - 1
}

// pioSPI is a drivers.SPI on a PIO state machine
type pioSPI struct {
	sm rp2pio.StateMachine
}

func newPIOSPI(cfg core.SPIConfig) (*pioSPI, error) {
	if cfg.Mode != core.SPIMode0 {
		return nil, errSPIMode
	}

	pio := rp2pio.PIO0
	sm := pio.StateMachine(pioSPIStateMachine)
	if !sm.TryClaim() {
		return nil, errPIOBusy
	}

	program := buildSPIProgram()
	offset, err := pio.AddProgram(program, -1)
	if err != nil {
		return nil, err
	}

	for _, pin := range []machine.Pin{pinSCK, pinSDO, pinSDI} {
		pin.Configure(machine.PinConfig{Mode: pio.PinMode()})
	}

	smCfg := rp2pio.DefaultStateMachineConfig()
	smCfg.SetSidesetParams(1, false, false)
	smCfg.SetSidesetPins(pinSCK)
	smCfg.SetOutPins(pinSDO, 1)
	smCfg.SetInPins(pinSDI, 1)

	// Shift left (MSB first), autopull and autopush every 8 bits
	smCfg.SetOutShift(false, true, 8)
	smCfg.SetInShift(false, true, 8)

	smCfg.SetWrap(programWrap(offset, len(program)))

	// Divider in 1/256 steps for the requested bit rate
	div := uint64(machine.CPUFrequency()) * 256 / uint64(cfg.Rate*pioCyclesPerBit)
	smCfg.SetClkDivIntFrac(uint16(div>>8), uint8(div))

	sm.Init(offset, smCfg)

	sm.SetPindirsConsecutive(pinSCK, 1, true)
	sm.SetPindirsConsecutive(pinSDO, 1, true)
	sm.SetPindirsConsecutive(pinSDI, 1, false)
	sm.SetPinsConsecutive(pinSCK, 1, false) // clock idles low

	sm.SetEnabled(true)

	return &pioSPI{sm: sm}, nil
}

// Transfer clocks one byte out and returns the byte clocked in
func (s *pioSPI) Transfer(b byte) (byte, error) {
	for s.sm.IsTxFIFOFull() {
	}
	// Autopull shifts from bit 31 down
	s.sm.TxPut(uint32(b) << 24)

	for s.sm.IsRxFIFOEmpty() {
	}
	return byte(s.sm.RxGet()), nil
}

// Tx exchanges len(w) bytes; r may be nil to discard input
func (s *pioSPI) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return errors.New("spi: tx and rx buffer lengths must match")
	}
	for i, b := range w {
		in, err := s.Transfer(b)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}
