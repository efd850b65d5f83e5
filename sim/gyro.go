// Package sim provides a simulated ADXRS450 on a fake SPI bus, for running
// the driver and firmware loop without hardware.
package sim

import (
	"errors"
	"sync"

	"gyrosense/adxrs450"

	"tinygo.org/x/drivers"
)

var errFrameLength = errors.New("sim: transfers must be 4-byte frames")

// DefaultPartID is the part ID a new simulated gyro reports
const DefaultPartID = 0x5201

// Gyro simulates an ADXRS450. Like the real part it answers each 4-byte
// frame with the response to the command received in the previous frame.
type Gyro struct {
	mu sync.Mutex

	// Registers holds the read-back values of every register but RATE
	Registers map[adxrs450.Register]uint16

	// Bias is the rate reported when no queued samples remain
	Bias int16

	// Parity used when encoding responses
	Parity adxrs450.Parity

	samples  []int16
	drop     int
	pending  uint32
	frames   int
	commands []uint32
}

var _ drivers.SPI = (*Gyro)(nil)

// NewGyro creates a motionless gyro with the default part ID and serial
// number 0x0001E240
func NewGyro() *Gyro {
	return &Gyro{
		Registers: map[adxrs450.Register]uint16{
			adxrs450.RegPartID:     DefaultPartID,
			adxrs450.RegSerialHigh: 0x0001,
			adxrs450.RegSerialLow:  0xE240,
		},
	}
}

// Queue appends rate samples to be returned by successive rate reads
func (g *Gyro) Queue(samples ...int16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samples = append(g.samples, samples...)
}

// SetBias changes the rate reported once the queue is empty
func (g *Gyro) SetBias(bias int16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Bias = bias
}

// DropResponses makes the next n responses all-zero frames, as a
// disconnected or faulted sensor produces
func (g *Gyro) DropResponses(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drop += n
}

// Frames returns the number of frames exchanged so far
func (g *Gyro) Frames() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames
}

// Commands returns every non-zero command received, in order
func (g *Gyro) Commands() []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uint32, len(g.commands))
	copy(out, g.commands)
	return out
}

// Tx exchanges one 4-byte frame
func (g *Gyro) Tx(w, r []byte) error {
	if len(w) != 4 || (r != nil && len(r) != 4) {
		return errFrameLength
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	resp := g.respond(g.pending)
	if r != nil {
		r[0] = byte(resp >> 24)
		r[1] = byte(resp >> 16)
		r[2] = byte(resp >> 8)
		r[3] = byte(resp)
	}

	cmd := uint32(w[0])<<24 | uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
	g.pending = cmd
	g.frames++
	if cmd != 0 {
		g.commands = append(g.commands, cmd)
	}

	return nil
}

// Transfer is not supported on the simulated bus: the ADXRS450 only talks
// in whole frames
func (g *Gyro) Transfer(b byte) (byte, error) {
	return 0, errFrameLength
}

func (g *Gyro) respond(cmd uint32) uint32 {
	if cmd == 0 {
		return 0
	}

	var resp uint32
	switch cmd & adxrs450.OpMask {
	case adxrs450.OpRead:
		reg := adxrs450.CommandRegister(cmd)
		var data uint16
		if reg == adxrs450.RegRate {
			data = uint16(g.nextRate())
		} else {
			data = g.Registers[reg]
		}
		resp = adxrs450.RegisterRead.Encode(data, g.Parity)
	case adxrs450.OpSensorData:
		resp = adxrs450.SensorData.Encode(uint16(g.nextRate()), g.Parity)
	default:
		return 0
	}

	if g.drop > 0 {
		g.drop--
		return 0
	}
	return resp
}

func (g *Gyro) nextRate() int16 {
	if len(g.samples) == 0 {
		return g.Bias
	}
	rate := g.samples[0]
	g.samples = g.samples[1:]
	return rate
}
