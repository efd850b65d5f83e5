// Package firmware runs the gyro polling loop: one sensor update per sample
// period, the angle reset button, periodic telemetry and host commands.
package firmware

import (
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"gyrosense/adxrs450"
	"gyrosense/core"
	"gyrosense/protocol"
)

// Version is reported in identify responses
const Version = "gyrosense " + protocol.Version

// DefaultStreamEvery sends a state report every 50 ticks (10 Hz at 2 ms)
const DefaultStreamEvery = 50

var errShortArgs = errors.New("firmware: truncated command arguments")

// Gyro is the sensor the loop drives. *adxrs450.Device implements it.
type Gyro interface {
	Update() error
	Reset()
	Calibrate()
	Angle() float32
	Rate() float32
	Center() float32
	Stats() adxrs450.Stats
	PartID() (uint16, error)
	SerialNumber() (uint32, error)
}

// Config wires a Loop to its hardware
type Config struct {
	Gyro  Gyro
	Clock core.Clock

	// ResetButton zeroes the angle while held low. May be nil.
	ResetButton core.InputPin

	// Output receives telemetry frames. May be nil for a silent loop.
	Output io.Writer

	// StreamEvery is the number of ticks between state reports.
	// Zero selects DefaultStreamEvery; a host can change it at runtime.
	StreamEvery uint32

	// Sleep and Period pace Run. Default to time.Sleep and
	// adxrs450.SamplePeriod.
	Sleep  func(time.Duration)
	Period time.Duration
}

// Loop owns the link buffers and the sensor. Step must be called from a
// single goroutine; Feed may be called from another.
type Loop struct {
	gyro   Gyro
	clock  core.Clock
	button core.InputPin
	writer io.Writer
	sleep  func(time.Duration)
	period time.Duration

	inputMu sync.Mutex
	input   *protocol.FifoBuffer

	output    *protocol.ScratchOutput
	transport *protocol.Transport

	ticks       uint32
	streamEvery uint32
	panics      uint32
	writeErrors uint32
}

// New creates a loop around cfg.Gyro, which must already be calibrated
func New(cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock()
	}
	if cfg.StreamEvery == 0 {
		cfg.StreamEvery = DefaultStreamEvery
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Period == 0 {
		cfg.Period = adxrs450.SamplePeriod
	}

	l := &Loop{
		gyro:        cfg.Gyro,
		clock:       cfg.Clock,
		button:      cfg.ResetButton,
		writer:      cfg.Output,
		sleep:       cfg.Sleep,
		period:      cfg.Period,
		input:       protocol.NewFifoBuffer(256),
		output:      protocol.NewScratchOutput(),
		streamEvery: cfg.StreamEvery,
	}

	l.transport = protocol.NewTransport(l.output, l.HandleCommand)
	l.transport.SetResetCallback(func() {
		l.output.Reset()
	})
	l.transport.SetFlushCallback(l.flush)

	return l
}

// Feed queues bytes received from the host and returns how many fit
func (l *Loop) Feed(data []byte) int {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	return l.input.Write(data)
}

// Run calls Step once per period until stop is closed
func (l *Loop) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		l.Step()
		l.sleep(l.period)
	}
}

// Step runs one sample period
func (l *Loop) Step() {
	defer func() {
		if r := recover(); r != nil {
			l.panics++
			l.output.Reset()
			core.DebugAsync("[?] firmware: recovered from panic in step")
		}
	}()

	if l.button != nil && !l.button.Get() {
		l.gyro.Reset()
	}

	// Failed reads are counted by the driver and reported in the state
	_ = l.gyro.Update()
	l.ticks++

	if l.streamEvery != 0 && l.ticks%l.streamEvery == 0 {
		l.sendState()
	}

	l.processInput()
	l.flush()
}

// processInput runs received commands without holding the input lock, so
// Feed keeps accepting bytes during a long calibration
func (l *Loop) processInput() {
	l.inputMu.Lock()
	if l.input.IsEmpty() {
		l.inputMu.Unlock()
		return
	}
	pending := append([]byte(nil), l.input.Data()...)
	l.inputMu.Unlock()

	in := protocol.NewSliceInputBuffer(pending)
	l.transport.Receive(in)

	l.inputMu.Lock()
	l.input.Pop(len(pending) - in.Available())
	l.inputMu.Unlock()
}

func (l *Loop) flush() {
	if l.writer == nil {
		l.output.Reset()
		return
	}
	if l.output.CurPosition() == 0 {
		return
	}
	if _, err := l.output.WriteTo(l.writer); err != nil {
		// Drop the backlog rather than stall sampling on a dead link
		l.writeErrors++
		l.output.Reset()
	}
}

// HandleCommand executes one host command. Calibration blocks for the
// settle delay plus the calibration window.
func (l *Loop) HandleCommand(cmdID uint16, data *[]byte) error {
	switch cmdID {
	case protocol.CmdReset:
		l.gyro.Reset()
		l.sendState()

	case protocol.CmdCalibrate:
		before := l.gyro.Stats().Samples
		l.gyro.Calibrate()
		l.transport.SendMessage(protocol.MsgGyroCalibration, &protocol.GyroCalibration{
			CenterMicro: toFixed(l.gyro.Center(), 1e6),
			Samples:     l.gyro.Stats().Samples - before,
		})

	case protocol.CmdIdentify:
		return l.identify()

	case protocol.CmdSetStream:
		every, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return errShortArgs
		}
		l.streamEvery = every

	case protocol.CmdDumpEvents:
		l.dumpEvents()

	default:
		core.DebugAsync("[?] firmware: unknown command " + core.Utoa(uint32(cmdID)))
		return protocol.ErrUnknownMessage
	}
	return nil
}

func (l *Loop) identify() error {
	id, err := l.gyro.PartID()
	if err != nil {
		return err
	}
	sn, err := l.gyro.SerialNumber()
	if err != nil {
		return err
	}
	l.transport.SendMessage(protocol.MsgGyroIdentify, &protocol.GyroIdentify{
		PartID:       uint32(id),
		SerialNumber: sn,
		Firmware:     Version,
	})
	return nil
}

// dumpEvents sends the event ring, flushing per event so a full ring never
// overflows the output buffer
func (l *Loop) dumpEvents() {
	core.DumpEvents()
	for _, evt := range core.Events() {
		l.transport.SendMessage(protocol.MsgGyroEvent, &protocol.GyroEvent{
			Type:   uint32(evt.Type),
			Clock:  evt.Clock,
			Value1: evt.Value1,
			Value2: evt.Value2,
		})
		l.flush()
	}
}

// State returns the current telemetry report
func (l *Loop) State() protocol.GyroState {
	stats := l.gyro.Stats()
	return protocol.GyroState{
		Clock:      l.clock.Millis(),
		RateMilli:  toFixed(l.gyro.Rate(), 1000),
		AngleMilli: toFixed(l.gyro.Angle(), 1000),
		ErrorCount: stats.StatusErrors + stats.ParityErrors + stats.BusErrors,
	}
}

func (l *Loop) sendState() {
	state := l.State()
	l.transport.SendMessage(protocol.MsgGyroState, &state)
}

// Ticks returns the number of completed steps
func (l *Loop) Ticks() uint32 {
	return l.ticks
}

// StreamEvery returns the current state report interval in ticks
func (l *Loop) StreamEvery() uint32 {
	return l.streamEvery
}

// Panics returns how many steps were abandoned by a recovered panic
func (l *Loop) Panics() uint32 {
	return l.panics
}

// toFixed scales v and rounds it to the nearest integer, saturating at the
// int32 range
func toFixed(v float32, scale float64) int32 {
	f := math.Round(float64(v) * scale)
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}
