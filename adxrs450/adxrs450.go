package adxrs450

import (
	"errors"
	"math"
	"time"

	"gyrosense/accumulator"
	"gyrosense/core"

	"tinygo.org/x/drivers"
)

// Default timing, tuned for a 500 Hz polling loop
const (
	SamplePeriod      = 2 * time.Millisecond
	SettleDelay       = 100 * time.Millisecond
	CalibrationWindow = 5000 * time.Millisecond
	InterFrameDelay   = 500 * time.Microsecond
)

// Acquisition selects how Update fetches the rate
type Acquisition uint8

const (
	// AcquireRegister reads the RATE register with a read command
	AcquireRegister Acquisition = iota
	// AcquireSensorData issues the sensor data request
	AcquireSensorData
)

// Config holds the collaborators and tunables of a Device.
// Zero values are replaced by the defaults above.
type Config struct {
	Clock core.Clock          // millisecond time source, defaults to core.SystemClock()
	Sleep func(time.Duration) // blocking delay, defaults to time.Sleep

	SettleDelay       time.Duration // wait before calibration sampling starts
	CalibrationWindow time.Duration // how long calibration samples
	SamplePeriod      time.Duration // delay between calibration samples
	InterFrameDelay   time.Duration // gap between command and response frames

	// Parity used for commands and, in strict mode, checked on responses
	Parity Parity

	// StrictParity rejects responses failing the parity check. Off by
	// default: response parity is not verified unless this is set.
	StrictParity bool

	Acquisition Acquisition
}

func (cfg *Config) applyDefaults() {
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = SettleDelay
	}
	if cfg.CalibrationWindow == 0 {
		cfg.CalibrationWindow = CalibrationWindow
	}
	if cfg.SamplePeriod == 0 {
		cfg.SamplePeriod = SamplePeriod
	}
	if cfg.InterFrameDelay == 0 {
		cfg.InterFrameDelay = InterFrameDelay
	}
}

// Stats counts samples and the errors substituted by zero samples
type Stats struct {
	Samples      uint32
	StatusErrors uint32
	ParityErrors uint32
	BusErrors    uint32
}

// Device wraps an SPI connection to an ADXRS450 and integrates its rate
// into an angle
type Device struct {
	spi *core.SPIDevice
	acc *accumulator.Accumulator[float32]
	cfg Config

	tx    [4]byte
	rx    [4]byte
	stats Stats
}

// New checks the part ID of the gyro on bus and calibrates it. cs is the
// active-low chip select line. The sensor must be motionless until New
// returns.
func New(bus drivers.SPI, cs core.OutputPin, cfg Config) (*Device, error) {
	cfg.applyDefaults()

	d := &Device{
		spi: core.NewSPIDevice(bus, cs),
		acc: accumulator.New[float32](cfg.Clock),
		cfg: cfg,
	}

	if err := d.identify(); err != nil {
		return nil, err
	}

	d.Calibrate()

	return d, nil
}

func (d *Device) identify() error {
	id, err := d.PartID()
	if err != nil {
		core.RecordEvent(core.EvtDeviceNotFound, d.cfg.Clock.Millis(), 0, 0)
		return &DeviceNotFoundError{Err: err}
	}
	if id>>8 != PartIDSignature {
		core.RecordEvent(core.EvtDeviceNotFound, d.cfg.Clock.Millis(), uint32(id), 0)
		return &DeviceNotFoundError{PartID: id}
	}
	return nil
}

// transaction sends cmd and returns the device's answer to it, which is
// clocked out during the following frame
func (d *Device) transaction(cmd uint32) (uint32, error) {
	d.tx[0] = byte(cmd >> 24)
	d.tx[1] = byte(cmd >> 16)
	d.tx[2] = byte(cmd >> 8)
	d.tx[3] = byte(cmd)
	if err := d.spi.Transfer(d.tx[:], d.rx[:]); err != nil {
		return 0, err
	}

	d.cfg.Sleep(d.cfg.InterFrameDelay)

	d.tx = [4]byte{}
	if err := d.spi.Transfer(d.tx[:], d.rx[:]); err != nil {
		return 0, err
	}

	return uint32(d.rx[0])<<24 | uint32(d.rx[1])<<16 | uint32(d.rx[2])<<8 | uint32(d.rx[3]), nil
}

func (d *Device) decode(layout Layout, frame uint32) (uint16, error) {
	if d.cfg.StrictParity && !CheckParity(frame, d.cfg.Parity) {
		return 0, &ParityError{Frame: frame}
	}
	return layout.Decode(frame)
}

// ReadRegister reads the 16-bit value of reg
func (d *Device) ReadRegister(reg Register) (uint16, error) {
	frame, err := d.transaction(EncodeReadCommand(reg, d.cfg.Parity))
	if err != nil {
		return 0, err
	}
	return d.decode(RegisterRead, frame)
}

// PartID reads the part identifier register
func (d *Device) PartID() (uint16, error) {
	return d.ReadRegister(RegPartID)
}

// SerialNumber reads the 32-bit serial number
func (d *Device) SerialNumber() (uint32, error) {
	high, err := d.ReadRegister(RegSerialHigh)
	if err != nil {
		return 0, err
	}
	low, err := d.ReadRegister(RegSerialLow)
	if err != nil {
		return 0, err
	}
	return uint32(high)<<16 | uint32(low), nil
}

func (d *Device) readRate() (int16, error) {
	var (
		data uint16
		err  error
	)

	switch d.cfg.Acquisition {
	case AcquireSensorData:
		var frame uint32
		frame, err = d.transaction(SensorDataCommand(d.cfg.Parity))
		if err == nil {
			data, err = d.decode(SensorData, frame)
		}
	default:
		data, err = d.ReadRegister(RegRate)
	}
	if err != nil {
		return 0, err
	}

	// Two's complement reinterpretation
	return int16(data), nil
}

// Update samples the rate once and integrates it. Call once per sample
// period.
//
// A failed read is not fatal: a zero sample is integrated in its place, the
// failure is logged and counted, and the error is returned for callers that
// want it.
func (d *Device) Update() error {
	rate, err := d.readRate()
	if err != nil {
		d.recordError(err)
		rate = 0
	}

	d.acc.AddData(float32(rate))
	d.stats.Samples++

	return err
}

func (d *Device) recordError(err error) {
	now := d.cfg.Clock.Millis()

	var (
		statusErr *StatusError
		parityErr *ParityError
	)
	switch {
	case errors.As(err, &statusErr):
		d.stats.StatusErrors++
		core.RecordEvent(core.EvtStatusError, now, statusErr.Frame, statusErr.Status)
	case errors.As(err, &parityErr):
		d.stats.ParityErrors++
		core.RecordEvent(core.EvtParityError, now, parityErr.Frame, 0)
	default:
		d.stats.BusErrors++
		core.RecordEvent(core.EvtBusError, now, 0, 0)
	}

	core.DebugAsync("[?] rate read failed, using zero sample: " + err.Error())
}

// Calibrate measures the stationary bias of the sensor and makes it the
// integration center. It blocks for the settle delay plus the calibration
// window. The sensor must be motionless meanwhile.
func (d *Device) Calibrate() {
	core.DebugPrintln("[+] adxrs450: calibrating, keep the sensor still")

	d.cfg.Sleep(d.cfg.SettleDelay)

	d.acc.SetIntegratedCenter(0)
	d.acc.Reset()

	window := uint32(d.cfg.CalibrationWindow / time.Millisecond)
	start := d.cfg.Clock.Millis()
	core.RecordEvent(core.EvtCalibrationStart, start, window, 0)

	for core.MillisSince(d.cfg.Clock, start) <= window {
		// Errors are counted and logged by Update
		_ = d.Update()

		d.cfg.Sleep(d.cfg.SamplePeriod)
	}

	samples := d.acc.Samples()
	average := d.acc.IntegratedAverage()

	d.acc.SetIntegratedCenter(average)
	d.acc.Reset()

	core.RecordEvent(core.EvtCalibrationDone, d.cfg.Clock.Millis(), samples, math.Float32bits(average))
	core.DebugPrintln("[+] adxrs450: calibration done, samples=" + core.Utoa(samples))
}

// Reset zeroes the angle. The calibrated center is kept.
func (d *Device) Reset() {
	d.acc.Reset()
	core.RecordEvent(core.EvtReset, d.cfg.Clock.Millis(), 0, 0)
}

// Angle returns the integrated angle in degrees
func (d *Device) Angle() float32 {
	return d.acc.IntegratedValue() * DegreesPerSecondPerLSB
}

// Rate returns the last sampled rate in degrees per second
func (d *Device) Rate() float32 {
	return d.acc.LastValue() * DegreesPerSecondPerLSB
}

// Center returns the calibrated bias subtracted per sample, in raw units
func (d *Device) Center() float32 {
	return d.acc.IntegratedCenter()
}

// Stats returns sample and error counters since New
func (d *Device) Stats() Stats {
	return d.stats
}
