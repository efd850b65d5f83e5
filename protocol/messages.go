package protocol

import "errors"

// Messages sent by the firmware
const (
	MsgGyroState       uint16 = 1 // clock, rate, angle, error count
	MsgGyroCalibration uint16 = 2 // center, samples
	MsgGyroIdentify    uint16 = 3 // part id, serial number
	MsgGyroEvent       uint16 = 4 // one event ring entry
)

// Commands sent by the host
const (
	CmdReset      uint16 = 16 // zero the angle
	CmdCalibrate  uint16 = 17 // rerun bias calibration (blocks ~5 s)
	CmdIdentify   uint16 = 18 // report part id and serial number
	CmdSetStream  uint16 = 19 // every: ticks between state reports, 0 stops
	CmdDumpEvents uint16 = 20 // send the event ring as MsgGyroEvent
)

var ErrUnknownMessage = errors.New("unknown message id")

// GyroState is the periodic telemetry report.
// Rate and angle are fixed point in thousandths of a degree.
type GyroState struct {
	Clock      uint32 // firmware millisecond clock
	RateMilli  int32  // m°/s
	AngleMilli int32  // m°
	ErrorCount uint32 // failed reads since boot
}

// Encode writes the state arguments to output
func (s *GyroState) Encode(output OutputBuffer) {
	EncodeVLQUint(output, s.Clock)
	EncodeVLQInt(output, s.RateMilli)
	EncodeVLQInt(output, s.AngleMilli)
	EncodeVLQUint(output, s.ErrorCount)
}

// Decode reads the state arguments from data
func (s *GyroState) Decode(data *[]byte) error {
	var err error
	if s.Clock, err = DecodeVLQUint(data); err != nil {
		return err
	}
	if s.RateMilli, err = DecodeVLQInt(data); err != nil {
		return err
	}
	if s.AngleMilli, err = DecodeVLQInt(data); err != nil {
		return err
	}
	s.ErrorCount, err = DecodeVLQUint(data)
	return err
}

// Rate returns the rate in degrees per second
func (s *GyroState) Rate() float64 {
	return float64(s.RateMilli) / 1000
}

// Angle returns the angle in degrees
func (s *GyroState) Angle() float64 {
	return float64(s.AngleMilli) / 1000
}

// GyroCalibration reports the result of a calibration run
type GyroCalibration struct {
	CenterMicro int32  // per-sample center, millionths of a raw LSB
	Samples     uint32 // samples taken during the window
}

func (c *GyroCalibration) Encode(output OutputBuffer) {
	EncodeVLQInt(output, c.CenterMicro)
	EncodeVLQUint(output, c.Samples)
}

func (c *GyroCalibration) Decode(data *[]byte) error {
	var err error
	if c.CenterMicro, err = DecodeVLQInt(data); err != nil {
		return err
	}
	c.Samples, err = DecodeVLQUint(data)
	return err
}

// GyroIdentify carries the sensor identity and the firmware version
type GyroIdentify struct {
	PartID       uint32
	SerialNumber uint32
	Firmware     string
}

func (id *GyroIdentify) Encode(output OutputBuffer) {
	EncodeVLQUint(output, id.PartID)
	EncodeVLQUint(output, id.SerialNumber)
	EncodeVLQString(output, id.Firmware)
}

func (id *GyroIdentify) Decode(data *[]byte) error {
	var err error
	if id.PartID, err = DecodeVLQUint(data); err != nil {
		return err
	}
	if id.SerialNumber, err = DecodeVLQUint(data); err != nil {
		return err
	}
	id.Firmware, err = DecodeVLQString(data)
	return err
}

// GyroEvent is one entry of the firmware event ring
type GyroEvent struct {
	Type   uint32
	Clock  uint32
	Value1 uint32
	Value2 uint32
}

func (e *GyroEvent) Encode(output OutputBuffer) {
	EncodeVLQUint(output, e.Type)
	EncodeVLQUint(output, e.Clock)
	EncodeVLQUint(output, e.Value1)
	EncodeVLQUint(output, e.Value2)
}

func (e *GyroEvent) Decode(data *[]byte) error {
	var err error
	if e.Type, err = DecodeVLQUint(data); err != nil {
		return err
	}
	if e.Clock, err = DecodeVLQUint(data); err != nil {
		return err
	}
	if e.Value1, err = DecodeVLQUint(data); err != nil {
		return err
	}
	e.Value2, err = DecodeVLQUint(data)
	return err
}
