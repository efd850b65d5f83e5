package adxrs450

import "gyrosense/core"

// DeviceNotFoundError is returned by New when the part ID register does not
// carry the ADXRS450 signature, or could not be read at all.
type DeviceNotFoundError struct {
	PartID uint16 // observed part ID (0 when the read failed)
	Err    error  // cause when the read failed
}

func (e *DeviceNotFoundError) Error() string {
	if e.Err != nil {
		return "adxrs450: device not found: " + e.Err.Error()
	}
	return "adxrs450: device not found, part id " + core.Hex(uint32(e.PartID), 4)
}

func (e *DeviceNotFoundError) Unwrap() error {
	return e.Err
}

// StatusError reports a response whose status field is not the normal
// operation code
type StatusError struct {
	Layout string
	Frame  uint32
	Status uint32
}

func (e *StatusError) Error() string {
	return "adxrs450: invalid " + e.Layout + " status " + core.Hex(e.Status, 1) +
		" in frame " + core.Hex(e.Frame, 8)
}

// ParityError reports a response failing the parity check (strict mode only)
type ParityError struct {
	Frame uint32
}

func (e *ParityError) Error() string {
	return "adxrs450: parity mismatch in frame " + core.Hex(e.Frame, 8)
}
