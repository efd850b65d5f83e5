package adxrs450

// Every bus transaction is a 32-bit frame sent most-significant byte first.
//
// Read command:
//
//	bit  31     read opcode (1)
//	bits 30..29 0
//	bits 28..26 reserved, 0
//	bits 25..17 register address
//	bits 16..1  0 (write data, unused by reads)
//	bit  0      parity
//
// Responses are decoded with the Layout table below. The response to a
// command arrives in the frame that follows it.

const (
	OpMask       uint32 = 0x7 << 29
	OpRead       uint32 = 0x4 << 29 // register read
	OpSensorData uint32 = 0x1 << 29 // sensor data request

	AddressShift = 17
	AddressMask  = 0x1FF

	ParityBit uint32 = 1

	DataMask = 0xFFFF
)

// Parity selects how the parity bit in bit 0 completes a frame
type Parity uint8

const (
	// ParityEven sets bit 0 so the frame has an even number of one-bits
	ParityEven Parity = iota
	// ParityOdd sets bit 0 so the frame has an odd number of one-bits,
	// as the ADXRS450 datasheet specifies
	ParityOdd
)

// Layout describes where the status and data fields sit in a response frame
type Layout struct {
	Name        string
	StatusShift uint8  // position of the status field's low bit
	StatusMask  uint32 // status field width mask, applied after shifting
	StatusValid uint32 // status value meaning "normal operation"
	DataShift   uint8  // position of data bit 0; data is 16 bits wide
}

var (
	// RegisterRead is the response to a read command:
	// status bits 31..29 == 0b010, data bits 20..5
	RegisterRead = Layout{
		Name:        "register-read",
		StatusShift: 29,
		StatusMask:  0x7,
		StatusValid: 0x2,
		DataShift:   5,
	}

	// SensorData is the response to a sensor data request:
	// status bits 27..26 == 0b01, data bits 25..10
	SensorData = Layout{
		Name:        "sensor-data",
		StatusShift: 26,
		StatusMask:  0x3,
		StatusValid: 0x1,
		DataShift:   10,
	}
)

// CalculateParity reports whether v has an odd number of one-bits.
func CalculateParity(v uint32) bool {
	parity := false
	for v != 0 {
		v &= v - 1 // clear lowest set bit
		parity = !parity
	}
	return parity
}

// withParity fills in bit 0 of frame. Bit 0 must be clear on entry.
func withParity(frame uint32, p Parity) uint32 {
	odd := CalculateParity(frame)
	if (p == ParityEven && odd) || (p == ParityOdd && !odd) {
		frame |= ParityBit
	}
	return frame
}

// CheckParity reports whether frame, including its parity bit, satisfies p
func CheckParity(frame uint32, p Parity) bool {
	odd := CalculateParity(frame)
	if p == ParityOdd {
		return odd
	}
	return !odd
}

// ReadCommand encodes a read of reg with even parity
func ReadCommand(reg Register) uint32 {
	return EncodeReadCommand(reg, ParityEven)
}

// EncodeReadCommand encodes a read of reg with the given parity
func EncodeReadCommand(reg Register, p Parity) uint32 {
	cmd := OpRead | uint32(reg.Address())<<AddressShift
	return withParity(cmd, p)
}

// SensorDataCommand encodes a sensor data request with the given parity
func SensorDataCommand(p Parity) uint32 {
	return withParity(OpSensorData, p)
}

// CommandRegister extracts the register address from a read command
func CommandRegister(cmd uint32) Register {
	return Register((cmd >> AddressShift) & AddressMask)
}

// Status extracts the status field of frame
func (l Layout) Status(frame uint32) uint32 {
	return (frame >> l.StatusShift) & l.StatusMask
}

// Data extracts the 16 data bits of frame
func (l Layout) Data(frame uint32) uint16 {
	return uint16((frame >> l.DataShift) & DataMask)
}

// Decode validates the status field of frame and returns its data bits.
// An all-zero frame (no response) fails the status check like any other
// unexpected status.
func (l Layout) Decode(frame uint32) (uint16, error) {
	if status := l.Status(frame); status != l.StatusValid {
		return 0, &StatusError{Layout: l.Name, Frame: frame, Status: status}
	}
	return l.Data(frame), nil
}

// Encode builds a valid response frame carrying data.
// This is what the device sends; the driver only decodes.
func (l Layout) Encode(data uint16, p Parity) uint32 {
	frame := l.StatusValid<<l.StatusShift | uint32(data)<<l.DataShift
	return withParity(frame, p)
}
