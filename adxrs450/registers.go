// Package adxrs450 provides a driver for the Analog Devices ADXRS450
// single-axis rate gyroscope on SPI.
//
// Datasheet: https://www.analog.com/media/en/technical-documentation/data-sheets/ADXRS450.pdf
package adxrs450

// Register is a 9-bit device register address
type Register uint16

const (
	RegRate       Register = 0x00 // rate output, 16-bit two's complement
	RegTemp       Register = 0x02 // temperature
	RegLowCST     Register = 0x04 // low continuous self-test value
	RegHighCST    Register = 0x06 // high continuous self-test value
	RegQuad       Register = 0x08 // quadrature error
	RegFault      Register = 0x0A // fault status bits
	RegPartID     Register = 0x0C // part identifier, 0x52xx
	RegSerialHigh Register = 0x0E // serial number bits 31..16
	RegSerialLow  Register = 0x10 // serial number bits 15..0
)

// Registers lists every addressable register in address order
var Registers = []Register{
	RegRate,
	RegTemp,
	RegLowCST,
	RegHighCST,
	RegQuad,
	RegFault,
	RegPartID,
	RegSerialHigh,
	RegSerialLow,
}

const (
	// PartIDSignature is the expected high byte of the part ID register
	PartIDSignature = 0x52

	// DegreesPerSecondPerLSB converts raw rate units to °/s
	DegreesPerSecondPerLSB float32 = 1.0 / 80.0
)

// Address returns the 9-bit bus address of the register
func (r Register) Address() uint16 {
	return uint16(r) & AddressMask
}

func (r Register) String() string {
	switch r {
	case RegRate:
		return "RATE"
	case RegTemp:
		return "TEM"
	case RegLowCST:
		return "LOCST"
	case RegHighCST:
		return "HICST"
	case RegQuad:
		return "QUAD"
	case RegFault:
		return "FAULT"
	case RegPartID:
		return "PID"
	case RegSerialHigh:
		return "SN_HIGH"
	case RegSerialLow:
		return "SN_LOW"
	default:
		return "REG_UNKNOWN"
	}
}
