package protocol

// CRC16 returns the CRC-16/MCRF4XX (CCITT polynomial, reflected, initial
// 0xFFFF) of data, transmitted high byte first in every block trailer
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
