// Package protocol implements the framed link between the gyro firmware and
// a host: CRC16-checked blocks with sequence numbers, VLQ-encoded command
// ids and arguments, and ACK/NAK flow control.
//
// Block layout:
//
//	len  seq  payload...  crc_hi  crc_lo  0x7E
//
// len counts the whole block. The high nibble of seq is always 0x10; the low
// nibble carries the sequence number. A block with an empty payload is an
// ACK (or a NAK when its sequence is not the one the peer expects).
package protocol

// Version of the link protocol
const Version = "1.0.0"

// Protocol constants
const (
	MessageMax = 512 // Output scratch buffer size

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// nextSeq returns the sequence following seq, keeping the 0x10 marker
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
