package core

// Itoa converts an integer to a string without using the fmt package.
// This is a lightweight alternative for embedded systems.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	u := uint64(n)
	if negative {
		u = uint64(-int64(n))
	}

	var buf [21]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}

// Utoa converts an unsigned integer to a string
func Utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[pos:])
}

const hexDigits = "0123456789ABCDEF"

// Hex formats n as "0x" followed by exactly digits upper-case hex digits.
// Higher-order nibbles beyond digits are dropped.
func Hex(n uint32, digits int) string {
	if digits < 1 {
		digits = 1
	}
	if digits > 8 {
		digits = 8
	}

	buf := make([]byte, 2+digits)
	buf[0] = '0'
	buf[1] = 'x'
	for i := digits - 1; i >= 0; i-- {
		buf[2+i] = hexDigits[n&0xF]
		n >>= 4
	}

	return string(buf)
}
