// Package conv holds allocation-free number formatting for report output.
package conv

// Utoa writes base-10 representation of n into buf and returns the used slice.
// buf should be length >= 20 for uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
	} else {
		for n > 0 && i > 0 {
			i--
			buf[i] = byte('0' + (n % 10))
			n /= 10
		}
	}
	return buf[i:]
}

// AppendUint appends n in base 10 to dst, left-padded with zeros to at
// least width digits. Numbers wider than width are never truncated.
func AppendUint(dst []byte, n uint64, width int) []byte {
	var tmp [20]byte
	digits := Utoa(tmp[:], n)
	for pad := width - len(digits); pad > 0; pad-- {
		dst = append(dst, '0')
	}
	return append(dst, digits...)
}

// AppendHexByte appends b as two uppercase hex digits.
func AppendHexByte(dst []byte, b byte) []byte {
	const hexd = "0123456789ABCDEF"
	return append(dst, hexd[b>>4], hexd[b&0xF])
}
