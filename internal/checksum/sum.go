package checksum

// Additive checksums used by the "CC…DD" frame families.

// Sum8 returns the arithmetic sum of data modulo 256.
func Sum8(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

// Sum16 returns the additive sum of data kept in a 16-bit accumulator,
// split into its low and high bytes.
func Sum16(data []byte) (lo, hi uint8) {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return uint8(sum), uint8(sum >> 8)
}
