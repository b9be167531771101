// Package checksum implements the integrity checks shared by all frame
// dialects: the Modbus CRC-16 and the 8/16-bit additive sums.
//
// All functions are pure and never fail; an empty input yields the checksum
// over zero bytes.
package checksum
