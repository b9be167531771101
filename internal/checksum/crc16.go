package checksum

// CRC-16 as used by RTU-style frames.

// CRC16Size is the number of bytes a CRC-16 occupies on the wire.
const CRC16Size = 2

// CRC16 computes the Modbus CRC-16 for the given data.
// Uses the polynomial 0xA001 (reflected form of 0x8005), initial value 0xFFFF.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC16 appends the CRC-16 of data to data, low byte first.
func AppendCRC16(data []byte) []byte {
	crc := CRC16(data)
	return append(data, byte(crc), byte(crc>>8))
}

// FrameCRC16 returns the little-endian CRC carried in the last two bytes of frame.
// ok is false when the frame is too short to carry one.
func FrameCRC16(frame []byte) (crc uint16, ok bool) {
	if len(frame) < CRC16Size {
		return 0, false
	}
	return uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8, true
}

// ValidCRC16 reports whether the trailing CRC of frame matches the bytes before it.
func ValidCRC16(frame []byte) bool {
	got, ok := FrameCRC16(frame)
	if !ok {
		return false
	}
	return got == CRC16(frame[:len(frame)-CRC16Size])
}
