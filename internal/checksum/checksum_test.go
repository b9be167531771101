package checksum

import (
	"bytes"
	"testing"
)

func TestCRC16KnownFrame(t *testing.T) {
	// 01 05 00 00 00 00 CD CA: de-assert coil 0 on slave 1.
	data := []byte{0x01, 0x05, 0x00, 0x00, 0x00, 0x00}
	got := AppendCRC16(append([]byte(nil), data...))
	want := []byte{0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0xCD, 0xCA}
	if !bytes.Equal(got, want) {
		t.Fatalf("AppendCRC16 = % X, want % X", got, want)
	}
	if crc := CRC16(data); crc != 0xCACD {
		t.Errorf("CRC16 = 0x%04X, want 0xCACD", crc)
	}
}

func TestCRC16Vectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		lo   byte
		hi   byte
	}{
		{"coil 0 on", []byte{0x01, 0x05, 0x00, 0x00, 0xFF, 0x00}, 0x8C, 0x3A},
		{"coil 1 on", []byte{0x01, 0x05, 0x00, 0x01, 0xFF, 0x00}, 0xDD, 0xFA},
		{"coil 2 on", []byte{0x01, 0x05, 0x00, 0x02, 0xFF, 0x00}, 0x2D, 0xFA},
		{"read 32 coils", []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x20}, 0x3D, 0xD2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CRC16(tt.data)
			if byte(crc) != tt.lo || byte(crc>>8) != tt.hi {
				t.Errorf("CRC16 = %02X %02X, want %02X %02X", byte(crc), byte(crc>>8), tt.lo, tt.hi)
			}
		})
	}
}

func TestCRC16Deterministic(t *testing.T) {
	data := []byte{0x08, 0x06, 0x00, 0x01, 0x00, 0x78}
	first := CRC16(data)
	for i := 0; i < 10; i++ {
		if got := CRC16(data); got != first {
			t.Fatalf("CRC16 call %d = 0x%04X, want 0x%04X", i, got, first)
		}
	}
}

func TestCRC16Empty(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16(nil) = 0x%04X, want 0xFFFF", got)
	}
}

func TestValidCRC16(t *testing.T) {
	frame := AppendCRC16([]byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x20})
	if !ValidCRC16(frame) {
		t.Fatal("ValidCRC16 returned false for valid frame")
	}
	// CRC over the entire frame including its CRC is zero.
	if crc := CRC16(frame); crc != 0 {
		t.Errorf("CRC16 of full frame = 0x%04X, want 0", crc)
	}
	frame[2] ^= 0xFF
	if ValidCRC16(frame) {
		t.Error("ValidCRC16 returned true for corrupted frame")
	}
	if ValidCRC16([]byte{0x01}) {
		t.Error("ValidCRC16 returned true for 1-byte input")
	}
}

func TestSum8(t *testing.T) {
	data := []byte{0xCC, 0x00, 0x05, 0x02, 0x00, 0xDD}
	if got := Sum8(data); got != 0xB0 {
		t.Errorf("Sum8 = 0x%02X, want 0xB0", got)
	}
	if got := Sum8(nil); got != 0 {
		t.Errorf("Sum8(nil) = 0x%02X, want 0", got)
	}
}

func TestSum16(t *testing.T) {
	lo, hi := Sum16([]byte{0xCC, 0x00, 0x05, 0x02, 0x00, 0xDD})
	if lo != 0xB0 || hi != 0x01 {
		t.Errorf("Sum16 = %02X %02X, want B0 01", lo, hi)
	}
	lo, hi = Sum16(nil)
	if lo != 0 || hi != 0 {
		t.Errorf("Sum16(nil) = %02X %02X, want 00 00", lo, hi)
	}
}
