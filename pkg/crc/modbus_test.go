package crc

import "testing"

func TestCRC16IsDeterministic(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	if CRC16(data) != CRC16(append([]byte(nil), data...)) {
		t.Fatal("CRC16 of equal inputs produced different results")
	}
}

func TestCRC16DetectsSingleByteChange(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	base := CRC16(data)
	data[3] ^= 0x01
	if CRC16(data) == base {
		t.Fatal("expected a single flipped bit to change the checksum")
	}
}

func TestAppendThenVerifyRoundTrips(t *testing.T) {
	data := []byte{0x11, 0x06, 0x00, 0x18, 0x00, 0x01}
	framed := Append(data)
	if len(framed) != len(data)+2 {
		t.Fatalf("Append produced %d bytes, want %d", len(framed), len(data)+2)
	}
	if !Verify(framed) {
		t.Fatalf("Verify rejected a freshly-appended frame: %x", framed)
	}
}

func TestAppendWritesLowByteFirst(t *testing.T) {
	data := []byte{0x11, 0x04, 0x00, 0x00, 0x00, 0x46}
	framed := Append(data)
	c := CRC16(data)
	if framed[len(framed)-2] != byte(c) || framed[len(framed)-1] != byte(c>>8) {
		t.Fatalf("Append did not write CRC low-byte-first: got %x, want low=%02x high=%02x", framed[len(framed)-2:], byte(c), byte(c>>8))
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	framed := Append([]byte{0x11, 0x03, 0x00, 0x04, 0x00, 0x02})
	framed[0] ^= 0xFF
	if Verify(framed) {
		t.Fatal("expected Verify to reject a corrupted frame")
	}
}

func TestVerifyRejectsTooShort(t *testing.T) {
	if Verify([]byte{0x01, 0x02, 0x03}) {
		t.Fatal("expected Verify to reject frames under 4 bytes")
	}
}
