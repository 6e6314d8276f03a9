package modbus

import (
	"encoding/binary"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/crc"
)

// ParseReadResponse parses an FC03/FC04 response frame into a map of
// register address to 16-bit value. expectedFC is the function code the
// caller issued the request with; a response carrying any other function
// code is rejected with FunctionMismatch. start is the first register
// address the request asked for (0 when the caller does not track an
// offset and wants indices starting at 0).
func ParseReadResponse(data []byte, expectedFC uint8, start uint16) (map[uint16]uint16, error) {
	if expectedFC != FuncReadHoldingRegisters && expectedFC != FuncReadInputRegisters {
		return nil, newFrameError(UnsupportedFunction, "function code 0x%02X is not a read function", expectedFC)
	}

	// slave + fc + byteCount + at least 0 payload bytes + 2 CRC bytes
	if len(data) < 5 {
		return nil, newFrameError(FrameTooShort, "frame has %d bytes, need at least 5", len(data))
	}

	if !crc.Verify(data) {
		return nil, newFrameError(BadCRC, "CRC mismatch")
	}

	fc := data[1]
	if fc != expectedFC {
		return nil, newFrameError(FunctionMismatch, "response function 0x%02X does not match request function 0x%02X", fc, expectedFC)
	}

	byteCount := int(data[2])
	payload := data[3 : len(data)-2]
	if byteCount != len(payload) {
		return nil, newFrameError(ByteCountMismatch, "declared byte count %d does not match payload length %d", byteCount, len(payload))
	}
	if byteCount%2 != 0 {
		return nil, newFrameError(ByteCountMismatch, "byte count %d is not a multiple of 2", byteCount)
	}

	registers := make(map[uint16]uint16, byteCount/2)
	for i := 0; i < byteCount; i += 2 {
		addr := start + uint16(i/2)
		registers[addr] = binary.BigEndian.Uint16(payload[i : i+2])
	}
	return registers, nil
}

// ParseWriteSingleRegisterResponse parses the FC06 echo response and
// returns the confirmed (register, value) pair.
func ParseWriteSingleRegisterResponse(data []byte) (reg, val uint16, err error) {
	if len(data) != 8 {
		return 0, 0, newFrameError(FrameTooShort, "FC06 echo must be 8 bytes, got %d", len(data))
	}
	if !crc.Verify(data) {
		return 0, 0, newFrameError(BadCRC, "CRC mismatch")
	}
	if data[1] != FuncWriteSingleRegister {
		return 0, 0, newFrameError(FunctionMismatch, "response function 0x%02X is not FC06", data[1])
	}
	reg = binary.BigEndian.Uint16(data[2:4])
	val = binary.BigEndian.Uint16(data[4:6])
	return reg, val, nil
}
