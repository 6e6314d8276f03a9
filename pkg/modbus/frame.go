package modbus

import (
	"encoding/binary"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/crc"
)

// SlaveAddress is the fixed Modbus slave address every device answers to.
const SlaveAddress uint8 = 17

// Function codes understood by this codec.
const (
	FuncReadHoldingRegisters uint8 = 0x03
	FuncReadInputRegisters   uint8 = 0x04
	FuncWriteSingleRegister  uint8 = 0x06
)

// BuildWriteSingleRegister builds an FC06 request writing val into reg.
func BuildWriteSingleRegister(reg, val uint16) []byte {
	frame := make([]byte, 6)
	frame[0] = SlaveAddress
	frame[1] = FuncWriteSingleRegister
	binary.BigEndian.PutUint16(frame[2:4], reg)
	binary.BigEndian.PutUint16(frame[4:6], val)
	return crc.Append(frame)
}

// BuildReadHoldingRegisters builds an FC03 request reading count registers
// starting at start.
func BuildReadHoldingRegisters(start, count uint16) []byte {
	return buildReadRequest(FuncReadHoldingRegisters, start, count)
}

// BuildReadInputRegisters builds an FC04 request reading count registers
// starting at start.
func BuildReadInputRegisters(start, count uint16) []byte {
	return buildReadRequest(FuncReadInputRegisters, start, count)
}

func buildReadRequest(fc uint8, start, count uint16) []byte {
	frame := make([]byte, 6)
	frame[0] = SlaveAddress
	frame[1] = fc
	binary.BigEndian.PutUint16(frame[2:4], start)
	binary.BigEndian.PutUint16(frame[4:6], count)
	return crc.Append(frame)
}
