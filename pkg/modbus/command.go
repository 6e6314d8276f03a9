package modbus

import (
	"fmt"

	bridgeerrors "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
)

// ResponseClass classifies how a write-single-register command's effect is
// expected to surface.
type ResponseClass int

const (
	// ResponseImmediate: the device answers on .../client/04 and that
	// answer is authoritative for the written register.
	ResponseImmediate ResponseClass = iota
	// ResponseDelayed: no immediate answer is expected; the effect
	// surfaces in the next .../client/data poll.
	ResponseDelayed
	// ResponseReadResponse: the write's effect is only ever observable
	// via the next .../client/data (FC03) poll.
	ResponseReadResponse
)

func (c ResponseClass) String() string {
	switch c {
	case ResponseImmediate:
		return "immediate"
	case ResponseDelayed:
		return "delayed"
	case ResponseReadResponse:
		return "read-response"
	default:
		return "unknown"
	}
}

// RegisterTypeHint tells the state projector which decoding table a
// command's response should be read against.
type RegisterTypeHint int

const (
	// HintFC04 selects the power/switch decoding table fed by
	// .../client/04 responses.
	HintFC04 RegisterTypeHint = iota
	// HintFC03 selects the settings decoding table fed by
	// .../client/data polls.
	HintFC03
)

// Kind discriminates the three Modbus operations the bridge issues.
type Kind int

const (
	KindWriteSingleRegister Kind = iota
	KindReadInputRegisters
	KindReadHoldingRegisters
)

// Command is a fully-validated, ready-to-send Modbus operation.
type Command struct {
	Kind          Kind
	Register      uint16 // target register (write) or start register (read)
	Value         uint16 // write value; unused for reads
	Count         uint16 // register count; unused for writes
	ResponseClass ResponseClass
	Hint          RegisterTypeHint
	frame         []byte
	description   string
}

// Frame returns the wire bytes for this command, CRC included.
func (c *Command) Frame() []byte { return c.frame }

// Description returns a human-readable summary for logs.
func (c *Command) Description() string { return c.description }

// registerWriteGuard68 is hardware-verified: writing 0 to register 68
// bricks the device's sleep-timer setting, which must never be 0.
// Rejected unconditionally, regardless of caller.
const registerWriteGuard68 = 68

// NewWriteSingleRegister validates and builds an FC06 command. class
// tells the dispatcher/state-projector how to expect the effect to
// surface.
func NewWriteSingleRegister(reg, val uint16, class ResponseClass) (*Command, error) {
	if reg == registerWriteGuard68 && val == 0 {
		return nil, bridgeerrors.New(bridgeerrors.BadInput, "modbus.NewWriteSingleRegister", "", "",
			fmt.Errorf("writing 0 to register %d is rejected (would brick the sleep timer)", registerWriteGuard68))
	}

	return &Command{
		Kind:          KindWriteSingleRegister,
		Register:      reg,
		Value:         val,
		ResponseClass: class,
		Hint:          HintFC04,
		frame:         BuildWriteSingleRegister(reg, val),
		description:   fmt.Sprintf("write register %d = %d (%s)", reg, val, class),
	}, nil
}

// NewReadHoldingRegisters validates and builds an FC03 command.
func NewReadHoldingRegisters(start, count uint16) (*Command, error) {
	if err := validateReadRange(start, count); err != nil {
		return nil, err
	}
	return &Command{
		Kind:          KindReadHoldingRegisters,
		Register:      start,
		Count:         count,
		ResponseClass: ResponseReadResponse,
		Hint:          HintFC03,
		frame:         BuildReadHoldingRegisters(start, count),
		description:   fmt.Sprintf("read %d holding register(s) from %d", count, start),
	}, nil
}

// NewReadInputRegisters validates and builds an FC04 command.
func NewReadInputRegisters(start, count uint16) (*Command, error) {
	if err := validateReadRange(start, count); err != nil {
		return nil, err
	}
	return &Command{
		Kind:          KindReadInputRegisters,
		Register:      start,
		Count:         count,
		ResponseClass: ResponseImmediate,
		Hint:          HintFC04,
		frame:         BuildReadInputRegisters(start, count),
		description:   fmt.Sprintf("read %d input register(s) from %d", count, start),
	}, nil
}

func validateReadRange(start, count uint16) error {
	if count < 1 || count > 125 {
		return bridgeerrors.New(bridgeerrors.BadInput, "modbus.validateReadRange", "", "",
			fmt.Errorf("register count %d out of range [1,125]", count))
	}
	if int(start)+int(count) > 65536 {
		return bridgeerrors.New(bridgeerrors.BadInput, "modbus.validateReadRange", "", "",
			fmt.Errorf("start %d + count %d exceeds register space", start, count))
	}
	return nil
}
