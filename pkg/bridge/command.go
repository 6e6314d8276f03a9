package bridge

import (
	"fmt"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/localbroker"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/modbus"
)

// switchRegisters maps a local command action to the write-single-
// register target for that switch (spec_full "Per-switch write
// registers").
var switchRegisters = map[string]uint16{
	"usb": modbus.RegWriteUSB,
	"ac":  modbus.RegWriteAC,
	"dc":  modbus.RegWriteDC,
	"led": modbus.RegWriteLED,
}

// buildSwitchCommand turns a parsed local-broker command into the
// Modbus write it corresponds to.
func buildSwitchCommand(cmd localbroker.Command) (*modbus.Command, error) {
	reg, ok := switchRegisters[cmd.Action]
	if !ok {
		return nil, fmt.Errorf("unknown switch action %q", cmd.Action)
	}
	val := uint16(0)
	if cmd.Value {
		val = 1
	}
	return modbus.NewWriteSingleRegister(reg, val, modbus.ResponseImmediate)
}
