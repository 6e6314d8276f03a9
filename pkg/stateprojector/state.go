// Package stateprojector maintains one device-state record per MAC and
// applies topic-priority arbitration between the immediate
// ".../client/04" response and the subordinate ".../client/data" poll.
package stateprojector

import (
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/modbus"
)

// Topic identifies which cloud response stream a register map arrived
// on; the arbitration rule below depends on this.
type Topic int

const (
	TopicImmediate  Topic = iota // .../client/04
	TopicPolling                 // .../client/data
)

// SwitchSource records whether the most recent switch state came from a
// command-triggered immediate response or a spontaneous one.
type SwitchSource string

const (
	SourceCommand     SwitchSource = "command"
	SourceSpontaneous SwitchSource = "spontaneous"
)

// arbitrationWindow bounds how long an immediate response stays
// authoritative over the switch field (register 41) before a polling
// update is allowed to override it. Power registers are never taken
// from polling updates, whatever their age.
const arbitrationWindow = 35 * time.Second

// DeviceState is the projected snapshot for one MAC.
type DeviceState struct {
	MAC string

	DCInputWatts int
	InputWatts   int
	OutputWatts  int
	SoC          float64

	Switches modbus.Switches

	ACSilentCharging bool
	MaxChargeAmps    int
	USBStandbyMin    int
	ACStandbyMin     int
	DCStandbyMin     int
	ScreenRestSec    int
	ACTimerMin       int
	DischargeLow     float64
	ACChargeHigh     float64
	SleepTimeMin     int

	SwitchSource SwitchSource
	UpdatedAt    time.Time

	lastOutputUpdate time.Time
	lastSocUpdate    time.Time
}

// Projector owns the device records of one account; each
// bridge.AccountSupervisor holds its own Projector.
type Projector struct {
	states map[string]*DeviceState
}

// New constructs an empty Projector.
func New() *Projector {
	return &Projector{states: make(map[string]*DeviceState)}
}

func (p *Projector) stateFor(mac string) *DeviceState {
	s, ok := p.states[mac]
	if !ok {
		s = &DeviceState{MAC: mac}
		p.states[mac] = s
	}
	return s
}

// Snapshot returns a copy of the current state for mac, or the zero
// value if nothing has been projected yet.
func (p *Projector) Snapshot(mac string) DeviceState {
	if s, ok := p.states[mac]; ok {
		return *s
	}
	return DeviceState{MAC: mac}
}

// Apply projects a decoded register map onto mac's state according to
// the topic-priority rule, and returns the (possibly unchanged)
// resulting snapshot plus whether anything changed.
func (p *Projector) Apply(mac string, topic Topic, registers map[uint16]uint16, wasCommandTriggered bool, now time.Time) (DeviceState, bool) {
	s := p.stateFor(mac)
	changed := false

	for reg, raw := range registers {
		switch {
		case modbus.PowerRegisters[reg]:
			if topic != TopicImmediate {
				continue // power registers only ever come from /client/04
			}
			changed = p.applyPowerRegister(s, reg, raw, now) || changed

		case reg == modbus.RegOutputSwitch:
			if !p.applySwitchRegister(s, topic, raw, wasCommandTriggered, now) {
				continue
			}
			changed = true

		case modbus.SettingsRegisters[reg]:
			if topic != TopicPolling {
				continue // settings registers only ever come from /client/data
			}
			changed = p.applySettingsRegister(s, reg, raw) || changed
		}
	}

	if changed {
		s.UpdatedAt = now
	}

	return *s, changed
}

func (p *Projector) applyPowerRegister(s *DeviceState, reg uint16, raw uint16, now time.Time) bool {
	switch reg {
	case modbus.RegDCInputWatts:
		if s.DCInputWatts == int(raw) {
			return false
		}
		s.DCInputWatts = int(raw)
	case modbus.RegInputWatts:
		if s.InputWatts == int(raw) {
			return false
		}
		s.InputWatts = int(raw)
	case modbus.RegOutputWatts:
		if s.OutputWatts == int(raw) {
			return false
		}
		s.OutputWatts = int(raw)
	case modbus.RegSoC:
		soc := modbus.DecodeSoC(raw)
		s.lastSocUpdate = now
		if s.SoC == soc {
			return false
		}
		s.SoC = soc
	default:
		return false
	}
	return true
}

// applySwitchRegister implements the register-41 arbitration rule.
func (p *Projector) applySwitchRegister(s *DeviceState, topic Topic, raw uint16, wasCommandTriggered bool, now time.Time) bool {
	if topic == TopicPolling {
		if !s.lastOutputUpdate.IsZero() && now.Sub(s.lastOutputUpdate) <= arbitrationWindow {
			return false // subordinate update inside the authoritative window: dropped
		}
	}

	decoded := modbus.DecodeSwitches(raw)
	changed := decoded != s.Switches
	s.Switches = decoded

	if topic == TopicImmediate {
		s.lastOutputUpdate = now
		if wasCommandTriggered {
			s.SwitchSource = SourceCommand
		} else {
			s.SwitchSource = SourceSpontaneous
		}
	}

	return changed
}

func (p *Projector) applySettingsRegister(s *DeviceState, reg uint16, raw uint16) bool {
	switch reg {
	case modbus.RegACSilent:
		v := modbus.DecodeBool(raw)
		if s.ACSilentCharging == v {
			return false
		}
		s.ACSilentCharging = v
	case modbus.RegMaxChargeA:
		if s.MaxChargeAmps == int(raw) {
			return false
		}
		s.MaxChargeAmps = int(raw)
	case modbus.RegUSBStandbyMin:
		if s.USBStandbyMin == int(raw) {
			return false
		}
		s.USBStandbyMin = int(raw)
	case modbus.RegACStandbyMin:
		if s.ACStandbyMin == int(raw) {
			return false
		}
		s.ACStandbyMin = int(raw)
	case modbus.RegDCStandbyMin:
		if s.DCStandbyMin == int(raw) {
			return false
		}
		s.DCStandbyMin = int(raw)
	case modbus.RegScreenRestSec:
		if s.ScreenRestSec == int(raw) {
			return false
		}
		s.ScreenRestSec = int(raw)
	case modbus.RegACTimerMin:
		if s.ACTimerMin == int(raw) {
			return false
		}
		s.ACTimerMin = int(raw)
	case modbus.RegDischargeLow:
		v := modbus.DecodePercentTenths(raw)
		if s.DischargeLow == v {
			return false
		}
		s.DischargeLow = v
	case modbus.RegACChargeHigh:
		v := modbus.DecodePercentTenths(raw)
		if s.ACChargeHigh == v {
			return false
		}
		s.ACChargeHigh = v
	case modbus.RegSleepTimeMin:
		if s.SleepTimeMin == int(raw) {
			return false
		}
		s.SleepTimeMin = int(raw)
	default:
		return false
	}
	return true
}
