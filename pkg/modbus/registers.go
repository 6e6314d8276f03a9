package modbus

// Register addresses decoded by the state projector.
const (
	RegDCInputWatts  uint16 = 4
	RegInputWatts    uint16 = 6
	RegOutputWatts   uint16 = 39
	RegOutputSwitch  uint16 = 41 // bitfield: usb/ac/dc/led
	RegSoC           uint16 = 56
	RegACSilent      uint16 = 57
	RegMaxChargeA    uint16 = 20
	RegUSBStandbyMin uint16 = 59
	RegACStandbyMin  uint16 = 60
	RegDCStandbyMin  uint16 = 61
	RegScreenRestSec uint16 = 62
	RegACTimerMin    uint16 = 63
	RegDischargeLow  uint16 = 66
	RegACChargeHigh  uint16 = 67
	RegSleepTimeMin  uint16 = 68
)

// Per-switch write targets: USB/AC/DC/LED each get their own
// single-register FC06 write, distinct from the read-only bitfield at
// RegOutputSwitch. Only RegWriteUSB=24 is confirmed against a real
// worked example; the other three follow the device's contiguous
// switch-register layout.
const (
	RegWriteUSB uint16 = 24
	RegWriteAC  uint16 = 25
	RegWriteDC  uint16 = 26
	RegWriteLED uint16 = 27
)

// PowerRegisters are only ever authoritative when read from .../client/04.
var PowerRegisters = map[uint16]bool{
	RegDCInputWatts: true,
	RegInputWatts:   true,
	RegOutputWatts:  true,
	RegSoC:          true,
}

// SettingsRegisters are only ever sourced from .../client/data (FC03
// polling); the same addresses on .../client/04 carry stale zeros and
// must be ignored.
var SettingsRegisters = map[uint16]bool{
	RegACSilent:      true,
	RegMaxChargeA:    true,
	RegUSBStandbyMin: true,
	RegACStandbyMin:  true,
	RegDCStandbyMin:  true,
	RegScreenRestSec: true,
	RegACTimerMin:    true,
	RegDischargeLow:  true,
	RegACChargeHigh:  true,
	RegSleepTimeMin:  true,
}

// Output switch bits within RegOutputSwitch.
const (
	bitUSB = 1 << 9
	bitDC  = 1 << 10
	// AC is bits 2 and 11; bit 7 co-occurs with USB/DC and must never be
	// read alone.
	bitACMask = 0x804
	bitLED    = 1 << 12
)

// Switches is the decoded form of RegOutputSwitch.
type Switches struct {
	USB bool
	AC  bool
	DC  bool
	LED bool
}

// DecodeSwitches applies the hardware-verified bit layout for register 41.
func DecodeSwitches(bitfield uint16) Switches {
	return Switches{
		USB: bitfield&bitUSB != 0,
		DC:  bitfield&bitDC != 0,
		AC:  bitfield&bitACMask != 0,
		LED: bitfield&bitLED != 0,
	}
}

// DecodeSoC converts the raw register-56 value (tenths of a percent, same
// width and convention as the other percent registers) into a percentage
// rounded to one decimal place: raw/10 (e.g. 850 -> 85.0%).
func DecodeSoC(raw uint16) float64 {
	return roundTo1(float64(raw) / 10)
}

// DecodePercentTenths converts a raw tenths-of-a-percent register (66, 67)
// into a percentage.
func DecodePercentTenths(raw uint16) float64 {
	return roundTo1(float64(raw) / 10)
}

// DecodeBool interprets a raw register as a boolean flag (register 57:
// AC silent charging).
func DecodeBool(raw uint16) bool {
	return raw == 1
}

func roundTo1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
