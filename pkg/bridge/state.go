package bridge

import (
	"encoding/json"
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/stateprojector"
)

// statePayload is the JSON shape published to fossibot/{MAC}/state.
// Field names match the camelCase the cloud/app side already uses on
// the wire (e.g. "soc", "inputWatts", "usbOutput"), not Go's usual
// snake_case JSON convention.
type statePayload struct {
	DCInputWatts int     `json:"dcInputWatts"`
	InputWatts   int     `json:"inputWatts"`
	OutputWatts  int     `json:"outputWatts"`
	SoC          float64 `json:"soc"`

	USB bool `json:"usbOutput"`
	AC  bool `json:"acOutput"`
	DC  bool `json:"dcOutput"`
	LED bool `json:"ledOutput"`

	ACSilentCharging bool    `json:"acSilentCharging"`
	MaxChargeAmps    int     `json:"maxChargeAmps"`
	USBStandbyMin    int     `json:"usbStandbyMin"`
	ACStandbyMin     int     `json:"acStandbyMin"`
	DCStandbyMin     int     `json:"dcStandbyMin"`
	ScreenRestSec    int     `json:"screenRestSec"`
	ACTimerMin       int     `json:"acTimerMin"`
	DischargeLow     float64 `json:"dischargeLow"`
	ACChargeHigh     float64 `json:"acChargeHigh"`
	SleepTimeMin     int     `json:"sleepTimeMin"`

	SwitchSource string `json:"switchSource,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// marshalState renders a projected DeviceState as the bridge's public
// state-topic JSON payload.
func marshalState(s stateprojector.DeviceState) ([]byte, error) {
	p := statePayload{
		DCInputWatts:     s.DCInputWatts,
		InputWatts:       s.InputWatts,
		OutputWatts:      s.OutputWatts,
		SoC:              s.SoC,
		USB:              s.Switches.USB,
		AC:               s.Switches.AC,
		DC:               s.Switches.DC,
		LED:              s.Switches.LED,
		ACSilentCharging: s.ACSilentCharging,
		MaxChargeAmps:    s.MaxChargeAmps,
		USBStandbyMin:    s.USBStandbyMin,
		ACStandbyMin:     s.ACStandbyMin,
		DCStandbyMin:     s.DCStandbyMin,
		ScreenRestSec:    s.ScreenRestSec,
		ACTimerMin:       s.ACTimerMin,
		DischargeLow:     s.DischargeLow,
		ACChargeHigh:     s.ACChargeHigh,
		SleepTimeMin:     s.SleepTimeMin,
		SwitchSource:     string(s.SwitchSource),
	}
	if !s.UpdatedAt.IsZero() {
		p.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(p)
}
