// Package topics translates between the vendor cloud's MQTT namespace
// and the bridge's local namespace. Pure functions; no I/O.
package topics

import (
	"fmt"
	"strings"
)

// cloudResponseInfix is matched against incoming cloud topics; the
// local topic is always the same regardless of which sub-stream
// (04, data, state, ...) produced it.
const cloudResponseInfix = "/device/response/"

const localCommandSuffix = "/command"

// IsMACValid reports whether mac is exactly 12 hex characters.
func IsMACValid(mac string) bool {
	if len(mac) != 12 {
		return false
	}
	for _, r := range mac {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// CanonicalMAC normalizes mac to uppercase, or returns ("", false) if it
// is not a valid 12-hex MAC.
func CanonicalMAC(mac string) (string, bool) {
	if !IsMACValid(mac) {
		return "", false
	}
	return strings.ToUpper(mac), true
}

// CloudTopicToLocal maps a cloud response topic ("{MAC}/device/response/
// {04,data,state,...}") to the local publish topic ("fossibot/{MAC}/
// state"). ok is false if the topic's MAC segment does not parse.
func CloudTopicToLocal(cloudTopic string) (topic string, mac string, ok bool) {
	idx := strings.Index(cloudTopic, cloudResponseInfix)
	if idx < 0 {
		return "", "", false
	}
	rawMAC := cloudTopic[:idx]
	canon, valid := CanonicalMAC(rawMAC)
	if !valid {
		return "", "", false
	}
	return fmt.Sprintf("fossibot/%s/state", canon), canon, true
}

// LocalTopicToCloud maps a local command topic ("fossibot/{MAC}/
// command") to the cloud publish topic ("{MAC}/client/request/data").
func LocalTopicToCloud(localTopic string) (topic string, mac string, ok bool) {
	const prefix = "fossibot/"
	if !strings.HasPrefix(localTopic, prefix) || !strings.HasSuffix(localTopic, localCommandSuffix) {
		return "", "", false
	}
	rawMAC := strings.TrimSuffix(strings.TrimPrefix(localTopic, prefix), localCommandSuffix)
	canon, valid := CanonicalMAC(rawMAC)
	if !valid {
		return "", "", false
	}
	return fmt.Sprintf("%s/client/request/data", canon), canon, true
}

// LocalStateTopic returns the retained-state publish topic for mac
// (already-canonical).
func LocalStateTopic(mac string) string {
	return fmt.Sprintf("fossibot/%s/state", mac)
}

// LocalCommandTopic returns the subscribe topic the bridge listens on
// for mac's commands.
func LocalCommandTopic(mac string) string {
	return fmt.Sprintf("fossibot/%s/command", mac)
}

// CloudSubscribeTopic returns the cloud-side subscription topic for mac.
func CloudSubscribeTopic(mac string) string {
	return fmt.Sprintf("%s/device/response/+", mac)
}

// CloudPublishTopic returns the cloud-side publish topic for mac's
// outbound Modbus frames.
func CloudPublishTopic(mac string) string {
	return fmt.Sprintf("%s/client/request/data", mac)
}
