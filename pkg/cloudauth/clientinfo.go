package cloudauth

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientInfo generates a fresh per-process ClientInfo. The device id is
// a 32-character lowercase hex string derived from a random UUIDv4 with
// its dashes stripped, matching the vendor's expected shape.
func NewClientInfo() ClientInfo {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ClientInfo{
		DeviceID: id,
		Platform: "android",
		OSVer:    "13",
		AppVer:   "2.0.0",
	}
}
