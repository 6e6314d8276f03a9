// Package device persists the vendor's device-list response and tracks
// per-device liveness in memory for logging/metrics.
package device

import "time"

// Device is one entry from the cloud's device-list response.
type Device struct {
	MAC       string    `json:"mac"` // canonical uppercase form
	Name      string    `json:"name"`
	ProductID string    `json:"product_id"`
	Model     string    `json:"model"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

// Liveness is an in-memory-only per-device record (spec_full §4 "Device
// registry supplement"): it never touches the persisted cache and is not
// published on any topic beyond what the state projector already emits.
type Liveness struct {
	LastSeen           time.Time
	ConsecutiveDecodeErrors int
}
