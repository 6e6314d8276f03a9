// Package config defines the data shapes the bridge core is configured
// with. It intentionally contains no file-loading, CLI-flag, or
// validation logic: an external loader is responsible for reading a
// YAML document into a Config and handing it to bridge.NewSupervisor.
package config

import "time"

// Config is the root configuration the bridge core consumes.
type Config struct {
	Accounts  []Account       `yaml:"accounts"`
	Mosquitto MosquittoConfig `yaml:"mosquitto"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Cache     CacheConfig     `yaml:"cache"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// Account is one vendor-cloud account the bridge logs into; each gets
// its own authenticator, cloud session, dispatcher, and reconnect
// supervisor.
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Enabled  bool   `yaml:"enabled"`
}

// MosquittoConfig is the locally-owned broker the bridge publishes
// translated state to and takes commands from.
type MosquittoConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// BridgeConfig holds the cross-cutting runtime knobs shared by every
// account's supervisor.
type BridgeConfig struct {
	StatusPublishInterval time.Duration `yaml:"status_publish_interval"`
	ReconnectDelayMin     time.Duration `yaml:"reconnect_delay_min"`
	ReconnectDelayMax     time.Duration `yaml:"reconnect_delay_max"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
}

// CacheConfig controls the token/device-list caches in pkg/tokencache
// and pkg/device.
type CacheConfig struct {
	Directory            string        `yaml:"directory"`
	TokenTTLSafetyMargin time.Duration `yaml:"token_ttl_safety_margin"`
	DeviceListTTL        time.Duration `yaml:"device_list_ttl"`
	MaxTokenTTL          time.Duration `yaml:"max_token_ttl"`
}

// DaemonConfig holds process-level settings outside the core's
// responsibility to apply (an external entry point reads LogLevel and
// configures pkg/logger accordingly).
type DaemonConfig struct {
	LogLevel string `yaml:"log_level"`
}
