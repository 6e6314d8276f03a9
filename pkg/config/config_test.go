package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigYAMLTagsRoundTrip(t *testing.T) {
	doc := `
accounts:
  - email: a@example.com
    password: secret
    enabled: true
mosquitto:
  host: localhost
  port: 1883
  client_id: bridge-01
bridge:
  status_publish_interval: 60s
  reconnect_delay_min: 5s
  reconnect_delay_max: 60s
  max_reconnect_attempts: 10
cache:
  directory: /var/lib/fossibot-bridge/cache
  token_ttl_safety_margin: 5m
  device_list_ttl: 1h
  max_token_ttl: 24h
daemon:
  log_level: info
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Email != "a@example.com" || !cfg.Accounts[0].Enabled {
		t.Fatalf("unexpected accounts: %+v", cfg.Accounts)
	}
	if cfg.Mosquitto.Host != "localhost" || cfg.Mosquitto.Port != 1883 {
		t.Fatalf("unexpected mosquitto config: %+v", cfg.Mosquitto)
	}
	if cfg.Bridge.StatusPublishInterval != 60*time.Second {
		t.Fatalf("status_publish_interval = %v, want 60s", cfg.Bridge.StatusPublishInterval)
	}
	if cfg.Bridge.MaxReconnectAttempts != 10 {
		t.Fatalf("max_reconnect_attempts = %d, want 10", cfg.Bridge.MaxReconnectAttempts)
	}
	if cfg.Cache.MaxTokenTTL != 24*time.Hour {
		t.Fatalf("max_token_ttl = %v, want 24h", cfg.Cache.MaxTokenTTL)
	}
	if cfg.Daemon.LogLevel != "info" {
		t.Fatalf("log_level = %q, want info", cfg.Daemon.LogLevel)
	}
}
