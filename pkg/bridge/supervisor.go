package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/cloudauth"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/config"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/device"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/localbroker"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/metrics"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/tokencache"
)

// VendorConfig holds the parts of the cloud endpoint that are the same
// for every account.
type VendorConfig struct {
	Endpoint     string
	SpaceID      string
	Secret       string
	Host         string
	MQTTPort     int
	MQTTPassword string
}

// Supervisor is the process-wide singleton: it owns the local broker
// and one AccountSupervisor per enabled account, fans local commands
// out to the account that owns the target device, and republishes
// aggregated state snapshots on a timer.
type Supervisor struct {
	cfg    config.Config
	vendor VendorConfig
	log    logger.Logger
	met    metrics.Collector

	local    *localbroker.Broker
	accounts map[string]*AccountSupervisor

	mu sync.RWMutex
}

// NewSupervisor builds the local broker and one AccountSupervisor per
// enabled account, wiring each account's publish callback to the shared
// local broker and the local broker's command handler to whichever
// account owns the target MAC.
func NewSupervisor(cfg config.Config, vendor VendorConfig, log logger.Logger, met metrics.Collector) *Supervisor {
	if log == nil {
		log = logger.Nop()
	}
	if met == nil {
		met = metrics.NullCollector{}
	}

	sup := &Supervisor{
		cfg:      cfg,
		vendor:   vendor,
		log:      log,
		met:      met,
		accounts: make(map[string]*AccountSupervisor),
	}

	sup.local = localbroker.New(localbroker.Config{
		Host:     cfg.Mosquitto.Host,
		Port:     cfg.Mosquitto.Port,
		ClientID: cfg.Mosquitto.ClientID,
		Username: cfg.Mosquitto.Username,
		Password: cfg.Mosquitto.Password,
	}, log, sup.dispatchLocalCommand)

	tc := tokencache.New(cfg.Cache.Directory, cfg.Cache.TokenTTLSafetyMargin, cfg.Cache.MaxTokenTTL)
	dc := device.New(cfg.Cache.Directory, cfg.Cache.DeviceListTTL)

	for _, acct := range cfg.Accounts {
		if !acct.Enabled {
			continue
		}
		auth := cloudauth.New(vendor.Endpoint, vendor.SpaceID, vendor.Secret, tc, log)
		accCfg := AccountConfig{
			Email:                acct.Email,
			Password:             acct.Password,
			CloudHost:            vendor.Host,
			CloudMQTTPort:        vendor.MQTTPort,
			CloudMQTTPassword:    vendor.MQTTPassword,
			VendorEndpoint:       vendor.Endpoint,
			VendorSpaceID:        vendor.SpaceID,
			VendorSecret:         vendor.Secret,
			CacheDir:             cfg.Cache.Directory,
			TokenTTLSafetyMargin: cfg.Cache.TokenTTLSafetyMargin,
			MaxTokenTTL:          cfg.Cache.MaxTokenTTL,
			DeviceListTTL:        cfg.Cache.DeviceListTTL,
			MaxReconnectAttempts: cfg.Bridge.MaxReconnectAttempts,
		}
		sup.accounts[acct.Email] = NewAccountSupervisor(accCfg, auth, dc, log, met, sup.local.PublishState)
	}

	return sup
}

// Run connects the local broker, starts every account's supervisor and
// the liveness/status-publish loops, and blocks until ctx is canceled
// or any account supervisor returns; the first such error is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.local.Connect(ctx); err != nil {
		return err
	}
	for _, mac := range s.allMACs() {
		if err := s.local.WatchDevice(mac); err != nil {
			s.log.Warn("watch device %s failed: %v", mac, err)
		}
	}

	go s.local.RunLiveness(ctx)
	go s.runStatusPublisher(ctx)

	errCh := make(chan error, len(s.accounts))
	for _, acc := range s.accounts {
		acc := acc
		go func() {
			errCh <- acc.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Supervisor) allMACs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var macs []string
	for _, acc := range s.accounts {
		macs = append(macs, acc.MACs()...)
	}
	return macs
}

// dispatchLocalCommand looks up the account owning cmd.MAC and enqueues
// the translated write on that account's dispatcher.
func (s *Supervisor) dispatchLocalCommand(cmd localbroker.Command) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.OwnsDevice(cmd.MAC) {
			acc.EnqueueCommand(cmd)
			return
		}
	}
	s.log.Warn("command for unknown device %s ignored", cmd.MAC)
}

// runStatusPublisher republishes every known device's current snapshot
// on a fixed interval (bridge.status_publish_interval, default 60s),
// independent of whatever triggered the last change-driven publish.
func (s *Supervisor) runStatusPublisher(ctx context.Context) {
	interval := s.cfg.Bridge.StatusPublishInterval
	if interval == 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.republishAll()
		}
	}
}

func (s *Supervisor) republishAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		for _, mac := range acc.MACs() {
			state := acc.Snapshot(mac)
			payload, err := marshalState(state)
			if err != nil {
				continue
			}
			if err := s.local.PublishState(mac, payload); err != nil {
				s.log.Warn("periodic republish for %s failed: %v", mac, err)
			}
		}
	}
}
