// Package bridge wires one account's authenticator, cloud session,
// dispatcher, state projector, and the shared local broker into a
// single per-account lifecycle: authenticate, connect, subscribe every
// known device, then drain events and messages until the reconnect
// supervisor gives up or the context is canceled.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/cloudauth"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/cloudsession"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/device"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/dispatcher"
	bridgeerrors "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/localbroker"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/metrics"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/modbus"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/reconnect"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/recovery"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/stateprojector"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/topics"
)

// AccountConfig parameterizes one account's supervisor.
type AccountConfig struct {
	Email    string
	Password string

	CloudHost         string
	CloudMQTTPort     int
	CloudMQTTPassword string
	VendorEndpoint    string
	VendorSpaceID     string
	VendorSecret      string

	CacheDir             string
	TokenTTLSafetyMargin time.Duration
	MaxTokenTTL          time.Duration
	DeviceListTTL        time.Duration

	MaxReconnectAttempts int
}

// PublishFunc delivers a translated local state payload; wired to the
// shared localbroker.Broker by the top-level Supervisor.
type PublishFunc func(mac string, payload []byte) error

// AccountSupervisor owns everything scoped to one vendor-cloud account:
// its authenticator, token/device caches, cloud session, command
// dispatcher, reconnect supervisor, and projected device states.
type AccountSupervisor struct {
	cfg AccountConfig
	log logger.Logger
	met metrics.Collector

	auth    *cloudauth.Authenticator
	devices *device.Cache
	breaker *recovery.Breaker

	session    *cloudsession.Session
	dispatcher *dispatcher.Dispatcher
	projector  *stateprojector.Projector
	recon      *reconnect.Supervisor

	publish PublishFunc

	macs []string
}

// NewAccountSupervisor wires one account's components from already-
// constructed caches (shared tokencache/device caches live at the
// top-level Supervisor so multiple accounts never race on each other's
// files, though each account's cache entries are keyed by its own
// email).
func NewAccountSupervisor(cfg AccountConfig, auth *cloudauth.Authenticator, devices *device.Cache, log logger.Logger, met metrics.Collector, publish PublishFunc) *AccountSupervisor {
	if log == nil {
		log = logger.Nop()
	}
	if met == nil {
		met = metrics.NullCollector{}
	}

	a := &AccountSupervisor{
		cfg:       cfg,
		log:       log.With("account", cfg.Email),
		met:       met,
		auth:      auth,
		devices:   devices,
		breaker:   recovery.NewBreaker(cfg.Email, recovery.BreakerConfig{}),
		projector: stateprojector.New(),
		publish:   publish,
	}
	return a
}

// Run authenticates, connects the cloud session, subscribes every known
// device, and blocks draining events/messages/the dispatcher until ctx
// is canceled or the reconnect supervisor gives up for good.
func (a *AccountSupervisor) Run(ctx context.Context) error {
	creds := cloudauth.Credentials{Email: a.cfg.Email, Password: a.cfg.Password}

	if err := a.refreshDevices(ctx, creds); err != nil {
		return err
	}

	if err := a.connect(ctx, creds); err != nil {
		return err
	}

	a.recon = reconnect.New(reconnect.Actions{
		SimpleReconnect: func(ctx context.Context) error { return a.connect(ctx, creds) },
		FullReauth: func(ctx context.Context) error {
			_ = a.auth.Cache.Invalidate(a.cfg.Email)
			return a.connect(ctx, creds)
		},
		InvalidateCache: func(ctx context.Context) error {
			return a.auth.Cache.Invalidate(a.cfg.Email)
		},
	}, a.cfg.MaxReconnectAttempts, a.log)

	go a.dispatcher.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			a.session.Disconnect(250)
			return ctx.Err()

		case <-a.recon.Terminal():
			return bridgeerrors.New(bridgeerrors.Terminal, "bridge.account.run", a.cfg.Email, "", fmt.Errorf("reconnect attempts exhausted"))

		case ev := <-a.session.Events:
			a.handleEvent(ctx, ev)

		case msg := <-a.session.Messages:
			a.handleMessage(msg)
		}
	}
}

func (a *AccountSupervisor) refreshDevices(ctx context.Context, creds cloudauth.Credentials) error {
	if cached, ok := a.devices.Get(a.cfg.Email); ok {
		a.macs = macsOf(cached)
		return nil
	}

	records, err := a.auth.DeviceList(ctx, creds)
	if err != nil {
		return err
	}

	list := make([]device.Device, 0, len(records))
	for _, r := range records {
		canon, ok := topics.CanonicalMAC(r.MAC)
		if !ok {
			a.log.Warn("dropping device with invalid MAC %q", r.MAC)
			continue
		}
		list = append(list, device.Device{MAC: canon, Name: r.Name, ProductID: r.ProductID, Model: r.Model, Online: r.Online, CreatedAt: time.Now()})
	}
	if err := a.devices.Put(a.cfg.Email, list); err != nil {
		a.log.Warn("device cache put failed: %v", err)
	}
	a.macs = macsOf(list)
	return nil
}

func macsOf(devices []device.Device) []string {
	macs := make([]string, len(devices))
	for i, d := range devices {
		macs[i] = d.MAC
	}
	return macs
}

func (a *AccountSupervisor) connect(ctx context.Context, creds cloudauth.Credentials) error {
	mqttToken, err := a.auth.MQTTToken(ctx, creds)
	if err != nil {
		return err
	}

	a.session = cloudsession.New(cloudsession.Config{
		Host:         a.cfg.CloudHost,
		Port:         a.cfg.CloudMQTTPort,
		MQTTUsername: mqttToken,
		MQTTPassword: a.cfg.CloudMQTTPassword,
		ClientID:     "fossibot-bridge-" + a.cfg.Email,
	}, a.log)

	if err := a.breaker.Call(ctx, a.cfg.Email, "cloudsession.connect", a.session.Connect); err != nil {
		return err
	}

	if err := a.session.ResubscribeAll(a.macs); err != nil {
		return err
	}

	a.dispatcher = dispatcher.New(a.session, a.log)
	return nil
}

func (a *AccountSupervisor) handleEvent(ctx context.Context, ev cloudsession.Event) {
	switch ev.Kind {
	case cloudsession.EventConnected:
		a.log.Info("cloud session connected")
	case cloudsession.EventDisconnected, cloudsession.EventError:
		a.met.IncReconnectAttempt("simple")
		reason := reconnect.Reason{ConnackRejected: bridgeerrors.Is(ev.Err, bridgeerrors.AuthRejected)}
		if err := a.recon.Recover(ctx, reason); err != nil {
			a.log.Error("reconnect supervisor gave up: %v", err)
		}
	}
}

func (a *AccountSupervisor) handleMessage(msg cloudsession.Message) {
	topic, fcTopic, ok := classifyCloudTopic(msg.Topic)
	if !ok {
		return
	}
	_, mac, ok := topics.CloudTopicToLocal(msg.Topic)
	if !ok {
		a.met.IncFramesRejected(fcTopic, "bad_mac")
		return
	}

	var expectedFC uint8
	switch topic {
	case stateprojector.TopicImmediate:
		expectedFC = modbus.FuncReadInputRegisters
	case stateprojector.TopicPolling:
		expectedFC = modbus.FuncReadHoldingRegisters
	}

	registers, err := modbus.ParseReadResponse(msg.Payload, expectedFC, 0)
	if err != nil {
		a.met.IncFramesRejected(fcTopic, "decode_error")
		a.devices.RecordDecodeError(mac)
		return
	}
	a.met.IncFramesDecoded(fcTopic)
	a.devices.RecordSeen(mac)

	wasCommandTriggered := a.dispatcher.ClaimExpectation(mac, time.Now())
	state, changed := a.projector.Apply(mac, topic, registers, wasCommandTriggered, time.Now())
	if !changed {
		return
	}

	payload, err := marshalState(state)
	if err != nil {
		a.log.Warn("marshal state for %s failed: %v", mac, err)
		return
	}
	if err := a.publish(mac, payload); err != nil {
		a.log.Warn("publish state for %s failed: %v", mac, err)
	}
}

// classifyCloudTopic maps a raw cloud response topic to the projector's
// Topic enum and a short label for metrics.
func classifyCloudTopic(cloudTopic string) (stateprojector.Topic, string, bool) {
	switch {
	case strings.HasSuffix(cloudTopic, "/device/response/client/04"):
		return stateprojector.TopicImmediate, "client/04", true
	case strings.HasSuffix(cloudTopic, "/device/response/client/data"):
		return stateprojector.TopicPolling, "client/data", true
	default:
		return 0, "client/unknown", false
	}
}

// EnqueueCommand resolves a local-broker command to a Modbus write and
// enqueues it on this account's dispatcher.
func (a *AccountSupervisor) EnqueueCommand(cmd localbroker.Command) {
	modbusCmd, err := buildSwitchCommand(cmd)
	if err != nil {
		a.log.Warn("command for %s rejected: %v", cmd.MAC, err)
		return
	}
	a.dispatcher.Enqueue(cmd.MAC, modbusCmd)
}

// OwnsDevice reports whether mac belongs to this account's device list.
func (a *AccountSupervisor) OwnsDevice(mac string) bool {
	for _, m := range a.macs {
		if m == mac {
			return true
		}
	}
	return false
}

// Snapshot returns the projected state for mac.
func (a *AccountSupervisor) Snapshot(mac string) stateprojector.DeviceState {
	return a.projector.Snapshot(mac)
}

// MACs returns the account's known device MACs.
func (a *AccountSupervisor) MACs() []string {
	return a.macs
}
