// Package localbroker runs the bridge's connection to the locally-owned
// MQTT broker: retained bridge-status publish with a last-will
// "offline", command-topic subscription, and a periodic liveness check
// that reconnects with the same backoff schedule used by the reconnect
// supervisor.
package localbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/reconnect"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/topics"
)

const statusTopic = "fossibot/bridge/status"

// LivenessCheckInterval is the periodic connection-check cadence.
const LivenessCheckInterval = 30 * time.Second

// Command is the decoded form of a local command-topic payload: the
// canonical `{"action":...,"value":...}` shape, plus the legacy
// usb_on/usb_off forms.
type Command struct {
	MAC    string
	Action string // "usb" | "ac" | "dc" | "led"
	Value  bool
}

// CommandHandler receives parsed local commands; wired to the
// dispatcher/bridge supervisor layer.
type CommandHandler func(cmd Command)

// Config parameterizes the local broker connection.
type Config struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	KeepAlive time.Duration
}

// Broker owns the local paho client.
type Broker struct {
	cfg     Config
	log     logger.Logger
	client  paho.Client
	handler CommandHandler
	macs    []string
}

// New constructs a Broker; call Connect to dial.
func New(cfg Config, log logger.Logger, handler CommandHandler) *Broker {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	return &Broker{cfg: cfg, log: log, handler: handler}
}

// Connect dials the local broker, arms the last-will, and publishes the
// retained "online" status.
func (b *Broker) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", b.cfg.Host, b.cfg.Port))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetKeepAlive(b.cfg.KeepAlive)
	opts.SetAutoReconnect(false) // liveness loop below owns reconnection
	opts.SetWill(statusTopic, "offline", 1, true)

	opts.SetOnConnectHandler(func(c paho.Client) {
		b.log.Info("local broker connected")
		if token := c.Publish(statusTopic, 1, true, "online"); token.Wait() && token.Error() != nil {
			b.log.Warn("failed to publish retained online status: %v", token.Error())
		}
		if err := b.resubscribeAll(); err != nil {
			b.log.Warn("resubscribe after connect failed: %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		b.log.Warn("local broker disconnected: %v", err)
	})

	b.client = paho.NewClient(opts)

	resultCh := make(chan error, 1)
	go func() {
		token := b.client.Connect()
		token.Wait()
		resultCh <- token.Error()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-resultCh:
		return err
	}
}

// WatchDevice registers mac's command topic for subscription (and
// resubscribes immediately if already connected).
func (b *Broker) WatchDevice(mac string) error {
	b.macs = append(b.macs, mac)
	if b.client != nil && b.client.IsConnected() {
		return b.subscribe(mac)
	}
	return nil
}

func (b *Broker) resubscribeAll() error {
	for _, mac := range b.macs {
		if err := b.subscribe(mac); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) subscribe(mac string) error {
	topic := topics.LocalCommandTopic(mac)
	token := b.client.Subscribe(topic, 1, func(c paho.Client, m paho.Message) {
		b.handleMessage(mac, m.Payload())
	})
	token.Wait()
	return token.Error()
}

type commandPayload struct {
	Action string `json:"action"`
	Value  *bool  `json:"value"`
}

func (b *Broker) handleMessage(mac string, payload []byte) {
	var p commandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		b.log.Debug("dropping malformed command payload for %s: %v", mac, err)
		return
	}

	action, value, ok := normalizeAction(p)
	if !ok {
		b.log.Warn("unknown command action %q for %s", p.Action, mac)
		return
	}

	b.handler(Command{MAC: mac, Action: action, Value: value})
}

// normalizeAction resolves both the canonical {"action":"usb","value":
// true} form and the legacy usb_on/usb_off/ac_on/... forms.
func normalizeAction(p commandPayload) (action string, value bool, ok bool) {
	switch p.Action {
	case "usb", "ac", "dc", "led":
		if p.Value == nil {
			return "", false, false
		}
		return p.Action, *p.Value, true
	case "usb_on":
		return "usb", true, true
	case "usb_off":
		return "usb", false, true
	case "ac_on":
		return "ac", true, true
	case "ac_off":
		return "ac", false, true
	case "dc_on":
		return "dc", true, true
	case "dc_off":
		return "dc", false, true
	case "led_on":
		return "led", true, true
	case "led_off":
		return "led", false, true
	default:
		return "", false, false
	}
}

// PublishState publishes a retained state payload for mac.
func (b *Broker) PublishState(mac string, payload []byte) error {
	token := b.client.Publish(topics.LocalStateTopic(mac), 0, true, payload)
	token.Wait()
	return token.Error()
}

// IsConnected reports the current connection state.
func (b *Broker) IsConnected() bool {
	return b.client != nil && b.client.IsConnected()
}

// RunLiveness periodically checks the connection and reconnects using
// the reconnect package's backoff schedule until ctx is canceled.
func (b *Broker) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(LivenessCheckInterval)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.IsConnected() {
				attempt = 0
				continue
			}
			attempt++
			delay := reconnect.BackoffDelay(reconnect.DefaultBackoffSchedule, attempt)
			b.log.Warn("local broker down, reconnecting in %v (attempt %d)", delay, attempt)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := b.Connect(connCtx)
			cancel()
			if err != nil {
				b.log.Warn("local broker reconnect failed: %v", err)
			}
		}
	}
}
