// Package cloudsession runs the vendor's MQTT-over-WebSocket connection:
// a single paho.mqtt.golang client dialing wss://host:8083/mqtt,
// subscribing to each known device's response topic and publishing
// outbound Modbus frames.
package cloudsession

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	bridgeerrors "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
)

// EventKind distinguishes the three events a session surfaces upward.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
)

// Event is delivered to the owner (the per-account bridge/reconnect
// supervisor) on the Events channel.
type Event struct {
	Kind EventKind
	Err  error // set for EventError; carries a *bridgeerrors.BridgeError
}

// Message is one decoded PUBLISH arriving on a device's response topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Config parameterizes one cloud session.
type Config struct {
	Host           string // e.g. "mqtt.fossibot.com"
	Port           int    // default 8083
	MQTTUsername   string // the S3 mqtt token
	MQTTPassword   string // fixed shared secret
	ClientID       string
	KeepAlive      time.Duration // 30-60s
	ConnectTimeout time.Duration // 10s
}

// Session owns one paho client dialing the vendor's WebSocket MQTT
// endpoint for one account.
type Session struct {
	cfg Config
	log logger.Logger

	client mqtt.Client

	Events   chan Event
	Messages chan Message

	mu            sync.RWMutex
	subscribed    map[string]bool
	connected     bool
}

// New constructs a Session; call Connect to dial.
func New(cfg Config, log logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Port == 0 {
		cfg.Port = 8083
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 45 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	return &Session{
		cfg:        cfg,
		log:        log,
		Events:     make(chan Event, 8),
		Messages:   make(chan Message, 64),
		subscribed: make(map[string]bool),
	}
}

func (s *Session) brokerURL() string {
	return fmt.Sprintf("wss://%s:%d/mqtt", s.cfg.Host, s.cfg.Port)
}

// Connect dials the WebSocket, runs MQTT CONNECT, and blocks until the
// result is known or ctx expires. CONNACK return code 5 is surfaced as
// AuthRejected.
func (s *Session) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.brokerURL())
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.MQTTUsername)
	opts.SetPassword(s.cfg.MQTTPassword)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetAutoReconnect(false) // the reconnect supervisor owns retries
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetProtocolVersion(4) // MQTT 3.1.1

	opts.SetWebsocketOptions(&mqtt.WebsocketOptions{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})

	if err := s.preflightDial(ctx); err != nil {
		return err
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.log.Info("cloud session connected to %s", s.brokerURL())
		s.emit(Event{Kind: EventConnected})
	})

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.log.Warn("cloud session disconnected: %v", err)
		s.emit(Event{Kind: EventDisconnected})
	})

	s.client = mqtt.NewClient(opts)

	resultCh := make(chan error, 1)
	go func() {
		token := s.client.Connect()
		token.Wait()
		resultCh <- token.Error()
	}()

	select {
	case <-ctx.Done():
		return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.Connect", "", "", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			if isConnackRejection(err) {
				return bridgeerrors.New(bridgeerrors.AuthRejected, "cloudsession.Connect", "", "", err)
			}
			return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.Connect", "", "", err)
		}
		return nil
	}
}

// preflightDial opens and immediately closes a raw WebSocket connection
// to the broker before handing control to paho, using gorilla/websocket
// (the same library paho uses internally), so an unreachable endpoint
// fails before a full MQTT CONNECT round trip is spent. Every dial
// failure (DNS, TLS, network, or a refused protocol upgrade) is returned
// as TransientNet; the cases are not told apart.
func (s *Session) preflightDial(ctx context.Context) error {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		HandshakeTimeout: s.cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.brokerURL(), nil)
	if err != nil {
		return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.preflightDial", "", "", err)
	}
	_ = conn.Close()
	return nil
}

// isConnackRejection distinguishes CONNACK code 5 (not authorized) from
// a transport-level failure. paho surfaces CONNACK rejections as a
// packets.ConnErrors value with no exported code; matching on the
// known message text avoids reaching into paho's internal packet types.
func isConnackRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not Authorized") || strings.Contains(msg, "Not Authorized") || strings.Contains(msg, "bad user name or password")
}

// SubscribeDevice subscribes to {mac}/device/response/+ for one device.
// Idempotent.
func (s *Session) SubscribeDevice(mac string) error {
	s.mu.Lock()
	if s.subscribed[mac] {
		s.mu.Unlock()
		return nil
	}
	s.subscribed[mac] = true
	s.mu.Unlock()

	topic := fmt.Sprintf("%s/device/response/+", mac)
	token := s.client.Subscribe(topic, 0, func(c mqtt.Client, m mqtt.Message) {
		s.Messages <- Message{Topic: m.Topic(), Payload: m.Payload()}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		s.mu.Lock()
		delete(s.subscribed, mac)
		s.mu.Unlock()
		return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.SubscribeDevice", "", mac, err)
	}
	return nil
}

// ResubscribeAll forgets the session's recorded subscriptions and
// subscribes each of macs afresh; called after every successful connect.
func (s *Session) ResubscribeAll(macs []string) error {
	s.mu.Lock()
	s.subscribed = make(map[string]bool)
	s.mu.Unlock()

	for _, mac := range macs {
		if err := s.SubscribeDevice(mac); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends a raw Modbus frame to {mac}/client/request/data (QoS 0).
func (s *Session) Publish(mac string, frame []byte) error {
	if !s.IsConnected() {
		return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.Publish", "", mac, fmt.Errorf("not connected"))
	}
	topic := fmt.Sprintf("%s/client/request/data", mac)
	token := s.client.Publish(topic, 0, false, frame)
	token.Wait()
	if err := token.Error(); err != nil {
		return bridgeerrors.New(bridgeerrors.TransientNet, "cloudsession.Publish", "", mac, err)
	}
	return nil
}

// IsConnected reports the last known connection state.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.client != nil && s.client.IsConnected()
}

// Disconnect closes the session, waiting up to quiesceMillis for
// in-flight work to settle.
func (s *Session) Disconnect(quiesceMillis uint) {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(quiesceMillis)
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	select {
	case s.Events <- ev:
	default:
		s.log.Warn("cloud session event channel full, dropping %v", ev.Kind)
	}
}
