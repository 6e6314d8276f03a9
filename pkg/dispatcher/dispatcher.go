// Package dispatcher implements the per-account FIFO command queue: one
// worker drains commands to the cloud session, paced 200ms apart,
// arming an expectation flag for immediate-class commands so the state
// projector can attribute the next .../client/04 frame to the command
// that caused it.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/modbus"
)

// QueueDelay is the mandatory inter-command pacing.
const QueueDelay = 200 * time.Millisecond

// SoftBackpressureThreshold is the queue depth above which a warning is
// logged.
const SoftBackpressureThreshold = 32

// ExpectationWindow bounds how long an armed immediate-response
// expectation stays claimable; an unclaimed expectation simply expires
// rather than stalling the queue waiting on a redundant write's silence
// (see DESIGN.md's Open Question decisions).
const ExpectationWindow = 5 * time.Second

// Item is one enqueued command, addressed to a specific device.
type Item struct {
	ID      string
	MAC     string
	Command *modbus.Command
	EnqueuedAt time.Time
}

// Publisher is the minimal cloud-session surface the dispatcher needs;
// satisfied by *pkg/cloudsession.Session.
type Publisher interface {
	Publish(mac string, frame []byte) error
	IsConnected() bool
}

// Expectation records that a just-sent immediate-class command is
// awaiting attribution on the next .../client/04 frame for its MAC.
type Expectation struct {
	CommandID string
	ArmedAt   time.Time
}

// Dispatcher owns one account's command queue and worker.
type Dispatcher struct {
	pub Publisher
	log logger.Logger

	mu    sync.Mutex
	queue []Item

	expMu        sync.RWMutex
	expectations map[string]Expectation // keyed by MAC

	wake chan struct{}
}

// New constructs a Dispatcher bound to pub.
func New(pub Publisher, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		pub:          pub,
		log:          log,
		expectations: make(map[string]Expectation),
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue appends cmd for mac to the FIFO queue and returns its
// correlation id.
func (d *Dispatcher) Enqueue(mac string, cmd *modbus.Command) string {
	id := uuid.NewString()

	d.mu.Lock()
	d.queue = append(d.queue, Item{ID: id, MAC: mac, Command: cmd, EnqueuedAt: time.Now()})
	depth := len(d.queue)
	d.mu.Unlock()

	if depth > SoftBackpressureThreshold {
		d.log.Warn("dispatcher queue depth %d exceeds soft threshold %d", depth, SoftBackpressureThreshold)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}

	return id
}

// Depth returns the current queue length.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run drains the queue until ctx is canceled. While the publisher is
// disconnected, the head item stays queued and is flushed once the
// connection comes back.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := d.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
				continue
			case <-time.After(time.Second):
				continue
			}
		}

		if !d.pub.IsConnected() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		d.sendOne(item)
		d.pop()

		select {
		case <-ctx.Done():
			return
		case <-time.After(QueueDelay):
		}
	}
}

func (d *Dispatcher) sendOne(item Item) {
	frame := item.Command.Frame()
	if err := d.pub.Publish(item.MAC, frame); err != nil {
		d.log.Warn("dispatcher publish failed for %s: %v", item.MAC, err)
		return
	}

	if item.Command.ResponseClass == modbus.ResponseImmediate {
		d.expMu.Lock()
		d.expectations[item.MAC] = Expectation{CommandID: item.ID, ArmedAt: time.Now()}
		d.expMu.Unlock()
	}
}

func (d *Dispatcher) peek() (Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Item{}, false
	}
	return d.queue[0], true
}

func (d *Dispatcher) pop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return
	}
	d.queue = d.queue[1:]
}

// ClaimExpectation reports whether an immediate response for mac,
// arriving at now, should be attributed to a recently-dispatched
// command. A claimed expectation is consumed; an expired one is
// dropped silently so the queue never stalls on a redundant write's
// silence.
func (d *Dispatcher) ClaimExpectation(mac string, now time.Time) bool {
	d.expMu.Lock()
	defer d.expMu.Unlock()

	exp, ok := d.expectations[mac]
	if !ok {
		return false
	}
	delete(d.expectations, mac)
	return now.Sub(exp.ArmedAt) <= ExpectationWindow
}
