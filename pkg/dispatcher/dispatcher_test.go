package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/modbus"
)

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	published [][]byte
	macs      []string
}

func (f *fakePublisher) Publish(mac string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, frame)
	f.macs = append(f.macs, mac)
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func mustWriteCmd(t *testing.T, reg, val uint16, class modbus.ResponseClass) *modbus.Command {
	t.Helper()
	cmd, err := modbus.NewWriteSingleRegister(reg, val, class)
	if err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestEnqueueAndDrainFIFOOrder(t *testing.T) {
	pub := &fakePublisher{connected: true}
	d := New(pub, nil)

	cmd1 := mustWriteCmd(t, 24, 1, modbus.ResponseImmediate)
	cmd2 := mustWriteCmd(t, 25, 1, modbus.ResponseImmediate)
	d.Enqueue("MAC1", cmd1)
	d.Enqueue("MAC2", cmd2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(900 * time.Millisecond)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if pub.count() != 2 {
		t.Fatalf("expected 2 published commands, got %d", pub.count())
	}
	if pub.macs[0] != "MAC1" || pub.macs[1] != "MAC2" {
		t.Fatalf("expected FIFO order MAC1,MAC2; got %v", pub.macs)
	}
}

func TestQueueStallsWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	d := New(pub, nil)
	d.Enqueue("MAC1", mustWriteCmd(t, 24, 1, modbus.ResponseImmediate))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if pub.count() != 0 {
		t.Fatalf("expected nothing published while disconnected, got %d", pub.count())
	}
	if d.Depth() != 1 {
		t.Fatalf("expected item to remain queued, depth = %d", d.Depth())
	}
}

func TestImmediateResponseArmsExpectation(t *testing.T) {
	pub := &fakePublisher{connected: true}
	d := New(pub, nil)
	d.Enqueue("MAC1", mustWriteCmd(t, 24, 1, modbus.ResponseImmediate))

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if !d.ClaimExpectation("MAC1", time.Now()) {
		t.Fatal("expected an armed expectation for MAC1 after an immediate-class command was sent")
	}
}

func TestExpectationExpiresAfterWindow(t *testing.T) {
	pub := &fakePublisher{connected: true}
	d := New(pub, nil)
	d.Enqueue("MAC1", mustWriteCmd(t, 24, 1, modbus.ResponseImmediate))

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	future := time.Now().Add(ExpectationWindow + time.Second)
	if d.ClaimExpectation("MAC1", future) {
		t.Fatal("expected expectation to have expired")
	}
}

func TestClaimExpectationConsumesIt(t *testing.T) {
	pub := &fakePublisher{connected: true}
	d := New(pub, nil)
	d.Enqueue("MAC1", mustWriteCmd(t, 24, 1, modbus.ResponseImmediate))

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	now := time.Now()
	if !d.ClaimExpectation("MAC1", now) {
		t.Fatal("expected first claim to succeed")
	}
	if d.ClaimExpectation("MAC1", now) {
		t.Fatal("expected second claim to fail: expectation already consumed")
	}
}
