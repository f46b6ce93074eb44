package connectivity

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStaticMonitorNotifiesOnChange(t *testing.T) {
	m := NewStaticMonitor(true)
	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	if !m.Online() {
		t.Fatal("Online() = false, expected initial true")
	}

	m.SetOnline(false)
	select {
	case online := <-ch:
		if online {
			t.Error("notification = true, expected false")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification after state change")
	}

	// Same-state set is a no-op.
	m.SetOnline(false)
	select {
	case v := <-ch:
		t.Errorf("unexpected notification %v for unchanged state", v)
	case <-time.After(50 * time.Millisecond):
	}

	m.SetOnline(true)
	select {
	case online := <-ch:
		if !online {
			t.Error("notification = false, expected true")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification after flip back")
	}
}

func TestStaticMonitorUnsubscribeCloses(t *testing.T) {
	m := NewStaticMonitor(true)
	ch := m.Subscribe()
	m.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	m := NewProbeMonitor(addr, time.Hour, zap.NewNop())
	defer m.Stop()

	if !m.probe() {
		t.Error("probe() = false with listener up, expected true")
	}

	ln.Close()
	m.timeout = 200 * time.Millisecond
	if m.probe() {
		t.Error("probe() = true with listener down, expected false")
	}
}

func TestProbeMonitorObserve(t *testing.T) {
	m := NewProbeMonitor("127.0.0.1:1", time.Hour, zap.NewNop())
	defer m.Stop()

	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	m.observe(false)
	select {
	case online := <-ch:
		if online {
			t.Error("notification = true, expected false")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification after observation change")
	}
	if m.Online() {
		t.Error("Online() = true after observing offline")
	}

	// Repeated observation of the same state stays quiet.
	m.observe(false)
	select {
	case v := <-ch:
		t.Errorf("unexpected notification %v for unchanged observation", v)
	case <-time.After(50 * time.Millisecond):
	}
}
