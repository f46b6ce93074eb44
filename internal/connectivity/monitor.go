// Package connectivity exposes a single boolean "is the client online"
// signal. Monitors mirror the last observation only; there is no state
// machine beyond that.
package connectivity

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor reports the current connectivity state and notifies on changes
type Monitor interface {
	Online() bool
	Subscribe() <-chan bool
	Unsubscribe(<-chan bool)
}

// ProbeMonitor derives connectivity by periodically dialing a probe address
type ProbeMonitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	online bool
	subs   map[<-chan bool]chan bool
	quit   chan struct{}
	once   sync.Once
}

// NewProbeMonitor creates a monitor probing addr (host:port) every interval.
// The initial state is online; the first probe corrects it if needed.
func NewProbeMonitor(addr string, interval time.Duration, logger *zap.Logger) *ProbeMonitor {
	m := &ProbeMonitor{
		addr:     addr,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger,
		online:   true,
		subs:     make(map[<-chan bool]chan bool),
		quit:     make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *ProbeMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.observe(m.probe())
		case <-m.quit:
			return
		}
	}
}

func (m *ProbeMonitor) probe() bool {
	conn, err := net.DialTimeout("tcp", m.addr, m.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (m *ProbeMonitor) observe(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.online {
		return
	}
	m.online = online
	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Online returns the last observed state
func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving each state change
func (m *ProbeMonitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 4)
	m.subs[ch] = ch
	return ch
}

// Unsubscribe releases a channel obtained from Subscribe
func (m *ProbeMonitor) Unsubscribe(ch <-chan bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if full, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(full)
	}
}

// Stop ends the probe loop
func (m *ProbeMonitor) Stop() {
	m.once.Do(func() { close(m.quit) })
}

// StaticMonitor is a manually driven monitor for tests and embedding
type StaticMonitor struct {
	mu     sync.Mutex
	online bool
	subs   map[<-chan bool]chan bool
}

// NewStaticMonitor creates a monitor fixed at the given state until SetOnline
func NewStaticMonitor(online bool) *StaticMonitor {
	return &StaticMonitor{
		online: online,
		subs:   make(map[<-chan bool]chan bool),
	}
}

// Online returns the current state
func (m *StaticMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the state and notifies subscribers on change
func (m *StaticMonitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.online {
		return
	}
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe returns a channel receiving each state change
func (m *StaticMonitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 4)
	m.subs[ch] = ch
	return ch
}

// Unsubscribe releases a channel obtained from Subscribe
func (m *StaticMonitor) Unsubscribe(ch <-chan bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if full, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(full)
	}
}
