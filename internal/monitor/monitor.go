// Package monitor bridges connectivity probes to the sync orchestrator.
//
// The monitor polls a reachability probe on an interval and notifies the
// orchestrator on each online/offline transition. Going online fires
// exactly one catch-up notification per transition; the orchestrator's
// durable outbox takes it from there.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Probe performs one reachability check.
type Probe func(ctx context.Context) (bool, error)

// Notifier receives connectivity transitions.
type Notifier interface {
	SetOnline(online bool)
}

// Config holds configuration for the monitor.
type Config struct {
	// Interval is how often to probe.
	Interval time.Duration

	// Timeout bounds each probe.
	Timeout time.Duration

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Logger:   log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
}

// Monitor polls connectivity and reports transitions.
type Monitor struct {
	probe  Probe
	notify Notifier
	config *Config

	mu      sync.Mutex
	online  bool
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor. The device is assumed online until the first
// probe says otherwise.
func New(probe Probe, notify Notifier, config *Config) (*Monitor, error) {
	if probe == nil {
		return nil, fmt.Errorf("probe cannot be nil")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		probe:  probe,
		notify: notify,
		config: config,
		online: true,
	}, nil
}

// Start begins probing in the background. Returns an error if the monitor
// is already running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(ctx)

	m.config.Logger.Printf("Started (interval=%v)", m.config.Interval)
	return nil
}

// Stop halts probing and waits for the background loop to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.config.Logger.Printf("Stopped")
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	// Probe immediately so the orchestrator starts from an observed state.
	m.check(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one probe and notifies on transition.
func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	ok, err := m.probe(probeCtx)
	if err != nil {
		ok = false
	}

	m.mu.Lock()
	was := m.online
	m.online = ok
	m.mu.Unlock()

	if ok == was {
		return
	}

	if ok {
		m.config.Logger.Printf("Connectivity restored")
	} else {
		m.config.Logger.Printf("Connectivity lost: %v", err)
	}
	m.notify.SetOnline(ok)
}
