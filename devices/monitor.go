package devices

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor polls a backend and reports devices that appear, disappear or change
// their online state.
//
// Polling is adaptive: after ten polls without a change the interval grows by
// 10% per poll up to MaxInterval, and any change resets it to BaseInterval.
type Monitor struct {
	backend Backend
	logger  *zap.Logger

	mu              sync.RWMutex
	cancel          context.CancelFunc
	done            chan struct{}
	baseInterval    time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration
	noChangeCount   int
	known           map[string]AudioDevice
	checkCount      int64

	onAdded         func(AudioDevice)
	onRemoved       func(uid string)
	onStatusChanged func(uid string, online bool)
}

// MonitorConfig holds polling settings. Zero values use the defaults of
// 50ms base and 200ms max interval.
type MonitorConfig struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Logger       *zap.Logger
}

const minPollInterval = 10 * time.Millisecond

func NewMonitor(b Backend, cfg MonitorConfig) *Monitor {
	base := cfg.BaseInterval
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if base < minPollInterval {
		base = minPollInterval
	}
	ceiling := cfg.MaxInterval
	if ceiling < base {
		ceiling = 4 * base
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		backend:         b,
		logger:          logger.With(zap.String("component", "device_monitor")),
		baseInterval:    base,
		maxInterval:     ceiling,
		currentInterval: base,
	}
}

// SetCallbacks configures device event callbacks. Nil callbacks are skipped.
func (m *Monitor) SetCallbacks(onAdded func(AudioDevice), onRemoved func(string), onStatusChanged func(string, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAdded = onAdded
	m.onRemoved = onRemoved
	m.onStatusChanged = onStatusChanged
}

// Start takes an initial snapshot and polls until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("device monitor is already running")
	}
	list, err := m.backend.Devices(ctx)
	if err != nil {
		return err
	}
	m.known = index(list)
	m.currentInterval = m.baseInterval
	m.noChangeCount = 0

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}

// Interval returns the current polling interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentInterval
}

// Checks returns how many polls ran.
func (m *Monitor) Checks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkCount
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.exited(done)
	interval := m.Interval()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.Check(ctx)
			timer.Reset(m.Interval())
		}
	}
}

// exited clears the running state when the loop ends on its own, e.g. because
// the context passed to Start was cancelled.
func (m *Monitor) exited(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != done {
		return
	}
	m.cancel()
	m.cancel, m.done = nil, nil
}

// Check polls the backend once and fires callbacks for every difference to
// the previous poll.
func (m *Monitor) Check(ctx context.Context) {
	list, err := m.backend.Devices(ctx)
	if err != nil {
		m.logger.Warn("device enumeration failed", zap.Error(err))
		return
	}
	current := index(list)

	m.mu.Lock()
	m.checkCount++
	prev := m.known
	m.known = current
	onAdded, onRemoved, onStatus := m.onAdded, m.onRemoved, m.onStatusChanged

	var added []AudioDevice
	var removed []string
	var status []AudioDevice
	for uid, d := range current {
		old, ok := prev[uid]
		switch {
		case !ok:
			added = append(added, d)
		case old.IsOnline != d.IsOnline:
			status = append(status, d)
		}
	}
	for uid := range prev {
		if _, ok := current[uid]; !ok {
			removed = append(removed, uid)
		}
	}

	if len(added)+len(removed)+len(status) == 0 {
		m.noChangeCount++
		if m.noChangeCount > 10 {
			next := time.Duration(float64(m.currentInterval) * 1.1)
			if next > m.maxInterval {
				next = m.maxInterval
			}
			m.currentInterval = next
		}
	} else {
		m.noChangeCount = 0
		m.currentInterval = m.baseInterval
	}
	m.mu.Unlock()

	for _, d := range added {
		m.logger.Info("device added", zap.String("uid", d.UID), zap.String("name", d.Name))
		if onAdded != nil {
			onAdded(d)
		}
	}
	for _, uid := range removed {
		m.logger.Info("device removed", zap.String("uid", uid))
		if onRemoved != nil {
			onRemoved(uid)
		}
	}
	for _, d := range status {
		m.logger.Info("device status changed", zap.String("uid", d.UID), zap.Bool("online", d.IsOnline))
		if onStatus != nil {
			onStatus(d.UID, d.IsOnline)
		}
	}
}

func index(list AudioDevices) map[string]AudioDevice {
	out := make(map[string]AudioDevice, len(list))
	for _, d := range list {
		out[d.UID] = d
	}
	return out
}
