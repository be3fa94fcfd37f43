package devices

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Recorder observes device selections. A nil Recorder is allowed.
type Recorder interface {
	RecordDeviceSelection(dir string, err error)
}

// Manager lists the devices of a backend and holds the current input and
// output selection.
type Manager struct {
	backend Backend
	logger  *zap.Logger
	rec     Recorder

	mu     sync.RWMutex
	input  string
	output string
}

// NewManager creates a manager without a selection. A nil logger is replaced
// by a no-op logger.
func NewManager(b Backend, logger *zap.Logger, rec Recorder) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend: b,
		logger:  logger.With(zap.String("component", "devices"), zap.String("backend", b.Name())),
		rec:     rec,
	}
}

func (m *Manager) Backend() Backend { return m.backend }

// All returns every device.
func (m *Manager) All(ctx context.Context) (AudioDevices, error) {
	list, err := m.backend.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: enumerate devices: %w", m.backend.Name(), err)
	}
	return list, nil
}

// Inputs returns devices that can capture audio.
func (m *Manager) Inputs(ctx context.Context) (AudioDevices, error) {
	list, err := m.All(ctx)
	return list.Inputs(), err
}

// Outputs returns devices that can play audio.
func (m *Manager) Outputs(ctx context.Context) (AudioDevices, error) {
	list, err := m.All(ctx)
	return list.Outputs(), err
}

// InputDevice returns the selected input id, or "" when none is selected.
func (m *Manager) InputDevice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.input
}

// OutputDevice returns the selected output id, or "" when none is selected.
func (m *Manager) OutputDevice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.output
}

// SetInputDevice selects the input device with the given id.
func (m *Manager) SetInputDevice(ctx context.Context, uid string) error {
	return m.set(ctx, Input, uid)
}

// SetOutputDevice selects the output device with the given id.
func (m *Manager) SetOutputDevice(ctx context.Context, uid string) error {
	return m.set(ctx, Output, uid)
}

// SelectDefaults picks the system default devices for every direction that
// has no selection yet.
func (m *Manager) SelectDefaults(ctx context.Context) error {
	list, err := m.All(ctx)
	if err != nil {
		return err
	}
	if m.InputDevice() == "" {
		if d := list.DefaultInput(); d != nil {
			if err := m.set(ctx, Input, d.UID); err != nil {
				return err
			}
		}
	}
	if m.OutputDevice() == "" {
		if d := list.DefaultOutput(); d != nil {
			if err := m.set(ctx, Output, d.UID); err != nil {
				return err
			}
		}
	}
	return nil
}

// set validates uid against the backend. On any failure the previous selection
// stays in place.
func (m *Manager) set(ctx context.Context, dir Direction, uid string) error {
	err := m.trySet(ctx, dir, uid)
	if err != nil {
		m.logger.Warn("device selection failed, keeping previous device",
			zap.String("direction", string(dir)), zap.String("uid", uid), zap.Error(err))
	} else {
		m.logger.Info("device selected", zap.String("direction", string(dir)), zap.String("uid", uid))
	}
	if m.rec != nil {
		m.rec.RecordDeviceSelection(string(dir), err)
	}
	return err
}

func (m *Manager) trySet(ctx context.Context, dir Direction, uid string) error {
	list, err := m.All(ctx)
	if err != nil {
		return err
	}
	d := list.ByUID(uid)
	if d == nil {
		return fmt.Errorf("%s %q: %w", dir, uid, ErrDeviceNotFound)
	}
	if dir == Input && !d.CanInput() || dir == Output && !d.CanOutput() {
		return fmt.Errorf("%s %q has no %s channels", d.Name, uid, dir)
	}
	if a, ok := m.backend.(Activator); ok {
		if err := a.Activate(ctx, dir, *d); err != nil {
			return fmt.Errorf("activate %s %q: %w", dir, uid, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if dir == Input {
		m.input = uid
	} else {
		m.output = uid
	}
	return nil
}
