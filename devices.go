package audiograph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shaban/audiograph/devices"
)

// DeviceCallbacks receive device changes seen by WatchDevices. Nil callbacks
// are skipped.
type DeviceCallbacks struct {
	Added         func(devices.AudioDevice)
	Removed       func(uid string)
	StatusChanged func(uid string, online bool)
}

func (e *Engine) AudioDevices(ctx context.Context) (devices.AudioDevices, error) {
	return e.session.Devices().All(ctx)
}

func (e *Engine) InputDevices(ctx context.Context) (devices.AudioDevices, error) {
	return e.session.Devices().Inputs(ctx)
}

func (e *Engine) OutputDevices(ctx context.Context) (devices.AudioDevices, error) {
	return e.session.Devices().Outputs(ctx)
}

func (e *Engine) InputDevice() string  { return e.session.InputDevice() }
func (e *Engine) OutputDevice() string { return e.session.OutputDevice() }

// SetInputDevice selects the input device. On failure the previous device
// stays selected.
func (e *Engine) SetInputDevice(ctx context.Context, uid string) error {
	if err := e.session.SetInputDevice(ctx, uid); err != nil {
		return e.fail(fmt.Errorf("set input device: %w", err))
	}
	return nil
}

// SetOutputDevice selects the output device and routes the running engine to
// it. On failure the previous device stays selected and routed.
func (e *Engine) SetOutputDevice(ctx context.Context, uid string) error {
	if err := e.session.SetOutputDevice(ctx, uid); err != nil {
		return e.fail(fmt.Errorf("set output device: %w", err))
	}
	return nil
}

// WatchDevices polls the device backend until ctx is done or
// StopWatchingDevices is called. Once polling has ended it can be called again. When the selected output device disappears
// the engine moves to the default output device.
func (e *Engine) WatchDevices(ctx context.Context, cfg devices.MonitorConfig, cb DeviceCallbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitor != nil && e.monitor.IsRunning() {
		return errors.New("device monitor is already running")
	}
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	m := devices.NewMonitor(e.session.Devices().Backend(), cfg)
	m.SetCallbacks(cb.Added, func(uid string) {
		e.deviceGone(ctx, uid)
		if cb.Removed != nil {
			cb.Removed(uid)
		}
	}, func(uid string, online bool) {
		if !online {
			e.deviceGone(ctx, uid)
		}
		if cb.StatusChanged != nil {
			cb.StatusChanged(uid, online)
		}
	})
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start device monitor: %w", err)
	}
	e.monitor = m
	return nil
}

func (e *Engine) StopWatchingDevices() {
	e.mu.Lock()
	m := e.monitor
	e.monitor = nil
	e.mu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// deviceGone falls back to the default output when the selected output goes away.
func (e *Engine) deviceGone(ctx context.Context, uid string) {
	if uid != e.OutputDevice() {
		return
	}
	e.errorHandler.HandleError(fmt.Errorf("output device %s lost: %w", uid, devices.ErrDeviceNotFound))

	list, err := e.OutputDevices(ctx)
	if err != nil {
		e.errorHandler.HandleError(fmt.Errorf("list output devices: %w", err))
		return
	}
	next := list.Online().DefaultOutput()
	if next == nil || next.UID == uid {
		e.logger.Warn("no output device to fall back to", zap.String("lost", uid))
		return
	}
	if err := e.SetOutputDevice(ctx, next.UID); err == nil {
		e.logger.Info("switched output device", zap.String("lost", uid), zap.String("output_device", next.UID))
	}
}
