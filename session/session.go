package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/host"
)

var (
	ErrNotRunning = errors.New("session not running")
	ErrNoEngine   = errors.New("no engine factory")
)

// AudioSpec captures session-level audio preferences.
// Note:
//   - PreferredSampleRate is a target; the engine may run at another rate.
//   - BufferSize is a hint and overrides LatencyHint when set.
type AudioSpec struct {
	// Preferred target sample rate for the session; devices may override.
	PreferredSampleRate float64 `json:"preferred_sample_rate,omitempty" yaml:"preferred_sample_rate,omitempty"`
	// Coarse latency preference; maps to buffer sizes per backend.
	LatencyHint LatencyClass `json:"latency_hint,omitempty" yaml:"latency_hint,omitempty"`

	ChannelCount int `json:"channel_count,omitempty" yaml:"channel_count,omitempty"`
	BitDepth     int `json:"bit_depth,omitempty" yaml:"bit_depth,omitempty"`

	// Optional explicit buffer size hint (frames). Overrides LatencyHint if set > 0.
	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
}

// Default audio configuration
var DefaultAudioSpec = AudioSpec{
	PreferredSampleRate: 48000,
	LatencyHint:         LatencyMedium,
	ChannelCount:        2,
	BitDepth:            32,
}

// EngineFactory builds the engine for a session spec.
type EngineFactory func(spec AudioSpec) (host.Engine, error)

// Config wires a Session.
type Config struct {
	Spec      AudioSpec
	Devices   *devices.Manager
	NewEngine EngineFactory
	Logger    *zap.Logger
	Hook      MetricsHook
}

// Session holds the engine of a running session and the device selection.
type Session struct {
	spec      AudioSpec
	devices   *devices.Manager
	newEngine EngineFactory
	logger    *zap.Logger
	hook      MetricsHook

	mu        sync.RWMutex
	engine    host.Engine
	startedAt time.Time
}

// New creates a stopped session. A nil Devices manager uses the platform
// default backend.
func New(cfg Config) (*Session, error) {
	if cfg.NewEngine == nil {
		return nil, ErrNoEngine
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dm := cfg.Devices
	if dm == nil {
		dm = devices.NewManager(devices.DefaultBackend(), logger, nil)
	}
	spec := cfg.Spec
	if spec == (AudioSpec{}) {
		spec = DefaultAudioSpec
	}
	return &Session{
		spec:      spec,
		devices:   dm,
		newEngine: cfg.NewEngine,
		logger:    logger.With(zap.String("component", "session")),
		hook:      cfg.Hook,
	}, nil
}

func (s *Session) AudioSpec() AudioSpec      { return s.spec }
func (s *Session) Devices() *devices.Manager { return s.devices }

// SetMetricsHook replaces the metrics hook. It must be called before Start.
func (s *Session) SetMetricsHook(h MetricsHook) { s.hook = h }

// Start creates the engine, routes it to the selected output device and
// starts it. Starting a running session returns its engine.
func (s *Session) Start(ctx context.Context) (host.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}

	begin := time.Now()
	eng, err := s.start(ctx)
	if s.hook != nil {
		s.hook.OnEngineStart(time.Since(begin), err)
	}
	if err != nil {
		s.logger.Error("session start failed", zap.Error(err))
		return nil, err
	}
	s.engine = eng
	s.startedAt = time.Now()
	s.logger.Info("session started", zap.String("engine", eng.ID()), zap.String("output_device", eng.OutputDevice()))
	return eng, nil
}

func (s *Session) start(ctx context.Context) (host.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eng, err := s.newEngine(s.spec)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := s.devices.SelectDefaults(ctx); err != nil {
		s.logger.Warn("no default devices", zap.Error(err))
	}
	if uid := s.devices.OutputDevice(); uid != "" {
		if err := eng.SetOutputDevice(uid); err != nil {
			return nil, fmt.Errorf("route engine to %q: %w", uid, err)
		}
	}
	if err := eng.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	return eng, nil
}

// Stop stops and drops the engine. It is a no-op on a stopped session.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return
	}
	s.engine.Stop()
	uptime := time.Since(s.startedAt)
	s.engine = nil
	if s.hook != nil {
		s.hook.OnEngineStop(uptime)
	}
	s.logger.Info("session stopped", zap.Duration("uptime", uptime))
}

// Engine returns the running engine, or nil.
func (s *Session) Engine() host.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Session) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine != nil
}

// Configure prepares the running engine before its output changes: it makes
// sure the engine renders to the selected output device and is running.
func (s *Session) Configure(ctx context.Context) error {
	err := s.configure(ctx)
	if s.hook != nil {
		s.hook.OnConfigure(err)
	}
	return err
}

func (s *Session) configure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	eng := s.engine
	s.mu.RUnlock()
	if eng == nil {
		return ErrNotRunning
	}
	if uid := s.devices.OutputDevice(); uid != "" && eng.OutputDevice() != uid {
		if err := eng.SetOutputDevice(uid); err != nil {
			return fmt.Errorf("route engine to %q: %w", uid, err)
		}
	}
	if !eng.IsRunning() {
		if err := eng.Start(); err != nil {
			return fmt.Errorf("restart engine: %w", err)
		}
	}
	return nil
}

// SetInputDevice selects the input device. On failure the previous device remains.
func (s *Session) SetInputDevice(ctx context.Context, uid string) error {
	return s.devices.SetInputDevice(ctx, uid)
}

// SetOutputDevice selects the output device and routes a running engine to
// it. On failure the previous device remains selected and routed.
func (s *Session) SetOutputDevice(ctx context.Context, uid string) error {
	prev := s.devices.OutputDevice()
	if err := s.devices.SetOutputDevice(ctx, uid); err != nil {
		return err
	}
	eng := s.Engine()
	if eng == nil {
		return nil
	}
	if err := eng.SetOutputDevice(uid); err != nil {
		s.logger.Warn("engine rejected output device, restoring previous",
			zap.String("uid", uid), zap.String("previous", prev), zap.Error(err))
		if prev != "" {
			if rerr := s.devices.SetOutputDevice(ctx, prev); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	return nil
}

func (s *Session) InputDevice() string  { return s.devices.InputDevice() }
func (s *Session) OutputDevice() string { return s.devices.OutputDevice() }
