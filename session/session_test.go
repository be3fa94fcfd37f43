package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
)

type pickyEngine struct {
	*soft.Engine
	reject string
}

func (e *pickyEngine) SetOutputDevice(id string) error {
	if id == e.reject {
		return errors.New("device format unsupported")
	}
	return e.Engine.SetOutputDevice(id)
}

type hookRecorder struct {
	mu         sync.Mutex
	starts     int
	startErrs  int
	stops      int
	configures int
	configErrs int
}

func (h *hookRecorder) OnEngineStart(_ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	if err != nil {
		h.startErrs++
	}
}

func (h *hookRecorder) OnEngineStop(time.Duration) {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()
}

func (h *hookRecorder) OnConfigure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configures++
	if err != nil {
		h.configErrs++
	}
}

func testDevices() *devices.Static {
	return devices.NewStatic(
		devices.AudioDevice{Device: devices.Device{Name: "Speakers", UID: "spk", IsOnline: true}, OutputChannelCount: 2, IsDefaultOutput: true},
		devices.AudioDevice{Device: devices.Device{Name: "Headphones", UID: "hp", IsOnline: true}, OutputChannelCount: 2},
		devices.AudioDevice{Device: devices.Device{Name: "Mic", UID: "mic", IsOnline: true}, InputChannelCount: 1},
	)
}

func softFactory(reject string) EngineFactory {
	return func(s AudioSpec) (host.Engine, error) {
		e, err := soft.New(soft.Config{
			Spec:            host.AudioSpec{SampleRate: s.PreferredSampleRate, BufferSize: 64, BitDepth: 32, ChannelCount: 2},
			ManualRendering: true,
		})
		if err != nil {
			return nil, err
		}
		return &pickyEngine{Engine: e, reject: reject}, nil
	}
}

func newTestSession(t *testing.T, reject string) (*Session, *hookRecorder) {
	t.Helper()
	hook := &hookRecorder{}
	s, err := New(Config{
		Devices:   devices.NewManager(testDevices(), nil, nil),
		NewEngine: softFactory(reject),
		Hook:      hook,
	})
	require.NoError(t, err)
	return s, hook
}

func TestNewRequiresFactory(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestNewDefaults(t *testing.T) {
	s, err := New(Config{NewEngine: softFactory("")})
	require.NoError(t, err)
	assert.Equal(t, DefaultAudioSpec, s.AudioSpec())
	assert.NotNil(t, s.Devices())
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.Engine())
}

func TestStartCreatesEngineOnce(t *testing.T) {
	s, hook := newTestSession(t, "")
	eng, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, eng.IsRunning())
	assert.Equal(t, "spk", eng.OutputDevice(), "routed to the default output")

	again, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Same(t, eng, again)
	assert.Equal(t, 1, hook.starts)

	s.Stop()
	s.Stop()
	assert.False(t, eng.IsRunning())
	assert.Nil(t, s.Engine())
	assert.Equal(t, 1, hook.stops)

	next, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, eng.ID(), next.ID(), "a new engine per start")
}

func TestStartFailures(t *testing.T) {
	hook := &hookRecorder{}
	s, err := New(Config{
		Devices:   devices.NewManager(testDevices(), nil, nil),
		NewEngine: func(AudioSpec) (host.Engine, error) { return nil, errors.New("no audio") },
		Hook:      hook,
	})
	require.NoError(t, err)
	_, err = s.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, hook.startErrs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s2, _ := newTestSession(t, "")
	_, err = s2.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	s3, _ := newTestSession(t, "spk")
	_, err = s3.Start(context.Background())
	assert.Error(t, err, "engine rejects the default device")
}

func TestConfigure(t *testing.T) {
	s, hook := newTestSession(t, "")
	assert.ErrorIs(t, s.Configure(context.Background()), ErrNotRunning)

	eng, err := s.Start(context.Background())
	require.NoError(t, err)
	eng.Stop()
	require.NoError(t, s.Configure(context.Background()))
	assert.True(t, eng.IsRunning(), "configure restarts a stopped engine")
	assert.Equal(t, 2, hook.configures)
	assert.Equal(t, 1, hook.configErrs)
}

func TestSetOutputDevice(t *testing.T) {
	s, _ := newTestSession(t, "")
	ctx := context.Background()
	require.NoError(t, s.SetOutputDevice(ctx, "hp"), "selection before start")
	eng, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hp", eng.OutputDevice())

	require.NoError(t, s.SetOutputDevice(ctx, "spk"))
	assert.Equal(t, "spk", eng.OutputDevice())
	assert.Equal(t, "spk", s.OutputDevice())
}

func TestSetOutputDeviceUnknownKeepsPrevious(t *testing.T) {
	s, _ := newTestSession(t, "")
	ctx := context.Background()
	eng, err := s.Start(ctx)
	require.NoError(t, err)

	err = s.SetOutputDevice(ctx, "ghost")
	assert.ErrorIs(t, err, devices.ErrDeviceNotFound)
	assert.Equal(t, "spk", s.OutputDevice())
	assert.Equal(t, "spk", eng.OutputDevice())

	assert.Error(t, s.SetOutputDevice(ctx, "mic"), "input-only device")
	assert.Equal(t, "spk", s.OutputDevice())
}

func TestSetOutputDeviceEngineRejection(t *testing.T) {
	s, _ := newTestSession(t, "hp")
	ctx := context.Background()
	eng, err := s.Start(ctx)
	require.NoError(t, err)

	assert.Error(t, s.SetOutputDevice(ctx, "hp"))
	assert.Equal(t, "spk", s.OutputDevice())
	assert.Equal(t, "spk", eng.OutputDevice())
}

func TestSetInputDevice(t *testing.T) {
	s, _ := newTestSession(t, "")
	require.NoError(t, s.SetInputDevice(context.Background(), "mic"))
	assert.Equal(t, "mic", s.InputDevice())
	assert.Error(t, s.SetInputDevice(context.Background(), "spk"))
	assert.Equal(t, "mic", s.InputDevice())
}

func TestLatency(t *testing.T) {
	assert.Equal(t, 256, MapLatencyToBuffer(LatencyLow))
	assert.Equal(t, 512, MapLatencyToBuffer(LatencyMedium))
	assert.Equal(t, 1024, MapLatencyToBuffer(LatencyHigh))
	assert.Equal(t, 512, MapLatencyToBuffer("weird"))

	for in, want := range map[string]LatencyClass{"": LatencyMedium, "low": LatencyLow, "high": LatencyHigh} {
		got, ok := ParseLatencyClass(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseLatencyClass("fast")
	assert.False(t, ok)
}
