package audiograph

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/engine/analyze"
	"github.com/shaban/audiograph/graph"
	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/internal/metrics"
	"github.com/shaban/audiograph/internal/testutil"
	"github.com/shaban/audiograph/session"
)

type recordingHandler struct {
	mu   sync.Mutex
	errs []error
}

func (h *recordingHandler) HandleError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *recordingHandler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func testBackend() *devices.Static {
	return devices.NewStatic(
		devices.AudioDevice{Device: devices.Device{Name: "Speakers", UID: "spk", IsOnline: true}, OutputChannelCount: 2, IsDefaultOutput: true},
		devices.AudioDevice{Device: devices.Device{Name: "Headphones", UID: "hp", IsOnline: true}, OutputChannelCount: 2},
		devices.AudioDevice{Device: devices.Device{Name: "Mic", UID: "mic", IsOnline: true}, InputChannelCount: 1, IsDefaultInput: true},
	)
}

func testConfig(handler ErrorHandler) EngineConfig {
	return EngineConfig{
		AudioSpec: session.AudioSpec{
			PreferredSampleRate: 8000,
			LatencyHint:         session.LatencyLow,
			ChannelCount:        1,
			BitDepth:            32,
			BufferSize:          64,
		},
		Devices:         testBackend(),
		ManualRendering: true,
		Logger:          zap.NewNop(),
		ErrorHandler:    handler,
	}
}

func newTestEngine(t *testing.T) (*Engine, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	e, err := NewEngine(testConfig(h))
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e, h
}

func renderRMS(t *testing.T, e *Engine, slices int) float64 {
	t.Helper()
	best := 0.0
	for i := 0; i < slices; i++ {
		buf, err := e.Render(64)
		require.NoError(t, err)
		if r := testutil.RMS(buf); r > best {
			best = r
		}
	}
	return best
}

func TestNewEngine(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NotEmpty(t, e.ID())
	assert.False(t, e.IsRunning())
	assert.Nil(t, e.Graph())
	assert.Nil(t, e.Output())
	assert.Empty(t, e.Nodes())
	assert.Equal(t, "final", e.FinalMixer().Name())
	assert.Equal(t, 8000.0, e.AudioSpec().PreferredSampleRate)

	_, err := e.Render(64)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEngineRendersChain(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	flute, err := e.NewFluteInstrument("flute")
	require.NoError(t, err)
	trem, err := e.NewTremolo("trem")
	require.NoError(t, err)
	require.NoError(t, trem.SetDepth(0))
	require.NoError(t, e.Connect(flute, trem))
	require.NoError(t, e.SetOutput(ctx, trem))

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Start(ctx), "start is idempotent")
	assert.True(t, e.IsRunning())
	assert.Equal(t, "spk", e.OutputDevice(), "default output selected on start")

	g := e.Graph()
	require.NotNil(t, g)
	assert.Equal(t, trem.ID(), g.Output().ID())
	target, ok := g.Target(flute)
	require.True(t, ok)
	assert.Equal(t, trem.ID(), target.ID())

	require.NoError(t, flute.Trigger(440, 1))
	assert.Greater(t, renderRMS(t, e, 16), 0.01)

	flute.Stop()
	renderRMS(t, e, 4)
	buf, err := e.Render(64)
	require.NoError(t, err)
	assert.Less(t, testutil.RMS(buf), 1e-3, "a stopped instrument is silent")
}

func TestEngineFinalVolume(t *testing.T) {
	capture := func(volume float64) []float64 {
		e, _ := newTestEngine(t)
		ctx := context.Background()
		flute, err := e.NewFluteInstrument("flute")
		require.NoError(t, err)
		require.NoError(t, e.SetOutput(ctx, flute))
		require.NoError(t, e.FinalMixer().SetVolume(volume))
		require.NoError(t, e.Start(ctx))
		require.NoError(t, flute.Trigger(440, 1))

		buf, err := analyze.Capture(e.Render, 2048, 64)
		require.NoError(t, err)
		return buf
	}

	cfg := analyze.DefaultAnalysisConfig()
	full, half := capture(1), capture(0.5)
	a := analyze.ComparePath(full, half, cfg)
	require.NoError(t, analyze.ValidatePathAnalysis(a, true))
	require.NoError(t, analyze.ValidateGain(a, -6.02, cfg))

	chain := analyze.AnalyzeChain(full, half, cfg)
	require.NoError(t, analyze.ValidateChainAnalysis(chain, true))
}

func TestEngineStopKeepsTopology(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rev, err := e.NewZitaReverb("reverb")
	require.NoError(t, err)
	dist, err := e.NewDistortion("dist")
	require.NoError(t, err)
	require.NoError(t, e.Connect(dist, rev))
	require.NoError(t, e.SetOutput(ctx, rev))
	require.NoError(t, e.Start(ctx))

	e.Stop()
	e.Stop()
	assert.False(t, e.IsRunning())
	_, err = e.Render(64)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, rev.SetPredelay(10), "writes while stopped are buffered")
	require.NoError(t, e.Start(ctx))
	g := e.Graph()
	assert.Equal(t, rev.ID(), g.Output().ID())
	target, ok := g.Target(dist)
	require.True(t, ok)
	assert.Equal(t, rev.ID(), target.ID())

	v, ok := rev.AudioUnit().Value(host.ZitaPredelay)
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestEngineConnectKeepsOneTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	a, _ := e.NewTremolo("a")
	b, _ := e.NewTremolo("b")
	c, _ := e.NewTremolo("c")
	x, _ := e.NewTremolo("x")

	require.NoError(t, e.Connect(a, b))
	require.NoError(t, e.Connect(a, c))
	target, ok := e.Target(a)
	require.True(t, ok)
	assert.Equal(t, c.ID(), target.ID())

	require.NoError(t, e.Connect(x, c))
	_, ok = e.Target(a)
	assert.False(t, ok, "a single-input node keeps only its newest source")

	require.NoError(t, e.Start(context.Background()))
	inputs := e.Graph().Inputs(c)
	require.Len(t, inputs, 1)
	assert.Equal(t, x.ID(), inputs[0].ID())

	require.NoError(t, e.Disconnect(x))
	_, ok = e.Target(x)
	assert.False(t, ok)
	assert.Empty(t, e.Graph().Inputs(c))
}

func TestEngineRejectsForeignNodes(t *testing.T) {
	e, _ := newTestEngine(t)
	other, _ := newTestEngine(t)
	stranger, err := other.NewTremolo("stranger")
	require.NoError(t, err)
	mine, err := e.NewTremolo("mine")
	require.NoError(t, err)

	assert.ErrorIs(t, e.Connect(stranger, mine), ErrUnknownNode)
	assert.ErrorIs(t, e.SetOutput(context.Background(), stranger), ErrUnknownNode)
	assert.ErrorIs(t, e.Remove(stranger), ErrUnknownNode)
	assert.ErrorIs(t, e.Add(mine), ErrNodeExists)
	assert.ErrorIs(t, e.Add(e.FinalMixer()), ErrNodeExists)
	assert.ErrorIs(t, e.Remove(e.FinalMixer()), ErrFinalMixer)
	assert.ErrorIs(t, e.Connect(e.FinalMixer(), mine), graph.ErrTerminal)
	assert.ErrorIs(t, e.SetOutput(context.Background(), e.FinalMixer()), graph.ErrTerminal)
}

func TestEngineDisconnectAllInputs(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	flute, _ := e.NewFluteInstrument("flute")
	a, _ := e.NewTremolo("a")
	b, _ := e.NewTremolo("b")
	x, _ := e.NewTremolo("x")
	require.NoError(t, e.Connect(flute, a))
	require.NoError(t, e.SetOutput(ctx, a))
	require.NoError(t, e.Connect(b, e.FinalMixer()))
	require.NoError(t, e.Start(ctx))
	require.Len(t, e.Graph().Inputs(e.FinalMixer()), 2)

	require.NoError(t, e.DisconnectAllInputs())
	assert.Nil(t, e.Output())
	assert.Empty(t, e.Graph().Inputs(e.FinalMixer()))
	target, ok := e.Target(flute)
	require.True(t, ok, "upstream edges are untouched")
	assert.Equal(t, a.ID(), target.ID())
	assert.True(t, a.IsStarted())

	require.NoError(t, e.SetOutput(ctx, x))
	inputs := e.Graph().Inputs(e.FinalMixer())
	require.Len(t, inputs, 1)
	assert.Equal(t, x.ID(), inputs[0].ID())
	assert.Equal(t, x.ID(), e.Output().ID())
}

func TestEngineRemove(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, _ := e.NewTremolo("a")
	b, _ := e.NewTremolo("b")
	require.NoError(t, e.Connect(a, b))
	require.NoError(t, e.SetOutput(ctx, b))
	require.NoError(t, e.Start(ctx))

	require.NoError(t, e.Remove(b))
	assert.Nil(t, e.Output())
	_, ok := e.Target(a)
	assert.False(t, ok)
	_, ok = e.Node(b.ID())
	assert.False(t, ok)
	assert.False(t, e.Graph().Engine().IsAttached(b.AudioUnit()))
	assert.Len(t, e.Nodes(), 1)
}

func TestEngineRemoveWhileRendering(t *testing.T) {
	cfg := testConfig(nil)
	cfg.ManualRendering = false
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	defer e.Stop()
	ctx := context.Background()

	flute, err := e.NewFluteInstrument("flute")
	require.NoError(t, err)
	rev, err := e.NewZitaReverb("reverb")
	require.NoError(t, err)
	require.NoError(t, e.Connect(flute, rev))
	require.NoError(t, e.SetOutput(ctx, rev))
	require.NoError(t, e.Start(ctx))
	require.NoError(t, flute.Trigger(440, 1))
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, e.Remove(rev))
	assert.False(t, rev.AudioUnit().IsSetUp())
	assert.False(t, e.Graph().Engine().IsAttached(rev.AudioUnit()))
	assert.Nil(t, e.Output())
}

func TestEngineRestartAppliesLastValue(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	trem, err := e.NewTremolo("trem")
	require.NoError(t, err)
	require.NoError(t, e.SetOutput(ctx, trem))

	require.NoError(t, e.Start(ctx))
	_, err = e.Render(64)
	require.NoError(t, err)
	require.NoError(t, trem.SetDepth(0.2), "posted live, not rendered before stop")
	e.Stop()

	require.NoError(t, trem.SetDepth(0.9))
	require.NoError(t, e.Start(ctx))
	for i := 0; i < 20; i++ {
		_, err = e.Render(64)
		require.NoError(t, err)
	}
	v, ok := trem.AudioUnit().Value(host.TremoloDepth)
	require.True(t, ok)
	assert.Equal(t, 0.9, v)

	e.Stop()
	require.NoError(t, e.Start(ctx))
	_, err = e.Render(64)
	require.NoError(t, err)
	v, _ = trem.AudioUnit().Value(host.TremoloDepth)
	assert.Equal(t, 0.9, v)
}

func TestEngineRestartKeepsUnrenderedLiveValue(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	trem, err := e.NewTremolo("trem")
	require.NoError(t, err)
	require.NoError(t, e.SetOutput(ctx, trem))

	require.NoError(t, e.Start(ctx))
	require.NoError(t, trem.SetDepth(0.3))
	e.Stop()
	require.NoError(t, e.Start(ctx))
	_, err = e.Render(64)
	require.NoError(t, err)

	v, _ := trem.AudioUnit().Value(host.TremoloDepth)
	assert.Equal(t, 0.3, v)
}

func TestEngineRenderNeedsManualMode(t *testing.T) {
	cfg := testConfig(nil)
	cfg.ManualRendering = false
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	_, err = e.Render(64)
	assert.ErrorIs(t, err, ErrNotManual)
}

func TestEngineDeviceSelection(t *testing.T) {
	e, h := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	outs, err := e.OutputDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, outs, 2)
	ins, err := e.InputDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, ins, 1)
	all, err := e.AudioDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "mic", e.InputDevice())

	require.NoError(t, e.SetOutputDevice(ctx, "hp"))
	assert.Equal(t, "hp", e.Graph().Engine().OutputDevice())

	err = e.SetOutputDevice(ctx, "ghost")
	assert.ErrorIs(t, err, devices.ErrDeviceNotFound)
	assert.Equal(t, "hp", e.OutputDevice(), "previous device remains")
	assert.Error(t, e.SetInputDevice(ctx, "spk"))
	assert.Equal(t, "mic", e.InputDevice())
	assert.Len(t, h.Errors(), 2)
}

func TestEngineWatchDevicesFallsBack(t *testing.T) {
	h := &recordingHandler{}
	cfg := testConfig(h)
	backend := testBackend()
	cfg.Devices = backend
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	defer e.Stop()
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.SetOutputDevice(ctx, "hp"))

	var removed sync.Map
	require.NoError(t, e.WatchDevices(ctx, devices.MonitorConfig{BaseInterval: 10 * time.Millisecond}, DeviceCallbacks{
		Removed: func(uid string) { removed.Store(uid, true) },
	}))
	defer e.StopWatchingDevices()
	assert.Error(t, e.WatchDevices(ctx, devices.MonitorConfig{}, DeviceCallbacks{}))

	list, err := backend.Devices(ctx)
	require.NoError(t, err)
	var kept devices.AudioDevices
	for _, d := range list {
		if d.UID != "hp" {
			kept = append(kept, d)
		}
	}
	backend.SetDevices(kept...)

	require.Eventually(t, func() bool {
		_, ok := removed.Load("hp")
		return ok && e.OutputDevice() == "spk"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "spk", e.Graph().Engine().OutputDevice())
	require.NotEmpty(t, h.Errors())
	assert.ErrorIs(t, h.Errors()[0], devices.ErrDeviceNotFound)
}

func TestEngineReportsMetrics(t *testing.T) {
	cfg := testConfig(nil)
	collector := metrics.NewCollector("agtest", zap.NewNop())
	cfg.Recorder = collector
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	defer e.Stop()

	trem, err := e.NewTremolo("trem")
	require.NoError(t, err)
	require.NoError(t, trem.SetFrequency(5))
	require.NoError(t, e.SetOutput(context.Background(), trem))
	require.NoError(t, e.Start(context.Background()))
	_, err = e.Render(64)
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"agtest_parameter_writes_total",
		"agtest_graph_operations_total",
		"agtest_output_reconnects_total",
		"agtest_render_slices_total",
		"agtest_engine_starts_total",
		"agtest_device_selections_total",
		"agtest_session_configures_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	flute, _ := e.NewFluteInstrument("flute")
	rev, _ := e.NewZitaReverb("reverb")
	require.NoError(t, e.Connect(flute, rev))
	require.NoError(t, e.SetOutput(ctx, rev))
	require.NoError(t, rev.SetDryWetMix(0.25))
	rev.SetRampDuration(5 * time.Millisecond)
	require.NoError(t, e.FinalMixer().SetVolume(0.5))
	flute.Stop()

	s := NewSerializer(e)
	var buf bytes.Buffer
	require.NoError(t, s.SaveToWriter(&buf))

	var state EngineState
	require.NoError(t, json.Unmarshal(buf.Bytes(), &state))
	assert.Equal(t, StateVersion, state.Version)
	assert.Equal(t, rev.ID(), state.Output)
	assert.Equal(t, 0.5, state.FinalVolume)
	require.Len(t, state.Nodes, 2)
	assert.Equal(t, "flute", state.Nodes[0].Name)
	assert.False(t, state.Nodes[0].Started)
	assert.Equal(t, 0.25, state.Nodes[1].Parameters["dryWetMix"])
	assert.ElementsMatch(t, []Connection{{From: flute.ID(), To: rev.ID()}, {From: rev.ID(), To: "final"}}, state.Connections)

	require.NoError(t, rev.SetDryWetMix(1))
	rev.SetRampDuration(time.Second)
	flute.Start()
	require.NoError(t, e.DisconnectAllInputs())
	require.NoError(t, e.FinalMixer().SetVolume(1))

	require.NoError(t, s.LoadFromReader(ctx, strings.NewReader(buf.String())))
	mix, err := rev.Value("dryWetMix")
	require.NoError(t, err)
	assert.Equal(t, 0.25, mix)
	assert.Equal(t, 5*time.Millisecond, rev.RampDuration())
	assert.False(t, flute.IsStarted())
	assert.Equal(t, 0.5, e.FinalMixer().Volume())
	assert.Equal(t, rev.ID(), e.Output().ID())
}

func TestSerializerRestoresByName(t *testing.T) {
	src, _ := newTestEngine(t)
	trem, _ := src.NewTremolo("trem")
	require.NoError(t, trem.SetDepth(0.3))
	require.NoError(t, src.SetOutput(context.Background(), trem))
	state := NewSerializer(src).GetState()

	dst, _ := newTestEngine(t)
	twin, _ := dst.NewTremolo("trem")
	require.NoError(t, NewSerializer(dst).SetState(context.Background(), state))
	depth, err := twin.Value("depth")
	require.NoError(t, err)
	assert.Equal(t, 0.3, depth)
	assert.Equal(t, twin.ID(), dst.Output().ID())
}

func TestSerializerRejects(t *testing.T) {
	e, _ := newTestEngine(t)
	s := NewSerializer(e)

	err := s.SetState(context.Background(), EngineState{Version: "0.1"})
	assert.ErrorIs(t, err, ErrStateVersion)

	err = s.SetState(context.Background(), EngineState{
		Version: StateVersion,
		Nodes:   []NodeState{{ID: "x", Name: "ghost", Component: "aufx:none:none"}},
	})
	assert.ErrorIs(t, err, ErrUnknownNode)

	assert.Error(t, s.LoadFromReader(context.Background(), strings.NewReader("{")))
}

func TestErrorHandlers(t *testing.T) {
	err := assert.AnError
	assert.NotPanics(t, func() { (&DefaultErrorHandler{}).HandleError(err) })
	assert.NotPanics(t, func() { (&DefaultErrorHandler{Logger: zap.NewNop()}).HandleError(err) })
	assert.Panics(t, func() { (&PanicErrorHandler{}).HandleError(err) })

	inner := &recordingHandler{}
	var logged []error
	h := NewLoggingErrorHandler(inner, func(e error) { logged = append(logged, e) })
	h.HandleError(err)
	assert.Equal(t, []error{err}, logged)
	assert.Equal(t, []error{err}, inner.Errors())
}
