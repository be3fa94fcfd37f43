// Package soft is a pure Go audio host: an engine that renders a pull graph of
// software units built on algo-dsp kernels.
//
// The engine follows the shape of a platform audio engine: nodes are attached,
// connected bus by bus and pulled from the output node once per render slice.
// Topology changes build an immutable render plan that the render thread picks up
// atomically, so rendering never waits on the control thread.
package soft

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaban/audiograph/host"
)

// Sink receives rendered, interleaved output.
type Sink interface {
	Write(frames []float32) error
}

// Recorder observes render slices. A nil Recorder is allowed.
type Recorder interface {
	RecordRender(frames int, took time.Duration)
}

type discardSink struct{}

func (discardSink) Write([]float32) error { return nil }

// Config configures an Engine.
type Config struct {
	Spec     host.AudioSpec
	Sink     Sink
	Logger   *zap.Logger
	Recorder Recorder
	Registry *host.Registry

	// ManualRendering makes Start mark the engine running without a render
	// loop. The caller pulls audio with Render or RenderInterleaved.
	ManualRendering bool
}

type outputNode struct {
	id string
}

func (o *outputNode) ID() string   { return o.id }
func (o *outputNode) Name() string { return "output" }

// Engine is a software implementation of host.Engine.
type Engine struct {
	id     string
	spec   host.AudioSpec
	logger *zap.Logger
	rec    Recorder
	sink   Sink
	reg    *host.Registry
	output *outputNode
	manual bool

	mu     sync.Mutex
	nodes  map[string]host.Node
	inputs map[string]map[int]host.Node // dst -> bus -> src
	device string

	plan     atomic.Pointer[renderPlan]
	renderMu sync.Mutex
	out      []float32

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	slices  atomic.Uint64
}

var _ host.Engine = (*Engine)(nil)

// New creates an engine with the hardware output node attached.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("engine spec: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = discardSink{}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}

	e := &Engine{
		id:     uuid.NewString(),
		spec:   cfg.Spec,
		rec:    cfg.Recorder,
		sink:   sink,
		reg:    reg,
		output: &outputNode{id: uuid.NewString()},
		manual: cfg.ManualRendering,
		nodes:  make(map[string]host.Node),
		inputs: make(map[string]map[int]host.Node),
	}
	e.logger = logger.With(zap.String("component", "engine"), zap.String("engine", e.id))
	e.nodes[e.output.id] = e.output
	e.rebuild()
	return e, nil
}

func (e *Engine) ID() string               { return e.id }
func (e *Engine) Spec() host.AudioSpec     { return e.spec }
func (e *Engine) OutputNode() host.Node    { return e.output }
func (e *Engine) Registry() *host.Registry { return e.reg }

// NewMixer creates a mixer unit. It is not attached.
func (e *Engine) NewMixer(name string) (host.Unit, error) {
	return e.reg.Instantiate(host.Mixer, name)
}

// Attach adds n to the graph and sets it up for rendering if it is a unit.
func (e *Engine) Attach(n host.Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if u, ok := n.(host.Unit); ok && !u.IsSetUp() {
		if err := u.SetUp(e.spec); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodes[n.ID()] = n
	e.logger.Debug("attached", zap.String("node", n.Name()))
	return nil
}

// Detach removes n and every edge touching it. It waits for the render slice in
// progress, then tears the unit down.
func (e *Engine) Detach(n host.Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if n.ID() == e.output.id {
		return errors.New("output node cannot be detached")
	}

	// A slice rendering the old plan may still be inside the unit.
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	e.mu.Lock()
	if _, ok := e.nodes[n.ID()]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", host.ErrNotAttached, n.Name())
	}
	delete(e.nodes, n.ID())
	delete(e.inputs, n.ID())
	e.removeSourceLocked(n.ID())
	e.rebuild()
	e.mu.Unlock()

	if u, ok := n.(host.Unit); ok {
		u.TearDown()
	}
	e.logger.Debug("detached", zap.String("node", n.Name()))
	return nil
}

func (e *Engine) IsAttached(n host.Node) bool {
	if n == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.nodes[n.ID()]
	return ok
}

// Connect routes src into bus toBus of dst. Existing connections of the source
// output and of the destination bus are broken first.
func (e *Engine) Connect(src, dst host.Node, toBus int) error {
	if src == nil || dst == nil {
		return host.ErrNilNode
	}
	if toBus < 0 {
		return host.ErrInvalidBus
	}
	if src.ID() == dst.ID() {
		return fmt.Errorf("cannot connect %s to itself", src.Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, n := range []host.Node{src, dst} {
		if _, ok := e.nodes[n.ID()]; !ok {
			return fmt.Errorf("%w: %s", host.ErrNotAttached, n.Name())
		}
	}
	if e.feedsLocked(dst.ID(), src.ID()) {
		return fmt.Errorf("connecting %s to %s would create a cycle", src.Name(), dst.Name())
	}

	e.removeSourceLocked(src.ID())
	if e.inputs[dst.ID()] == nil {
		e.inputs[dst.ID()] = make(map[int]host.Node)
	}
	e.inputs[dst.ID()][toBus] = src
	e.rebuild()
	return nil
}

// DisconnectNodeInput breaks the connection feeding bus of dst.
func (e *Engine) DisconnectNodeInput(dst host.Node, bus int) error {
	if dst == nil {
		return host.ErrNilNode
	}
	if bus < 0 {
		return host.ErrInvalidBus
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[dst.ID()]; !ok {
		return fmt.Errorf("%w: %s", host.ErrNotAttached, dst.Name())
	}
	if busMap, ok := e.inputs[dst.ID()]; ok {
		delete(busMap, bus)
		if len(busMap) == 0 {
			delete(e.inputs, dst.ID())
		}
	}
	e.rebuild()
	return nil
}

// DisconnectNodeOutput breaks every connection fed by src.
func (e *Engine) DisconnectNodeOutput(src host.Node) error {
	if src == nil {
		return host.ErrNilNode
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[src.ID()]; !ok {
		return fmt.Errorf("%w: %s", host.ErrNotAttached, src.Name())
	}
	e.removeSourceLocked(src.ID())
	e.rebuild()
	return nil
}

// Inputs returns a copy of the bus map of dst.
func (e *Engine) Inputs(dst host.Node) map[int]host.Node {
	out := make(map[int]host.Node)
	if dst == nil {
		return out
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for bus, src := range e.inputs[dst.ID()] {
		out[bus] = src
	}
	return out
}

func (e *Engine) removeSourceLocked(srcID string) {
	for dstID, busMap := range e.inputs {
		for bus, src := range busMap {
			if src.ID() == srcID {
				delete(busMap, bus)
			}
		}
		if len(busMap) == 0 {
			delete(e.inputs, dstID)
		}
	}
}

// feedsLocked reports whether from reaches to by following connections downstream.
func (e *Engine) feedsLocked(fromID, toID string) bool {
	seen := map[string]bool{}
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == toID {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		for dstID, busMap := range e.inputs {
			for _, src := range busMap {
				if src.ID() == id && walk(dstID) {
					return true
				}
			}
		}
		return false
	}
	return walk(fromID)
}

// Start launches the render loop. Starting a running engine is a no-op.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	if e.manual {
		e.logger.Info("engine started in manual rendering mode")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	e.logger.Info("engine started",
		zap.Float64("sample_rate", e.spec.SampleRate),
		zap.Int("buffer_size", e.spec.BufferSize))
	return nil
}

// Stop halts the render loop and waits for it to exit.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel, e.done = nil, nil
	}
	e.logger.Info("engine stopped", zap.Uint64("slices", e.slices.Load()))
}

func (e *Engine) IsRunning() bool { return e.running.Load() }

// ManualRendering reports whether the caller drives rendering.
func (e *Engine) ManualRendering() bool { return e.manual }

// Slices returns the number of render slices produced so far.
func (e *Engine) Slices() uint64 { return e.slices.Load() }

func (e *Engine) SetOutputDevice(id string) error {
	if id == "" {
		return errors.New("output device id is empty")
	}
	e.mu.Lock()
	e.device = id
	e.mu.Unlock()
	e.logger.Info("output device set", zap.String("device", id))
	return nil
}

func (e *Engine) OutputDevice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	period := time.Duration(float64(e.spec.BufferSize) / e.spec.SampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buf := make([]float32, e.spec.BufferSize*e.spec.ChannelCount)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RenderInterleaved(buf)
			if err := e.sink.Write(buf); err != nil {
				e.logger.Warn("sink write failed", zap.Error(err))
			}
		}
	}
}

// Render pulls frames mono samples through the graph from the output node. The
// returned slice is reused by the next call.
func (e *Engine) Render(frames int) []float64 {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	return e.renderLocked(frames)
}

// RenderInterleaved renders len(dst)/ChannelCount frames and copies the mono mix
// to every channel.
func (e *Engine) RenderInterleaved(dst []float32) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	ch := e.spec.ChannelCount
	frames := len(dst) / ch
	mono := e.renderLocked(frames)
	for i, s := range mono {
		for c := 0; c < ch; c++ {
			dst[i*ch+c] = float32(s)
		}
	}
}

func (e *Engine) renderLocked(frames int) []float64 {
	start := time.Now()
	p := e.plan.Load()
	out := p.render(frames)
	e.slices.Add(1)
	if e.rec != nil {
		e.rec.RecordRender(frames, time.Since(start))
	}
	return out
}

// rebuild publishes a new render plan. Callers hold e.mu.
func (e *Engine) rebuild() {
	e.plan.Store(buildPlan(e.output, e.inputs))
}

// processor is implemented by nodes the engine can render.
type processor interface {
	Process(in, out []float64)
}

type step struct {
	proc   processor
	inputs []int
	in     []float64
	out    []float64
}

// renderPlan is a topologically sorted list of steps ending at the output node.
// It is immutable apart from the buffers, which only the render thread touches.
type renderPlan struct {
	steps []step
}

func buildPlan(output host.Node, inputs map[string]map[int]host.Node) *renderPlan {
	p := &renderPlan{}
	index := map[string]int{}

	var visit func(n host.Node) int
	visit = func(n host.Node) int {
		if i, ok := index[n.ID()]; ok {
			return i
		}
		busMap := inputs[n.ID()]
		buses := make([]int, 0, len(busMap))
		for bus := range busMap {
			buses = append(buses, bus)
		}
		sort.Ints(buses)

		var deps []int
		for _, bus := range buses {
			deps = append(deps, visit(busMap[bus]))
		}
		s := step{inputs: deps}
		if proc, ok := n.(processor); ok {
			s.proc = proc
		}
		p.steps = append(p.steps, s)
		index[n.ID()] = len(p.steps) - 1
		return len(p.steps) - 1
	}
	visit(output)
	return p
}

func (p *renderPlan) render(frames int) []float64 {
	for i := range p.steps {
		s := &p.steps[i]
		s.in = resize(s.in, frames)
		s.out = resize(s.out, frames)
		clear(s.in)
		for _, dep := range s.inputs {
			src := p.steps[dep].out
			for n := range s.in {
				s.in[n] += src[n]
			}
		}
		if s.proc != nil {
			s.proc.Process(s.in, s.out)
		} else {
			copy(s.out, s.in)
		}
	}
	return p.steps[len(p.steps)-1].out
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
