// Package audiograph builds and plays audio node graphs: effects and
// instruments are connected into a chain, the chain's output node feeds a final
// mixer, and the final mixer feeds the hardware output of a session engine.
//
//	eng, _ := audiograph.NewEngine(audiograph.EngineConfig{})
//	flute, _ := eng.NewFluteInstrument("flute")
//	reverb, _ := eng.NewZitaReverb("reverb")
//	_ = eng.Connect(flute, reverb)
//	_ = eng.SetOutput(ctx, reverb)
//	_ = eng.Start(ctx)
//
// Nodes may be created and configured before Start. Parameter values set
// while the engine is stopped are applied when the engine starts.
package audiograph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/engine/queue"
	"github.com/shaban/audiograph/engine/spec"
	"github.com/shaban/audiograph/graph"
	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
	"github.com/shaban/audiograph/nodes"
	"github.com/shaban/audiograph/param"
	"github.com/shaban/audiograph/session"
)

// Recorder receives the metrics of every component.
type Recorder interface {
	param.Recorder
	graph.Recorder
	soft.Recorder
	devices.Recorder
	session.MetricsHook
}

// Node is a processing node of the engine.
type Node interface {
	graph.Node
	Description() host.Description
	Set(name string, value float64) error
	Values() map[string]float64
	RampDuration() time.Duration
	SetRampDuration(d time.Duration)
	Start()
	Stop()
	IsStarted() bool
}

// EngineConfig holds configuration for engine initialization
type EngineConfig struct {
	AudioSpec    session.AudioSpec // zero value uses session.DefaultAudioSpec
	Devices      devices.Backend   // nil uses the platform default backend
	RampDuration time.Duration     // default ramp of new nodes
	Sink         soft.Sink         // receives rendered audio; nil discards it

	// ManualRendering disables the render loop. Audio is pulled with Render.
	ManualRendering bool

	Logger       *zap.Logger
	Recorder     Recorder
	ErrorHandler ErrorHandler // defaults to DefaultErrorHandler
}

// Engine is the audio engine facade: it owns the session, the nodes, the
// final mixer and the connections between them.
type Engine struct {
	id           uuid.UUID
	logger       *zap.Logger
	errorHandler ErrorHandler
	rec          Recorder
	nodeCfg      nodes.Config
	session      *session.Session
	final        *nodes.Mixer

	mu      sync.RWMutex
	nodes   map[string]Node
	links   map[string]string // source id -> destination id
	output  string
	graph   *graph.Graph
	queue   *queue.Dispatcher
	monitor *devices.Monitor
}

// NewEngine creates a stopped engine with its final mixer.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := cfg.ErrorHandler
	if handler == nil {
		handler = &DefaultErrorHandler{Logger: logger}
	}
	backend := cfg.Devices
	if backend == nil {
		backend = devices.DefaultBackend()
	}

	e := &Engine{
		id:           uuid.New(),
		errorHandler: handler,
		rec:          cfg.Recorder,
		nodes:        make(map[string]Node),
		links:        make(map[string]string),
	}
	e.logger = logger.With(zap.String("component", "audiograph"), zap.String("engine", e.id.String()))

	var paramRec param.Recorder
	var devRec devices.Recorder
	var hook session.MetricsHook
	var renderRec soft.Recorder
	if cfg.Recorder != nil {
		paramRec, devRec, hook, renderRec = cfg.Recorder, cfg.Recorder, cfg.Recorder, cfg.Recorder
	}

	registry := soft.DefaultRegistry()
	e.nodeCfg = nodes.Config{
		Registry:     registry,
		RampDuration: cfg.RampDuration,
		Logger:       logger,
		Recorder:     paramRec,
	}

	sess, err := session.New(session.Config{
		Spec:    cfg.AudioSpec,
		Devices: devices.NewManager(backend, logger, devRec),
		NewEngine: func(s session.AudioSpec) (host.Engine, error) {
			return soft.New(soft.Config{
				Spec:            spec.Resolve(s),
				Sink:            cfg.Sink,
				Logger:          logger,
				Recorder:        renderRec,
				Registry:        registry,
				ManualRendering: cfg.ManualRendering,
			})
		},
		Logger: logger,
		Hook:   hook,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	e.session = sess

	final, err := nodes.NewMixer("final", e.nodeCfg)
	if err != nil {
		return nil, fmt.Errorf("create final mixer: %w", err)
	}
	e.final = final
	return e, nil
}

func (e *Engine) ID() string                   { return e.id.String() }
func (e *Engine) Session() *session.Session    { return e.session }
func (e *Engine) FinalMixer() *nodes.Mixer     { return e.final }
func (e *Engine) AudioSpec() session.AudioSpec { return e.session.AudioSpec() }

// Start starts the session engine, attaches every node and restores the
// connections and output made so far.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph != nil {
		return nil
	}

	eng, err := e.session.Start(ctx)
	if err != nil {
		return err
	}
	var graphRec graph.Recorder
	if e.rec != nil {
		graphRec = e.rec
	}
	g, err := graph.New(eng, e.final, graph.Config{
		Configurer: e.session,
		Logger:     e.logger,
		Recorder:   graphRec,
	})
	if err != nil {
		e.session.Stop()
		return fmt.Errorf("build graph: %w", err)
	}
	d := queue.NewDispatcher(g, queue.New(32, e.logger))
	d.Start()
	e.graph, e.queue = g, d

	if err := e.restoreLocked(ctx); err != nil {
		e.stopLocked()
		return err
	}
	e.logger.Info("engine started", zap.Int("nodes", len(e.nodes)), zap.String("output", e.output))
	return nil
}

func (e *Engine) restoreLocked(ctx context.Context) error {
	for _, id := range e.sortedIDsLocked() {
		if err := e.queue.Attach(e.nodes[id]); err != nil {
			return fmt.Errorf("attach %s: %w", e.nodes[id].Name(), err)
		}
	}
	for src, dst := range e.links {
		if src == e.output {
			continue
		}
		if err := e.queue.Connect(e.nodes[src], e.lookupLocked(dst)); err != nil {
			return fmt.Errorf("connect %s: %w", e.nodes[src].Name(), err)
		}
	}
	if n, ok := e.nodes[e.output]; ok {
		if err := e.queue.SetOutput(ctx, n); err != nil {
			return fmt.Errorf("set output %s: %w", n.Name(), err)
		}
	}
	return nil
}

// Stop stops the session engine. Nodes, parameter values and connections are
// kept for the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.graph == nil {
		return
	}
	e.queue.Close()
	e.session.Stop()
	for _, n := range e.nodes {
		n.AudioUnit().TearDown()
	}
	e.final.AudioUnit().TearDown()
	e.graph, e.queue = nil, nil
	e.logger.Info("engine stopped")
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph != nil
}

// Graph returns the node graph of the running engine, or nil.
func (e *Engine) Graph() *graph.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph
}

func (e *Engine) NewZitaReverb(name string) (*nodes.ZitaReverb, error) {
	n, err := nodes.NewZitaReverb(name, e.nodeCfg)
	if err != nil {
		return nil, err
	}
	return n, e.Add(n)
}

func (e *Engine) NewDistortion(name string) (*nodes.Distortion, error) {
	n, err := nodes.NewDistortion(name, e.nodeCfg)
	if err != nil {
		return nil, err
	}
	return n, e.Add(n)
}

func (e *Engine) NewTremolo(name string) (*nodes.Tremolo, error) {
	n, err := nodes.NewTremolo(name, e.nodeCfg)
	if err != nil {
		return nil, err
	}
	return n, e.Add(n)
}

func (e *Engine) NewFluteInstrument(name string) (*nodes.FluteInstrument, error) {
	n, err := nodes.NewFluteInstrument(name, e.nodeCfg)
	if err != nil {
		return nil, err
	}
	return n, e.Add(n)
}

// NewMixer creates a submixer. The final mixer is FinalMixer.
func (e *Engine) NewMixer(name string) (*nodes.Mixer, error) {
	n, err := nodes.NewMixer(name, e.nodeCfg)
	if err != nil {
		return nil, err
	}
	return n, e.Add(n)
}

// Add makes n part of the engine and attaches it when the engine runs.
func (e *Engine) Add(n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[n.ID()]; ok || n.ID() == e.final.ID() {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.Name())
	}
	if e.graph != nil {
		if err := e.queue.Attach(n); err != nil {
			return e.fail(fmt.Errorf("attach %s: %w", n.Name(), err))
		}
	}
	e.nodes[n.ID()] = n
	return nil
}

// Node returns the node with the given id.
func (e *Engine) Node(id string) (Node, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nodes[id]
	return n, ok
}

// Nodes returns every node except the final mixer, ordered by name.
func (e *Engine) Nodes() []Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Node, 0, len(e.nodes))
	for _, id := range e.sortedIDsLocked() {
		out = append(out, e.nodes[id])
	}
	return out
}

// Connect routes src into dst. A node feeds at most one other node, so an
// existing connection of src is replaced.
func (e *Engine) Connect(src, dst Node) error {
	if src == nil || dst == nil {
		return host.ErrNilNode
	}
	if src.ID() == e.final.ID() {
		return graph.ErrTerminal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.knownLocked(src, dst); err != nil {
		return err
	}
	if e.graph != nil {
		if err := e.queue.Connect(src, dst); err != nil {
			return e.fail(fmt.Errorf("connect %s -> %s: %w", src.Name(), dst.Name(), err))
		}
	}
	if e.output == src.ID() && dst.ID() != e.final.ID() {
		e.output = ""
	}
	if !dst.Description().IsMixer() {
		for s, d := range e.links {
			if d == dst.ID() {
				delete(e.links, s)
			}
		}
	}
	e.links[src.ID()] = dst.ID()
	return nil
}

// Disconnect removes the outbound connection of src.
func (e *Engine) Disconnect(src Node) error {
	if src == nil {
		return host.ErrNilNode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.knownLocked(src); err != nil {
		return err
	}
	if e.graph != nil {
		if err := e.queue.Disconnect(src); err != nil {
			return e.fail(fmt.Errorf("disconnect %s: %w", src.Name(), err))
		}
	}
	delete(e.links, src.ID())
	if e.output == src.ID() {
		e.output = ""
	}
	return nil
}

// Remove disconnects n, detaches it from the running engine and forgets it.
func (e *Engine) Remove(n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if n.ID() == e.final.ID() {
		return ErrFinalMixer
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.knownLocked(n); err != nil {
		return err
	}
	if e.graph != nil {
		if err := e.queue.Remove(n); err != nil {
			return e.fail(fmt.Errorf("remove %s: %w", n.Name(), err))
		}
	}
	delete(e.nodes, n.ID())
	delete(e.links, n.ID())
	for src, dst := range e.links {
		if dst == n.ID() {
			delete(e.links, src)
		}
	}
	if e.output == n.ID() {
		e.output = ""
	}
	return nil
}

// SetOutput routes n into the final mixer in place of the previous output.
// While the engine is stopped the output is recorded and routed on Start.
func (e *Engine) SetOutput(ctx context.Context, n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if n.ID() == e.final.ID() {
		return graph.ErrTerminal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.knownLocked(n); err != nil {
		return err
	}
	if e.graph != nil {
		if err := e.queue.SetOutput(ctx, n); err != nil {
			e.syncOutputLocked()
			return e.fail(fmt.Errorf("set output %s: %w", n.Name(), err))
		}
	}
	if prev := e.output; prev != "" && prev != n.ID() && e.links[prev] == e.final.ID() {
		delete(e.links, prev)
	}
	e.links[n.ID()] = e.final.ID()
	e.output = n.ID()
	return nil
}

// syncOutputLocked adopts the final mixer inputs and the output of the graph
// after a failed output change.
func (e *Engine) syncOutputLocked() {
	for src, dst := range e.links {
		if dst == e.final.ID() {
			delete(e.links, src)
		}
	}
	for _, in := range e.graph.Inputs(e.final) {
		e.links[in.ID()] = e.final.ID()
	}
	e.output = ""
	if out := e.graph.Output(); out != nil {
		e.output = out.ID()
	}
}

// Output returns the node feeding the final mixer, or nil.
func (e *Engine) Output() Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodes[e.output]
}

// DisconnectAllInputs removes every input of the final mixer. Upstream nodes
// keep their state and their own connections.
func (e *Engine) DisconnectAllInputs() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph != nil {
		if err := e.queue.DisconnectAllInputs(); err != nil {
			return e.fail(fmt.Errorf("disconnect final mixer inputs: %w", err))
		}
	}
	for src, dst := range e.links {
		if dst == e.final.ID() {
			delete(e.links, src)
		}
	}
	e.output = ""
	return nil
}

// Target returns the node src feeds: another node or the final mixer.
func (e *Engine) Target(src Node) (Node, bool) {
	if src == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	dst, ok := e.links[src.ID()]
	if !ok {
		return nil, false
	}
	n := e.lookupLocked(dst)
	return n, n != nil
}

func (e *Engine) lookupLocked(id string) Node {
	if id == e.final.ID() {
		return e.final
	}
	if n, ok := e.nodes[id]; ok {
		return n
	}
	return nil
}

// Render pulls frames of mono audio from a manually rendering engine. The
// returned slice is reused by the next call.
func (e *Engine) Render(frames int) ([]float64, error) {
	e.mu.RLock()
	g := e.graph
	e.mu.RUnlock()
	if g == nil {
		return nil, ErrNotRunning
	}
	eng, ok := g.Engine().(*soft.Engine)
	if !ok || !eng.ManualRendering() {
		return nil, ErrNotManual
	}
	return eng.Render(frames), nil
}

func (e *Engine) knownLocked(ns ...Node) error {
	for _, n := range ns {
		if n.ID() == e.final.ID() {
			continue
		}
		if _, ok := e.nodes[n.ID()]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, n.Name())
		}
	}
	return nil
}

func (e *Engine) sortedIDsLocked() []string {
	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := e.nodes[ids[i]], e.nodes[ids[j]]
		if a.Name() != b.Name() {
			return a.Name() < b.Name()
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (e *Engine) fail(err error) error {
	e.errorHandler.HandleError(err)
	return err
}
