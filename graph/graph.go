// Package graph tracks the connections between processing nodes and the terminal
// mixer of a session, and keeps the engine's connections in sync with them.
//
// Topology:
//
//	source -> effect -> ... -> output node -> terminal mixer -> hardware output
//
// Every node has at most one downstream target. The terminal mixer accepts any
// number of inputs and is always routed to the engine's hardware output.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shaban/audiograph/host"
)

var (
	ErrTerminal        = errors.New("terminal mixer cannot feed another node")
	ErrUnknownNode     = errors.New("node not part of the graph")
	ErrConfigure       = errors.New("session configuration failed")
	ErrOutputReconnect = errors.New("output reconnection failed")
	ErrPartialState    = errors.New("graph left in partial state")
)

// Reconnect outcomes reported to the Recorder.
const (
	ReconnectOK              = "ok"
	ReconnectConfigureFailed = "configure_failed"
	ReconnectRolledBack      = "rolled_back"
	ReconnectPartial         = "partial"
)

// Node is a processing node backed by an audio unit.
type Node interface {
	ID() string
	Name() string
	AudioUnit() host.Unit
}

// Readier is implemented by nodes that buffer parameter writes until their unit
// is attached to an engine.
type Readier interface {
	Ready()
}

// Configurer prepares the audio session before the output changes.
type Configurer interface {
	Configure(ctx context.Context) error
}

// ConfigurerFunc adapts a function into a Configurer.
type ConfigurerFunc func(ctx context.Context) error

func (f ConfigurerFunc) Configure(ctx context.Context) error { return f(ctx) }

// Recorder observes graph operations. A nil Recorder is allowed.
type Recorder interface {
	RecordGraphOp(op string, err error)
	RecordOutputReconnect(result string)
}

// Config holds optional Graph settings.
type Config struct {
	Configurer Configurer
	Logger     *zap.Logger
	Recorder   Recorder
}

// Edge is a directed connection into an input bus of Destination.
type Edge struct {
	Source      Node
	Destination Node
	Bus         int
}

// Graph is the node graph of one engine.
type Graph struct {
	mu       sync.Mutex
	engine   host.Engine
	terminal Node
	output   Node
	nodes    map[string]Node
	targets  map[string]Edge // source id -> outbound edge

	configurer Configurer
	logger     *zap.Logger
	rec        Recorder
}

// New attaches terminal to the engine and routes it to the hardware output.
func New(engine host.Engine, terminal Node, cfg Config) (*Graph, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if terminal == nil {
		return nil, fmt.Errorf("terminal: %w", host.ErrNilNode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Graph{
		engine:     engine,
		terminal:   terminal,
		nodes:      make(map[string]Node),
		targets:    make(map[string]Edge),
		configurer: cfg.Configurer,
		logger:     logger.With(zap.String("component", "graph")),
		rec:        cfg.Recorder,
	}
	if err := g.attachLocked(terminal); err != nil {
		return nil, fmt.Errorf("attach terminal: %w", err)
	}
	if err := engine.Connect(terminal.AudioUnit(), engine.OutputNode(), 0); err != nil {
		return nil, fmt.Errorf("route terminal to output: %w", err)
	}
	return g, nil
}

// Terminal returns the terminal mixer.
func (g *Graph) Terminal() Node { return g.terminal }

// Engine returns the engine the graph drives.
func (g *Graph) Engine() host.Engine { return g.engine }

// Output returns the node currently routed into the terminal mixer as the
// session output, or nil.
func (g *Graph) Output() Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.output
}

// Attach adds n to the graph without connecting it.
func (g *Graph) Attach(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.attachLocked(n)
	g.record("attach", err)
	return err
}

// Connect routes src into dst. If src already feeds another node that edge is
// torn down first.
func (g *Graph) Connect(src, dst Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.connectLocked(src, dst)
	g.record("connect", err)
	return err
}

// Disconnect removes the outbound edge of src. It is a no-op when src feeds nothing.
func (g *Graph) Disconnect(src Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.disconnectLocked(src)
	g.record("disconnect", err)
	return err
}

// Remove disconnects n on both sides and detaches it from the engine.
func (g *Graph) Remove(n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if n.ID() == g.terminal.ID() {
		return fmt.Errorf("%w: cannot remove", ErrTerminal)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, n.Name())
	}
	delete(g.targets, n.ID())
	for id, e := range g.targets {
		if e.Destination.ID() == n.ID() {
			delete(g.targets, id)
		}
	}
	delete(g.nodes, n.ID())
	if g.output != nil && g.output.ID() == n.ID() {
		g.output = nil
	}
	err := g.engine.Detach(n.AudioUnit())
	g.record("remove", err)
	return err
}

// SetOutput makes n the session output: the configurer runs, the previous output
// is disconnected from the terminal mixer, n is connected to it and the terminal
// is reconnected to the hardware output.
//
// A configurer failure leaves the previous routing untouched. If n cannot be
// connected the previous output is reconnected; when that also fails the graph is
// left without an output and ErrPartialState is returned.
func (g *Graph) SetOutput(ctx context.Context, n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if n.ID() == g.terminal.ID() {
		return ErrTerminal
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.configurer != nil {
		if err := g.configurer.Configure(ctx); err != nil {
			g.logger.Error("could not set output", zap.String("node", n.Name()), zap.Error(err))
			g.reconnected(ReconnectConfigureFailed)
			return fmt.Errorf("%w: %w", ErrConfigure, err)
		}
	}

	prev := g.output
	if prev != nil && prev.ID() != n.ID() && g.feedsTerminalLocked(prev) {
		if err := g.disconnectLocked(prev); err != nil {
			g.logger.Error("disconnect previous output", zap.String("node", prev.Name()), zap.Error(err))
			g.reconnected(ReconnectRolledBack)
			return fmt.Errorf("%w: %w", ErrOutputReconnect, err)
		}
	}

	if err := g.connectLocked(n, g.terminal); err != nil {
		g.logger.Error("could not set output", zap.String("node", n.Name()), zap.Error(err))
		if prev == nil || prev.ID() == n.ID() {
			g.output = nil
			g.reconnected(ReconnectPartial)
			return fmt.Errorf("%w: %w: %w", ErrPartialState, ErrOutputReconnect, err)
		}
		if rbErr := g.connectLocked(prev, g.terminal); rbErr != nil {
			g.output = nil
			g.logger.Error("rollback to previous output failed, graph has no output",
				zap.String("previous", prev.Name()), zap.Error(rbErr))
			g.reconnected(ReconnectPartial)
			return fmt.Errorf("%w: %w", ErrPartialState, errors.Join(err, rbErr))
		}
		g.output = prev
		g.logger.Warn("rolled back to previous output", zap.String("previous", prev.Name()))
		g.reconnected(ReconnectRolledBack)
		return fmt.Errorf("%w: %w", ErrOutputReconnect, err)
	}
	g.output = n

	if err := g.engine.Connect(g.terminal.AudioUnit(), g.engine.OutputNode(), 0); err != nil {
		g.logger.Error("route terminal to hardware output", zap.Error(err))
		g.reconnected(ReconnectPartial)
		return fmt.Errorf("%w: %w", ErrPartialState, err)
	}

	g.logger.Info("output set", zap.String("node", n.Name()))
	g.reconnected(ReconnectOK)
	return nil
}

// DisconnectAllInputs removes every edge into the terminal mixer. Upstream nodes
// keep their state and their own connections.
func (g *Graph) DisconnectAllInputs() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tu := g.terminal.AudioUnit()
	var errs []error
	for bus := range g.engine.Inputs(tu) {
		if err := g.engine.DisconnectNodeInput(tu, bus); err != nil {
			errs = append(errs, fmt.Errorf("bus %d: %w", bus, err))
		}
	}
	for id, e := range g.targets {
		if e.Destination.ID() == g.terminal.ID() {
			delete(g.targets, id)
		}
	}
	g.output = nil

	err := errors.Join(errs...)
	g.record("disconnect_all_inputs", err)
	return err
}

// Target returns the node n feeds.
func (g *Graph) Target(n Node) (Node, bool) {
	if n == nil {
		return nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.targets[n.ID()]
	if !ok {
		return nil, false
	}
	return e.Destination, true
}

// Inputs returns the nodes feeding n ordered by bus.
func (g *Graph) Inputs(n Node) []Node {
	if n == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var edges []Edge
	for _, e := range g.targets {
		if e.Destination.ID() == n.ID() {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Bus < edges[j].Bus })
	out := make([]Node, len(edges))
	for i, e := range edges {
		out[i] = e.Source
	}
	return out
}

// Edges returns every connection ordered by destination name, then bus.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, 0, len(g.targets))
	for _, e := range g.targets {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Destination.Name() != out[j].Destination.Name() {
			return out[i].Destination.Name() < out[j].Destination.Name()
		}
		return out[i].Bus < out[j].Bus
	})
	return out
}

// Nodes returns every attached node ordered by name.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (g *Graph) attachLocked(n Node) error {
	if n == nil {
		return host.ErrNilNode
	}
	if _, ok := g.nodes[n.ID()]; ok {
		return nil
	}
	u := n.AudioUnit()
	if u == nil {
		return fmt.Errorf("%s: %w", n.Name(), host.ErrNilNode)
	}
	if !g.engine.IsAttached(u) {
		if err := g.engine.Attach(u); err != nil {
			return fmt.Errorf("attach %s: %w", n.Name(), err)
		}
	}
	g.nodes[n.ID()] = n
	if r, ok := n.(Readier); ok {
		r.Ready()
	}
	return nil
}

func (g *Graph) connectLocked(src, dst Node) error {
	if src == nil || dst == nil {
		return host.ErrNilNode
	}
	if src.ID() == g.terminal.ID() {
		return ErrTerminal
	}
	if e, ok := g.targets[src.ID()]; ok && e.Destination.ID() == dst.ID() {
		return nil
	}
	if err := g.attachLocked(src); err != nil {
		return err
	}
	if err := g.attachLocked(dst); err != nil {
		return err
	}
	if err := g.disconnectLocked(src); err != nil {
		return err
	}

	bus := g.busForLocked(dst)
	if err := g.engine.Connect(src.AudioUnit(), dst.AudioUnit(), bus); err != nil {
		return fmt.Errorf("connect %s -> %s: %w", src.Name(), dst.Name(), err)
	}
	// a single-input destination drops whatever fed it before
	for id, e := range g.targets {
		if e.Destination.ID() == dst.ID() && e.Bus == bus {
			delete(g.targets, id)
		}
	}
	g.targets[src.ID()] = Edge{Source: src, Destination: dst, Bus: bus}
	g.logger.Debug("connected",
		zap.String("source", src.Name()), zap.String("destination", dst.Name()), zap.Int("bus", bus))
	return nil
}

func (g *Graph) disconnectLocked(src Node) error {
	if src == nil {
		return host.ErrNilNode
	}
	if _, ok := g.targets[src.ID()]; !ok {
		return nil
	}
	if err := g.engine.DisconnectNodeOutput(src.AudioUnit()); err != nil {
		return fmt.Errorf("disconnect %s: %w", src.Name(), err)
	}
	delete(g.targets, src.ID())
	if g.output != nil && g.output.ID() == src.ID() {
		g.output = nil
	}
	return nil
}

// busForLocked picks the lowest free bus on mixers and bus 0 elsewhere.
func (g *Graph) busForLocked(dst Node) int {
	if !dst.AudioUnit().Description().IsMixer() {
		return 0
	}
	used := map[int]bool{}
	for _, e := range g.targets {
		if e.Destination.ID() == dst.ID() {
			used[e.Bus] = true
		}
	}
	for bus := 0; ; bus++ {
		if !used[bus] {
			return bus
		}
	}
}

func (g *Graph) feedsTerminalLocked(n Node) bool {
	e, ok := g.targets[n.ID()]
	return ok && e.Destination.ID() == g.terminal.ID()
}

func (g *Graph) record(op string, err error) {
	if err != nil {
		g.logger.Warn("graph operation failed", zap.String("op", op), zap.Error(err))
	}
	if g.rec != nil {
		g.rec.RecordGraphOp(op, err)
	}
}

func (g *Graph) reconnected(result string) {
	if g.rec != nil {
		g.rec.RecordOutputReconnect(result)
	}
}
