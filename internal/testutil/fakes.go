package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
)

// Engine wraps a software engine, records every mutation and lets tests inject
// failures into Connect.
type Engine struct {
	*soft.Engine

	mu    sync.Mutex
	calls []string

	// FailConnect, when set, runs before every Connect. A non-nil error aborts it.
	FailConnect func(src, dst host.Node, bus int) error
}

var _ host.Engine = (*Engine)(nil)

// NewEngine returns a recording engine with SmallSpec.
func NewEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := soft.New(soft.Config{Spec: SmallSpec()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &Engine{Engine: e}
}

func (e *Engine) Connect(src, dst host.Node, bus int) error {
	e.record("connect %s -> %s:%d", src.Name(), dst.Name(), bus)
	e.mu.Lock()
	fail := e.FailConnect
	e.mu.Unlock()
	if fail != nil {
		if err := fail(src, dst, bus); err != nil {
			return err
		}
	}
	return e.Engine.Connect(src, dst, bus)
}

func (e *Engine) DisconnectNodeInput(dst host.Node, bus int) error {
	e.record("disconnect input %s:%d", dst.Name(), bus)
	return e.Engine.DisconnectNodeInput(dst, bus)
}

func (e *Engine) DisconnectNodeOutput(src host.Node) error {
	e.record("disconnect output %s", src.Name())
	return e.Engine.DisconnectNodeOutput(src)
}

// SetFailConnect installs a Connect failure hook.
func (e *Engine) SetFailConnect(fn func(src, dst host.Node, bus int) error) {
	e.mu.Lock()
	e.FailConnect = fn
	e.mu.Unlock()
}

// Calls returns the recorded mutations.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// ResetCalls clears the recorded mutations.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

func (e *Engine) record(format string, args ...any) {
	e.mu.Lock()
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

// Node is a minimal graph node around a software unit.
type Node struct {
	unit  host.Unit
	mu    sync.Mutex
	ready int
}

// NewNode instantiates a built-in unit by description.
func NewNode(t *testing.T, d host.Description, name string) *Node {
	t.Helper()
	u, err := soft.DefaultRegistry().Instantiate(d, name)
	if err != nil {
		t.Fatalf("instantiate %s: %v", d, err)
	}
	return &Node{unit: u}
}

// NewEffect returns a tremolo node.
func NewEffect(t *testing.T, name string) *Node {
	return NewNode(t, host.Tremolo, name)
}

// NewMixer returns a mixer node.
func NewMixer(t *testing.T, name string) *Node {
	return NewNode(t, host.Mixer, name)
}

func (n *Node) ID() string           { return n.unit.ID() }
func (n *Node) Name() string         { return n.unit.Name() }
func (n *Node) AudioUnit() host.Unit { return n.unit }

// Ready counts readiness notifications.
func (n *Node) Ready() {
	n.mu.Lock()
	n.ready++
	n.mu.Unlock()
}

// ReadyCount returns how often Ready was called.
func (n *Node) ReadyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready
}
