// Package nodes provides the processing nodes of an audio graph: effects, an
// instrument and mixers. Every node owns an audio unit and a parameter
// controller that drives it.
package nodes

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/param"
)

// ErrNoRegistry is returned when a node is created without a unit registry.
var ErrNoRegistry = errors.New("no unit registry")

// Config holds the dependencies shared by every node of a session.
type Config struct {
	Registry     *host.Registry
	RampDuration time.Duration
	Logger       *zap.Logger
	Recorder     param.Recorder
}

// Node is a processing node backed by one audio unit.
type Node struct {
	id   uuid.UUID
	name string
	desc host.Description

	unit host.Unit
	ctrl *param.Controller

	mu      sync.RWMutex
	started bool
}

// New instantiates the unit described by desc and binds a parameter controller
// declaring params to it. The node starts in the started state.
func New(desc host.Description, name string, params []param.Parameter, cfg Config) (*Node, error) {
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	defs, err := param.NewTree(params...)
	if err != nil {
		return nil, fmt.Errorf("%s parameters: %w", desc, err)
	}
	unit, err := cfg.Registry.Instantiate(desc, name)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ramp := cfg.RampDuration
	if ramp == 0 {
		ramp = param.DefaultRampDuration
	}

	n := &Node{
		id:      uuid.New(),
		name:    name,
		desc:    desc,
		unit:    unit,
		started: true,
	}
	n.ctrl = param.NewController(defs, param.ControllerConfig{
		Name:         name,
		RampDuration: ramp,
		Logger:       logger.With(zap.String("node", name)),
		Recorder:     cfg.Recorder,
	})
	n.ctrl.Bind(unit)
	return n, nil
}

func (n *Node) ID() string                    { return n.id.String() }
func (n *Node) UUID() uuid.UUID               { return n.id }
func (n *Node) Name() string                  { return n.name }
func (n *Node) Description() host.Description { return n.desc }
func (n *Node) AudioUnit() host.Unit          { return n.unit }
func (n *Node) Controller() *param.Controller { return n.ctrl }

// Ready is called once the unit is attached to an engine. Values set before
// that are applied now.
func (n *Node) Ready() { n.ctrl.Ready() }

// Set writes a parameter by name.
func (n *Node) Set(name string, value float64) error { return n.ctrl.Set(name, value) }

// Value returns the logical value of a parameter.
func (n *Node) Value(name string) (float64, error) { return n.ctrl.Value(name) }

// Values returns every parameter value by name.
func (n *Node) Values() map[string]float64 { return n.ctrl.Values() }

// Parameters returns the parameters the node declares.
func (n *Node) Parameters() []param.Parameter { return n.ctrl.Parameters() }

func (n *Node) RampDuration() time.Duration     { return n.ctrl.RampDuration() }
func (n *Node) SetRampDuration(d time.Duration) { n.ctrl.SetRampDuration(d) }

// Start resumes processing. A stopped node passes its input through.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = true
	n.unit.SetBypass(false)
}

// Stop bypasses the unit.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = false
	n.unit.SetBypass(true)
}

func (n *Node) IsStarted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.started
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.name, n.desc.Subtype)
}
