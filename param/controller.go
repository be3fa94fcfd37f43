package param

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownParameter is returned when a write names a parameter the node does not declare.
var ErrUnknownParameter = errors.New("unknown parameter")

// DefaultRampDuration matches the usual de-zippering window for control changes.
const DefaultRampDuration = 20 * time.Millisecond

// Write paths reported to the Recorder.
const (
	PathLive      = "live"
	PathImmediate = "immediate"
	PathBuffered  = "buffered"
	PathFlushed   = "flushed"
	PathSkipped   = "skipped"
)

// Target is the processing unit a Controller drives.
type Target interface {
	// Tree returns the unit's parameter tree, or nil when the unit has none.
	Tree() *Tree
	// IsSetUp reports whether the unit has allocated its render resources.
	IsSetUp() bool
	// Observer returns the unit's live-update channel, or nil when none is available.
	Observer() *Mailbox
	// SetImmediately applies a value without ramping.
	SetImmediately(addr uint64, value float64) error
}

// Recorder receives one event per parameter write. A nil Recorder is allowed.
type Recorder interface {
	RecordParameterWrite(node, path string)
}

// ControllerConfig holds optional Controller settings.
type ControllerConfig struct {
	Name         string // node name used in logs and metrics
	RampDuration time.Duration
	Logger       *zap.Logger
	Recorder     Recorder
}

// Controller maps logical parameter writes onto a Target.
//
// Writes reach the target through its observer mailbox when the target is set up,
// which lets the render thread ramp them; otherwise they are buffered and applied
// once by Ready. Writing the value a parameter already holds is a no-op.
type Controller struct {
	mu      sync.Mutex
	name    string
	defs    *Tree
	target  Target
	ready   bool
	ramp    time.Duration
	values  map[string]float64
	pending map[string]float64

	logger   *zap.Logger
	recorder Recorder
}

// NewController creates a controller for the parameters declared in defs.
// Every parameter starts at its default value.
func NewController(defs *Tree, cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ramp := cfg.RampDuration
	if ramp < 0 {
		ramp = 0
	}
	return &Controller{
		name:     cfg.Name,
		defs:     defs,
		ramp:     ramp,
		values:   defs.Defaults(),
		pending:  make(map[string]float64),
		logger:   logger.With(zap.String("component", "param"), zap.String("node", cfg.Name)),
		recorder: cfg.Recorder,
	}
}

// Bind attaches the controller to a new target. The target is not considered ready
// until Ready is called; every value that differs from its default is queued so the
// new target ends up in the same logical state.
func (c *Controller) Bind(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target = t
	c.ready = false
	for _, p := range c.defs.All() {
		if v := c.values[p.Name]; v != p.DefaultValue {
			c.pending[p.Name] = v
		}
	}
}

// Unbind detaches the current target. Subsequent writes are buffered.
func (c *Controller) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = nil
	c.ready = false
}

// Ready marks the bound target as initialized and applies every buffered value
// exactly once, unramped.
func (c *Controller) Ready() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.target == nil {
		return
	}
	c.ready = true
	if len(c.pending) == 0 {
		return
	}

	tree := c.target.Tree()
	for _, p := range c.defs.All() {
		v, ok := c.pending[p.Name]
		if !ok {
			continue
		}
		delete(c.pending, p.Name)

		tp, ok := tree.Lookup(p.Name)
		if !ok {
			c.logger.Debug("parameter not in unit tree, keeping default",
				zap.String("parameter", p.Name))
			c.values[p.Name] = p.DefaultValue
			c.record(PathSkipped)
			continue
		}
		if err := c.target.SetImmediately(tp.Address, v); err != nil {
			c.logger.Warn("flush parameter failed",
				zap.String("parameter", p.Name), zap.Float64("value", v), zap.Error(err))
			continue
		}
		c.record(PathFlushed)
	}
}

// IsReady reports whether writes currently reach the target directly.
func (c *Controller) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLive()
}

// Set writes a parameter value.
func (c *Controller) Set(name string, value float64) error {
	p, ok := c.defs.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.values[name]; ok && cur == value {
		return nil
	}

	if !c.isLive() {
		c.values[name] = value
		c.pending[name] = value
		c.record(PathBuffered)
		return nil
	}
	applied, err := c.apply(p, value)
	if err != nil {
		return err
	}
	c.values[name] = applied
	return nil
}

// Value returns the logical value of a parameter. A write the unit could not
// take because it exposes no such parameter leaves the default in place.
func (c *Controller) Value(name string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return v, nil
}

// Values returns a copy of all logical values.
func (c *Controller) Values() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Pending returns the number of buffered writes waiting for Ready.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Parameters returns the declared parameters.
func (c *Controller) Parameters() []Parameter {
	return c.defs.All()
}

// RampDuration returns the ramp applied to subsequent live writes.
func (c *Controller) RampDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ramp
}

// SetRampDuration changes the ramp for writes issued from now on. Ramps already
// posted to the target keep their original duration.
func (c *Controller) SetRampDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	c.ramp = d
	c.mu.Unlock()
}

func (c *Controller) isLive() bool {
	return c.target != nil && c.ready && c.target.IsSetUp()
}

// apply must be called with c.mu held. It returns the value the parameter holds
// afterwards, which is the default when the unit cannot take the write.
func (c *Controller) apply(p Parameter, value float64) (float64, error) {
	tree := c.target.Tree()
	if tree == nil {
		c.logger.Debug("unit has no parameter tree, write skipped", zap.String("parameter", p.Name))
		c.record(PathSkipped)
		return p.DefaultValue, nil
	}
	tp, ok := tree.Lookup(p.Name)
	if !ok {
		c.logger.Debug("parameter not in unit tree, write skipped", zap.String("parameter", p.Name))
		c.record(PathSkipped)
		return p.DefaultValue, nil
	}

	if mb := c.target.Observer(); mb != nil && tp.CanRamp {
		if mb.Post(tp.Address, value, c.ramp) {
			c.record(PathLive)
			return value, nil
		}
	} else if mb == nil {
		c.logger.Debug("no observer token, setting immediately", zap.String("parameter", p.Name))
	}

	if err := c.target.SetImmediately(tp.Address, value); err != nil {
		return 0, fmt.Errorf("set %s on %s: %w", p.Name, c.name, err)
	}
	c.record(PathImmediate)
	return value, nil
}

func (c *Controller) record(path string) {
	if c.recorder != nil {
		c.recorder.RecordParameterWrite(c.name, path)
	}
}
