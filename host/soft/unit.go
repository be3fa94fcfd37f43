package soft

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/param"
)

// Kernel is the DSP core of a unit. All methods run on the render thread, except
// Init which runs during SetUp before the unit is rendered.
type Kernel interface {
	Init(sampleRate float64) error
	// Set applies the value of the parameter in the given tree slot.
	Set(slot int, value float64)
	Process(x float64) float64
	Reset()
}

// EventKind enumerates the note and control events a kernel can receive.
type EventKind uint8

const (
	EventTrigger EventKind = iota + 1
	EventNoteOn
	EventNoteOff
	EventControl
	EventRelease // releases whatever is sounding
)

// Event is a note or control message for instrument kernels.
type Event struct {
	Kind      EventKind
	Note      uint8
	Velocity  uint8
	Channel   uint8
	Frequency float64
	Amplitude float64
	Value     float64
}

// EventKernel is implemented by kernels that play notes.
type EventKernel interface {
	Kernel
	HandleEvent(ev Event)
}

const eventQueueSize = 64

// UnitOption configures a Unit.
type UnitOption func(*Unit)

// WithoutObserver creates a unit that exposes no live-update channel.
func WithoutObserver() UnitOption {
	return func(u *Unit) { u.observer = nil }
}

// WithoutTree creates a unit that exposes no parameter tree. It still renders
// with its parameter defaults.
func WithoutTree() UnitOption {
	return func(u *Unit) { u.exposeTree = false }
}

// Unit is a software audio unit: a Kernel plus the parameter plumbing between the
// control thread and the render thread.
type Unit struct {
	id   string
	name string
	desc host.Description

	defs       *param.Tree
	exposeTree bool
	observer   *param.Mailbox
	direct     *param.Mailbox
	events     chan Event
	kernel     Kernel

	lifecycle  sync.Mutex
	setUp      atomic.Bool
	bypass     atomic.Bool
	sampleRate float64

	ramps     []param.Ramp
	published []atomic.Uint64
}

var _ host.Unit = (*Unit)(nil)

// NewUnit creates a unit rendering k with the given parameters.
func NewUnit(name string, desc host.Description, params []param.Parameter, k Kernel, opts ...UnitOption) (*Unit, error) {
	if k == nil {
		return nil, fmt.Errorf("unit %s: kernel is nil", name)
	}
	tree, err := param.NewTree(params...)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	u := &Unit{
		id:         uuid.NewString(),
		name:       name,
		desc:       desc,
		defs:       tree,
		exposeTree: true,
		observer:   param.NewMailbox(tree),
		direct:     param.NewMailbox(tree),
		events:     make(chan Event, eventQueueSize),
		kernel:     k,
		ramps:      make([]param.Ramp, tree.Len()),
		published:  make([]atomic.Uint64, tree.Len()),
	}
	for i, p := range tree.All() {
		u.ramps[i].Reset(p.DefaultValue)
		u.published[i].Store(math.Float64bits(p.DefaultValue))
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

func (u *Unit) ID() string                    { return u.id }
func (u *Unit) Name() string                  { return u.name }
func (u *Unit) Description() host.Description { return u.desc }
func (u *Unit) IsSetUp() bool                 { return u.setUp.Load() }
func (u *Unit) Observer() *param.Mailbox      { return u.observer }
func (u *Unit) Kernel() Kernel                { return u.kernel }

func (u *Unit) Tree() *param.Tree {
	if !u.exposeTree {
		return nil
	}
	return u.defs
}

// SetUp initializes the kernel at the spec's sample rate. Calling it on a unit that
// is already set up is a no-op.
func (u *Unit) SetUp(spec host.AudioSpec) error {
	u.lifecycle.Lock()
	defer u.lifecycle.Unlock()

	if u.setUp.Load() {
		return nil
	}
	if err := u.kernel.Init(spec.SampleRate); err != nil {
		return fmt.Errorf("set up %s: %w", u.name, err)
	}
	u.sampleRate = spec.SampleRate
	u.observer.Drain(u.settle)
	u.direct.Drain(u.applyImmediate)
	for i := range u.ramps {
		u.kernel.Set(i, u.ramps[i].Value())
	}
	u.setUp.Store(true)
	return nil
}

// TearDown stops rendering and resets the kernel state. Live updates the render
// thread has not consumed and ramps in progress are settled at their targets.
// No Process call may be in flight.
func (u *Unit) TearDown() {
	u.lifecycle.Lock()
	defer u.lifecycle.Unlock()

	if !u.setUp.Swap(false) {
		return
	}
	u.observer.Drain(u.settle)
	for i := range u.ramps {
		if u.ramps[i].Active() {
			u.ramps[i].Reset(u.ramps[i].Target())
		}
	}
	u.publish()
	u.kernel.Reset()
}

// SetImmediately applies a value without ramping. The value is visible through
// Value right away and reaches the kernel at the start of the next render slice.
func (u *Unit) SetImmediately(addr uint64, value float64) error {
	p, ok := u.defs.ByAddress(addr)
	if !ok {
		return fmt.Errorf("unit %s: no parameter at address %d", u.name, addr)
	}
	value = p.Clamp(value)
	i, _ := u.defs.Index(addr)
	u.direct.Post(addr, value, 0)
	u.published[i].Store(math.Float64bits(value))
	return nil
}

func (u *Unit) Value(addr uint64) (float64, bool) {
	i, ok := u.defs.Index(addr)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(u.published[i].Load()), true
}

func (u *Unit) SetBypass(bypass bool) { u.bypass.Store(bypass) }
func (u *Unit) Bypassed() bool        { return u.bypass.Load() }

// Send queues a note or control event. It reports false when the queue is full or
// the kernel does not handle events.
func (u *Unit) Send(ev Event) bool {
	if _, ok := u.kernel.(EventKernel); !ok {
		return false
	}
	select {
	case u.events <- ev:
		return true
	default:
		return false
	}
}

// Process renders len(out) frames. in and out must have the same length.
func (u *Unit) Process(in, out []float64) {
	if !u.setUp.Load() {
		clear(out)
		return
	}

	u.direct.Drain(u.applyImmediate)
	u.observer.Drain(u.startRamp)
	u.drainEvents()

	if u.bypass.Load() {
		copy(out, in)
		for i := range u.ramps {
			if u.ramps[i].Active() {
				u.kernel.Set(i, u.ramps[i].Advance(len(out)))
			}
		}
		u.publish()
		return
	}

	ramping := u.anyRamping()
	for n := range out {
		if ramping {
			ramping = false
			for i := range u.ramps {
				if u.ramps[i].Active() {
					u.kernel.Set(i, u.ramps[i].Next())
					ramping = true
				}
			}
		}
		out[n] = u.kernel.Process(in[n])
	}
	u.publish()
}

func (u *Unit) applyImmediate(slot int, upd param.Update) {
	u.ramps[slot].Reset(upd.Value)
	u.kernel.Set(slot, upd.Value)
}

func (u *Unit) startRamp(slot int, upd param.Update) {
	p, _ := u.defs.ByAddress(upd.Address)
	u.ramps[slot].Start(p.Clamp(upd.Value), param.Frames(upd.Ramp, u.sampleRate))
	if !u.ramps[slot].Active() {
		u.kernel.Set(slot, u.ramps[slot].Value())
	}
}

// settle jumps to a live update's value without touching the kernel.
func (u *Unit) settle(slot int, upd param.Update) {
	p, _ := u.defs.ByAddress(upd.Address)
	u.ramps[slot].Reset(p.Clamp(upd.Value))
	u.published[slot].Store(math.Float64bits(u.ramps[slot].Value()))
}

func (u *Unit) drainEvents() {
	ek, ok := u.kernel.(EventKernel)
	if !ok {
		return
	}
	for {
		select {
		case ev := <-u.events:
			ek.HandleEvent(ev)
		default:
			return
		}
	}
}

func (u *Unit) anyRamping() bool {
	for i := range u.ramps {
		if u.ramps[i].Active() {
			return true
		}
	}
	return false
}

func (u *Unit) publish() {
	for i := range u.ramps {
		u.published[i].Store(math.Float64bits(u.ramps[i].Value()))
	}
}
