package param

import (
	"sync/atomic"
	"time"
)

// Update is one parameter change in flight from the control thread to the render thread.
// Ramp is captured when the update is posted; later ramp duration changes do not touch it.
type Update struct {
	Address uint64
	Value   float64
	Ramp    time.Duration
	Seq     uint64
}

// Mailbox is the live-update channel of a unit. Each parameter owns one slot; posting
// replaces whatever the render thread has not consumed yet, so only the latest value
// per parameter is ever applied.
//
// Post must be called from a single goroutine (the control thread). Drain is called
// from the render thread. Neither side blocks or takes a lock.
type Mailbox struct {
	tree    *Tree
	slots   []atomic.Pointer[Update]
	dirty   atomic.Bool
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewMailbox creates a mailbox with one slot per parameter in the tree.
func NewMailbox(tree *Tree) *Mailbox {
	return &Mailbox{
		tree:  tree,
		slots: make([]atomic.Pointer[Update], tree.Len()),
	}
}

// Post publishes a value for the parameter at addr. It reports false when the address
// is not part of the tree.
func (m *Mailbox) Post(addr uint64, value float64, ramp time.Duration) bool {
	if m == nil {
		return false
	}
	i, ok := m.tree.Index(addr)
	if !ok {
		return false
	}
	u := &Update{Address: addr, Value: value, Ramp: ramp, Seq: m.seq.Add(1)}
	if prev := m.slots[i].Swap(u); prev != nil {
		m.dropped.Add(1)
	}
	m.dirty.Store(true)
	return true
}

// Drain hands every pending update to fn, in slot order, and clears the slots.
// It returns the number of updates delivered.
func (m *Mailbox) Drain(fn func(slot int, u Update)) int {
	if m == nil || !m.dirty.Swap(false) {
		return 0
	}
	n := 0
	for i := range m.slots {
		if u := m.slots[i].Swap(nil); u != nil {
			fn(i, *u)
			n++
		}
	}
	return n
}

// Pending reports whether updates are waiting for the render thread.
func (m *Mailbox) Pending() bool {
	return m != nil && m.dirty.Load()
}

// Superseded returns how many posted updates were replaced before being drained.
func (m *Mailbox) Superseded() uint64 {
	if m == nil {
		return 0
	}
	return m.dropped.Load()
}
