// Package param implements per-node parameter control for audio units.
//
// Model:
//   - A Tree describes the parameters an audio unit exposes (name, address, range, default).
//   - A Mailbox is the live-update channel between the control thread and the render
//     thread: single producer, lock-free, latest value wins per address.
//   - A Ramp interpolates a parameter on the render thread over a fixed number of frames.
//   - A Controller maps logical name/value writes onto a Target (usually a host unit),
//     buffering writes until the target is ready and skipping redundant writes.
package param

import (
	"fmt"
	"math"
	"sort"
)

// Parameter describes one control value of an audio unit.
type Parameter struct {
	Name         string  `json:"name"`
	DisplayName  string  `json:"displayName,omitempty"`
	Address      uint64  `json:"address"`
	MinValue     float64 `json:"minValue"`
	MaxValue     float64 `json:"maxValue"`
	DefaultValue float64 `json:"defaultValue"`
	Unit         string  `json:"unit,omitempty"`
	CanRamp      bool    `json:"canRamp"`
}

// Clamp limits v to the parameter range. A zero-width range leaves v untouched.
func (p Parameter) Clamp(v float64) float64 {
	if p.MaxValue <= p.MinValue {
		return v
	}
	return math.Min(math.Max(v, p.MinValue), p.MaxValue)
}

// Tree is an immutable set of parameters addressable by name or address.
type Tree struct {
	params    []Parameter
	byName    map[string]int
	byAddress map[uint64]int
}

// NewTree builds a tree. Names and addresses must be unique.
func NewTree(params ...Parameter) (*Tree, error) {
	t := &Tree{
		params:    make([]Parameter, 0, len(params)),
		byName:    make(map[string]int, len(params)),
		byAddress: make(map[uint64]int, len(params)),
	}
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter at address %d has no name", p.Address)
		}
		if _, dup := t.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter name %q", p.Name)
		}
		if _, dup := t.byAddress[p.Address]; dup {
			return nil, fmt.Errorf("duplicate parameter address %d", p.Address)
		}
		t.byName[p.Name] = len(t.params)
		t.byAddress[p.Address] = len(t.params)
		t.params = append(t.params, p)
	}
	return t, nil
}

// MustTree is NewTree for static parameter tables.
func MustTree(params ...Parameter) *Tree {
	t, err := NewTree(params...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the parameter with the given name.
func (t *Tree) Lookup(name string) (Parameter, bool) {
	if t == nil {
		return Parameter{}, false
	}
	i, ok := t.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return t.params[i], true
}

// ByAddress returns the parameter with the given address.
func (t *Tree) ByAddress(addr uint64) (Parameter, bool) {
	if t == nil {
		return Parameter{}, false
	}
	i, ok := t.byAddress[addr]
	if !ok {
		return Parameter{}, false
	}
	return t.params[i], true
}

// Index returns the dense slot index for an address, used by render-side state arrays.
func (t *Tree) Index(addr uint64) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.byAddress[addr]
	return i, ok
}

// Len returns the number of parameters.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.params)
}

// All returns the parameters in declaration order.
func (t *Tree) All() []Parameter {
	if t == nil {
		return nil
	}
	out := make([]Parameter, len(t.params))
	copy(out, t.params)
	return out
}

// Names returns the parameter names sorted alphabetically.
func (t *Tree) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.params))
	for _, p := range t.params {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns a name -> default value map.
func (t *Tree) Defaults() map[string]float64 {
	out := make(map[string]float64, t.Len())
	if t == nil {
		return out
	}
	for _, p := range t.params {
		out[p.Name] = p.DefaultValue
	}
	return out
}
