// Package host defines the contract between the node graph and an audio host:
// the engine that owns the render graph and the audio units attached to it.
//
// The software implementation lives in host/soft. Anything that satisfies these
// interfaces (a platform engine binding, a test fake) can be driven by graph and nodes.
package host

import (
	"errors"
	"fmt"

	"github.com/shaban/audiograph/param"
)

var (
	ErrNilNode     = errors.New("node is nil")
	ErrNotAttached = errors.New("node not attached to engine")
	ErrInvalidBus  = errors.New("bus index cannot be negative")
	ErrUnknownUnit = errors.New("no unit registered for description")
)

// AudioSpec defines the foundational audio settings for an engine.
type AudioSpec struct {
	SampleRate   float64 `json:"sampleRate"`   // 44100, 48000, 96000 Hz
	BufferSize   int     `json:"bufferSize"`   // 256, 512, 1024, 2048 frames
	BitDepth     int     `json:"bitDepth"`     // engines render 32-bit float internally
	ChannelCount int     `json:"channelCount"` // 1 (mono), 2 (stereo)
}

// DefaultAudioSpec returns commonly used audio settings.
func DefaultAudioSpec() AudioSpec {
	return AudioSpec{
		SampleRate:   48000,
		BufferSize:   512,
		BitDepth:     32,
		ChannelCount: 2,
	}
}

// Validate checks that the spec can drive a render loop.
func (s AudioSpec) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", s.SampleRate)
	}
	if s.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", s.BufferSize)
	}
	if s.ChannelCount <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", s.ChannelCount)
	}
	return nil
}

// Description identifies an audio unit component.
type Description struct {
	Type         string `json:"type"`         // aufx, aumu, aumx, ...
	Subtype      string `json:"subtype"`      // four-character code
	Manufacturer string `json:"manufacturer"` // four-character code
}

func (d Description) String() string {
	return d.Type + ":" + d.Subtype + ":" + d.Manufacturer
}

// IsMixer reports whether the component accepts any number of input buses.
func (d Description) IsMixer() bool { return d.Type == "aumx" }

// Node is anything that can be attached to an Engine.
type Node interface {
	ID() string
	Name() string
}

// Unit is an instantiated audio unit. Its parameter side satisfies param.Target so a
// param.Controller can drive it directly.
type Unit interface {
	Node
	param.Target

	Description() Description
	// SetUp allocates render resources for the given format.
	SetUp(spec AudioSpec) error
	// TearDown releases render resources. The unit keeps its parameter values.
	TearDown()
	// Value returns the value the render side currently uses for a parameter.
	Value(addr uint64) (float64, bool)

	SetBypass(bypass bool)
	Bypassed() bool
}

// Engine owns the render graph. Each input bus of a node holds at most one source;
// connecting to an occupied bus replaces the previous source.
type Engine interface {
	ID() string
	Spec() AudioSpec

	Attach(n Node) error
	Detach(n Node) error
	IsAttached(n Node) bool

	Connect(src, dst Node, toBus int) error
	DisconnectNodeInput(dst Node, bus int) error
	DisconnectNodeOutput(src Node) error
	// Inputs returns bus -> source for dst.
	Inputs(dst Node) map[int]Node

	// OutputNode is the hardware output. It is attached for the lifetime of the engine.
	OutputNode() Node
	// NewMixer creates a mixer unit that can be attached to this engine.
	NewMixer(name string) (Unit, error)

	Start() error
	Stop()
	IsRunning() bool

	SetOutputDevice(id string) error
	OutputDevice() string
}
