package nodes

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
)

var (
	// ErrEventsUnsupported is returned when the unit behind an instrument cannot play notes.
	ErrEventsUnsupported = errors.New("unit does not accept note events")
	// ErrEventQueueFull is returned when the render thread has not consumed earlier events yet.
	ErrEventQueueFull = errors.New("event queue full")
)

type eventSender interface {
	Send(ev soft.Event) bool
}

// FluteInstrument is a physical model of a flute played by triggers or MIDI notes.
type FluteInstrument struct {
	*Node
	events eventSender
}

func NewFluteInstrument(name string, cfg Config) (*FluteInstrument, error) {
	n, err := New(host.FluteInstrument, name, host.FluteParameters, cfg)
	if err != nil {
		return nil, err
	}
	f := &FluteInstrument{Node: n}
	if s, ok := n.AudioUnit().(eventSender); ok {
		f.events = s
	}
	return f, nil
}

func (f *FluteInstrument) SetFrequency(hz float64) error { return f.Set("frequency", hz) }
func (f *FluteInstrument) SetAmplitude(a float64) error  { return f.Set("amplitude", a) }

// Trigger starts a note at the given frequency and amplitude.
func (f *FluteInstrument) Trigger(frequency, amplitude float64) error {
	if err := f.SetFrequency(frequency); err != nil {
		return err
	}
	if err := f.SetAmplitude(amplitude); err != nil {
		return err
	}
	return f.send(soft.Event{Kind: soft.EventTrigger, Frequency: frequency, Amplitude: amplitude})
}

// PlayNote starts a MIDI note. A zero velocity stops it.
func (f *FluteInstrument) PlayNote(note, velocity, channel uint8) error {
	if note > 127 || velocity > 127 {
		return fmt.Errorf("note %d velocity %d out of MIDI range", note, velocity)
	}
	return f.send(soft.Event{Kind: soft.EventNoteOn, Note: note, Velocity: velocity, Channel: channel})
}

// StopNote releases a MIDI note.
func (f *FluteInstrument) StopNote(note, channel uint8) error {
	return f.send(soft.Event{Kind: soft.EventNoteOff, Note: note, Channel: channel})
}

// ControlChange forwards a controller value. The flute uses it as breath pressure.
func (f *FluteInstrument) ControlChange(controller, value, channel uint8) error {
	return f.send(soft.Event{Kind: soft.EventControl, Note: controller, Value: float64(value), Channel: channel})
}

// HandleMIDI plays a raw MIDI message. Messages other than note and control
// changes are ignored.
func (f *FluteInstrument) HandleMIDI(msg midi.Message) error {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return f.PlayNote(key, vel, ch)
	case msg.GetNoteEnd(&ch, &key):
		return f.StopNote(key, ch)
	case msg.GetControlChange(&ch, &cc, &val):
		return f.ControlChange(cc, val, ch)
	}
	return nil
}

// Stop bypasses the instrument and releases any sounding note.
func (f *FluteInstrument) Stop() {
	f.Node.Stop()
	if f.events != nil {
		f.events.Send(soft.Event{Kind: soft.EventRelease})
	}
}

func (f *FluteInstrument) send(ev soft.Event) error {
	if f.events == nil {
		return ErrEventsUnsupported
	}
	if !f.events.Send(ev) {
		return fmt.Errorf("%s: %w", f.Name(), ErrEventQueueFull)
	}
	return nil
}
