package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Instantiate(Description{Type: "aufx", Subtype: "none", Manufacturer: "test"}, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownUnit))
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	d := Description{Type: "aufx", Subtype: "fail", Manufacturer: "test"}
	boom := errors.New("boom")
	r.Register(d, func(string) (Unit, error) { return nil, boom })

	_, err := r.Instantiate(d, "x")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "aufx:fail:test")
}

func TestRegistryDescriptionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(Description{Type: "aumu", Subtype: "b"}, nil)
	r.Register(Description{Type: "aufx", Subtype: "z"}, nil)
	r.Register(Description{Type: "aufx", Subtype: "a"}, nil)

	got := r.Descriptions()
	require.Len(t, got, 3)
	assert.Equal(t, "aufx", got[0].Type)
	assert.Equal(t, "a", got[0].Subtype)
	assert.Equal(t, "aumu", got[2].Type)
}

func TestAudioSpecValidate(t *testing.T) {
	if err := DefaultAudioSpec().Validate(); err != nil {
		t.Fatalf("default spec invalid: %v", err)
	}
	bad := []AudioSpec{
		{SampleRate: 0, BufferSize: 512, ChannelCount: 2},
		{SampleRate: 48000, BufferSize: 0, ChannelCount: 2},
		{SampleRate: 48000, BufferSize: 512, ChannelCount: 0},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestComponentNames(t *testing.T) {
	assert.Equal(t, "Zita Reverb", ComponentName(ZitaReverb))
	assert.Equal(t, "Instrument", FluteInstrument.Category())
	assert.Equal(t, "Mixer", Mixer.Category())

	other := Description{Type: "aufc", Subtype: "conv", Manufacturer: "test"}
	assert.Equal(t, "aufc:conv:test", ComponentName(other))
	assert.Equal(t, "Other", other.Category())
}
