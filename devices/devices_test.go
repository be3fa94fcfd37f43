package devices

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testDevices() AudioDevices {
	return AudioDevices{
		{Device: Device{Name: "Built-in", UID: "builtin", IsOnline: true}, InputChannelCount: 2, OutputChannelCount: 2,
			SupportedSampleRates: []int{44100, 48000, 96000, 192000}, DeviceType: "builtin"},
		{Device: Device{Name: "Interface", UID: "usb-1", IsOnline: true}, OutputChannelCount: 8, IsDefaultOutput: true,
			SupportedSampleRates: []int{48000, 96000, 176400, 192000}, DeviceType: "usb"},
		{Device: Device{Name: "Mic", UID: "mic", IsOnline: false}, InputChannelCount: 1,
			SupportedSampleRates: []int{44100, 48000}, DeviceType: "usb"},
	}
}

type selectionRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *selectionRecorder) RecordDeviceSelection(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestAudioDevicesFilters(t *testing.T) {
	list := testDevices()
	assert.Len(t, list.Inputs(), 2)
	assert.Len(t, list.Outputs(), 2)
	assert.Len(t, list.Online(), 2)
	assert.Len(t, list.ByType("usb"), 2)
	assert.Nil(t, list.ByUID("nope"))
	assert.Equal(t, "Interface", list.ByUID("usb-1").Name)
	assert.True(t, list[0].IsInputOutput())
	assert.False(t, list[1].IsInputOutput())

	assert.Equal(t, "usb-1", list.DefaultOutput().UID)
	assert.Equal(t, "builtin", list.DefaultInput().UID, "falls back to the first input")
	assert.Nil(t, AudioDevices{}.DefaultOutput())
}

func TestCommonSampleRates(t *testing.T) {
	list := testDevices()
	tests := []struct {
		name string
		a, b int
		want []int
	}{
		{"builtin-usb", 0, 1, []int{48000, 96000, 192000}},
		{"builtin-mic", 0, 2, []int{44100, 48000}},
		{"usb-mic", 1, 2, []int{48000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, list[tt.a].CommonSampleRates(list[tt.b]))
		})
	}
	assert.Equal(t, []int{}, AudioDevice{}.CommonSampleRates(list[0]))
}

func TestManagerSelect(t *testing.T) {
	rec := &selectionRecorder{}
	m := NewManager(NewStatic(testDevices()...), nil, rec)
	ctx := context.Background()

	require.NoError(t, m.SetOutputDevice(ctx, "usb-1"))
	require.NoError(t, m.SetInputDevice(ctx, "builtin"))
	assert.Equal(t, "usb-1", m.OutputDevice())
	assert.Equal(t, "builtin", m.InputDevice())

	assert.Error(t, m.SetInputDevice(ctx, "usb-1"), "output-only device")
	assert.Equal(t, "builtin", m.InputDevice())
	assert.Equal(t, 2, rec.ok)
	assert.Equal(t, 1, rec.failed)
}

func TestManagerUnknownDeviceKeepsSelection(t *testing.T) {
	ids := []string{"builtin", "usb-1", "mic", "ghost", "", "hw:9,9"}
	rapid.Check(t, func(rt *rapid.T) {
		m := NewManager(NewStatic(testDevices()...), nil, nil)
		ctx := context.Background()
		steps := rapid.SliceOfN(rapid.SampledFrom(ids), 1, 20).Draw(rt, "ids")
		for _, uid := range steps {
			before := m.OutputDevice()
			err := m.SetOutputDevice(ctx, uid)
			if testDevices().Outputs().ByUID(uid) == nil {
				if err == nil {
					rt.Fatalf("selecting %q succeeded", uid)
				}
				if m.OutputDevice() != before {
					rt.Fatalf("selection changed from %q to %q", before, m.OutputDevice())
				}
				continue
			}
			if err != nil {
				rt.Fatalf("select %q: %v", uid, err)
			}
			if m.OutputDevice() != uid {
				rt.Fatalf("selection = %q, want %q", m.OutputDevice(), uid)
			}
		}
	})
}

func TestManagerBackendRejection(t *testing.T) {
	s := NewStatic(testDevices()...)
	m := NewManager(s, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.SetOutputDevice(ctx, "builtin"))

	busy := errors.New("device busy")
	s.Reject("usb-1", busy)
	err := m.SetOutputDevice(ctx, "usb-1")
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, "builtin", m.OutputDevice())

	s.Reject("usb-1", nil)
	require.NoError(t, m.SetOutputDevice(ctx, "usb-1"))
	assert.Equal(t, "usb-1", m.OutputDevice())
}

func TestManagerSelectDefaults(t *testing.T) {
	m := NewManager(NewStatic(testDevices()...), nil, nil)
	require.NoError(t, m.SelectDefaults(context.Background()))
	assert.Equal(t, "builtin", m.InputDevice())
	assert.Equal(t, "usb-1", m.OutputDevice())

	require.NoError(t, m.SetOutputDevice(context.Background(), "builtin"))
	require.NoError(t, m.SelectDefaults(context.Background()))
	assert.Equal(t, "builtin", m.OutputDevice(), "existing selection wins")
}

func TestManagerListing(t *testing.T) {
	m := NewManager(NewStatic(testDevices()...), nil, nil)
	ctx := context.Background()
	all, err := m.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	in, err := m.Inputs(ctx)
	require.NoError(t, err)
	assert.Len(t, in, 2)
	out, err := m.Outputs(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

const pcmTable = `00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1
00-01: ALC892 Digital : ALC892 Digital : playback 1
01-00: USB Audio : USB Audio : capture 1
`

func TestParsePCM(t *testing.T) {
	list, err := ParsePCM(strings.NewReader(pcmTable))
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "hw:0,0", list[0].UID)
	assert.Equal(t, "ALC892 Analog", list[0].Name)
	assert.True(t, list[0].IsInputOutput())
	assert.True(t, list[0].IsDefaultOutput)
	assert.True(t, list[0].IsDefaultInput)

	assert.Equal(t, "hw:0,1", list[1].UID)
	assert.False(t, list[1].CanInput())

	assert.Equal(t, "hw:1,0", list[2].UID)
	assert.Equal(t, "usb", list[2].DeviceType)
	assert.False(t, list[2].IsDefaultInput)
}

func TestParsePCMErrors(t *testing.T) {
	for _, in := range []string{"garbage", "0000: a : b", "x-0: a : b", "0-y: a : b"} {
		_, err := ParsePCM(strings.NewReader(in))
		assert.Error(t, err, in)
	}
	list, err := ParsePCM(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestALSAMissingTable(t *testing.T) {
	a := &ALSA{Path: t.TempDir() + "/pcm"}
	_, err := a.Devices(context.Background())
	assert.Error(t, err)

	m := NewManager(a, nil, nil)
	assert.Error(t, m.SetOutputDevice(context.Background(), "hw:0,0"))
	assert.Empty(t, m.OutputDevice())
}

func TestOpen(t *testing.T) {
	for _, name := range []string{"", "auto", "alsa", "static"} {
		b, err := Open(name, nil)
		require.NoError(t, err, name)
		assert.NotNil(t, b)
	}
	b, err := Open("static", testDevices())
	require.NoError(t, err)
	list, _ := b.Devices(context.Background())
	assert.Len(t, list, 3)

	_, err = Open("coreaudio", nil)
	assert.Error(t, err)
}
