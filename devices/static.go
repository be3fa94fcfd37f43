package devices

import (
	"context"
	"sync"
)

// Static is a backend with a fixed device list. It serves hosts without a
// sound system and tests.
type Static struct {
	mu      sync.RWMutex
	devices AudioDevices
	reject  map[string]error
}

// NewStatic returns a backend listing devices.
func NewStatic(devices ...AudioDevice) *Static {
	return &Static{devices: append(AudioDevices(nil), devices...), reject: map[string]error{}}
}

// DefaultStatic lists a single stereo device usable in both directions.
func DefaultStatic() *Static {
	return NewStatic(AudioDevice{
		Device:               Device{Name: "Default", UID: "default", IsOnline: true},
		InputChannelCount:    2,
		OutputChannelCount:   2,
		IsDefaultInput:       true,
		IsDefaultOutput:      true,
		SupportedSampleRates: []int{44100, 48000, 96000},
		DeviceType:           "virtual",
	})
}

func (s *Static) Name() string { return "static" }

func (s *Static) Devices(context.Context) (AudioDevices, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(AudioDevices(nil), s.devices...), nil
}

// SetDevices replaces the device list.
func (s *Static) SetDevices(devices ...AudioDevice) {
	s.mu.Lock()
	s.devices = append(AudioDevices(nil), devices...)
	s.mu.Unlock()
}

// Reject makes Activate fail with err for uid. A nil err clears it.
func (s *Static) Reject(uid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.reject, uid)
		return
	}
	s.reject[uid] = err
}

func (s *Static) Activate(_ context.Context, _ Direction, d AudioDevice) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reject[d.UID]
}
