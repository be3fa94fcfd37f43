// Package devices enumerates audio devices and tracks the preferred input and
// output device of a session.
package devices

import (
	"context"
	"errors"
)

// ErrDeviceNotFound is returned when a device id is not known to the backend.
var ErrDeviceNotFound = errors.New("device not found")

// Device represents the common properties of any device
type Device struct {
	Name     string `json:"name"`
	UID      string `json:"uid"`
	IsOnline bool   `json:"isOnline"`
}

// AudioDevice represents an audio device with its capabilities
type AudioDevice struct {
	Device
	InputChannelCount    int    `json:"inputChannelCount"`
	OutputChannelCount   int    `json:"outputChannelCount"`
	IsDefaultInput       bool   `json:"isDefaultInput"`
	IsDefaultOutput      bool   `json:"isDefaultOutput"`
	SupportedSampleRates []int  `json:"supportedSampleRates,omitempty"`
	DeviceType           string `json:"deviceType,omitempty"` // "builtin", "usb", "virtual"
}

func (a AudioDevice) CanInput() bool      { return a.InputChannelCount > 0 }
func (a AudioDevice) CanOutput() bool     { return a.OutputChannelCount > 0 }
func (a AudioDevice) IsInputOutput() bool { return a.CanInput() && a.CanOutput() }

// CommonSampleRates returns sample rates supported by both devices, in the
// order of a.
func (a AudioDevice) CommonSampleRates(other AudioDevice) []int {
	otherRates := make(map[int]bool, len(other.SupportedSampleRates))
	for _, rate := range other.SupportedSampleRates {
		otherRates[rate] = true
	}
	common := []int{}
	for _, rate := range a.SupportedSampleRates {
		if otherRates[rate] {
			common = append(common, rate)
		}
	}
	return common
}

// AudioDevices is a device list with filter methods.
type AudioDevices []AudioDevice

func (devices AudioDevices) filter(keep func(AudioDevice) bool) AudioDevices {
	var out AudioDevices
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Inputs returns only devices that can capture audio
func (devices AudioDevices) Inputs() AudioDevices {
	return devices.filter(AudioDevice.CanInput)
}

// Outputs returns only devices that can play audio
func (devices AudioDevices) Outputs() AudioDevices {
	return devices.filter(AudioDevice.CanOutput)
}

// Online returns only devices that are currently connected
func (devices AudioDevices) Online() AudioDevices {
	return devices.filter(func(d AudioDevice) bool { return d.IsOnline })
}

// ByType returns only devices of a specific type
func (devices AudioDevices) ByType(deviceType string) AudioDevices {
	return devices.filter(func(d AudioDevice) bool { return d.DeviceType == deviceType })
}

// ByUID returns the device with the given id, or nil.
func (devices AudioDevices) ByUID(uid string) *AudioDevice {
	for i := range devices {
		if devices[i].UID == uid {
			return &devices[i]
		}
	}
	return nil
}

// DefaultInput returns the system default input, falling back to the first input.
func (devices AudioDevices) DefaultInput() *AudioDevice {
	return devices.Inputs().preferred(func(d AudioDevice) bool { return d.IsDefaultInput })
}

// DefaultOutput returns the system default output, falling back to the first output.
func (devices AudioDevices) DefaultOutput() *AudioDevice {
	return devices.Outputs().preferred(func(d AudioDevice) bool { return d.IsDefaultOutput })
}

func (devices AudioDevices) preferred(isDefault func(AudioDevice) bool) *AudioDevice {
	if len(devices) == 0 {
		return nil
	}
	for i := range devices {
		if isDefault(devices[i]) {
			return &devices[i]
		}
	}
	return &devices[0]
}

// Direction tells input and output selection apart.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Backend enumerates the devices of one platform audio system.
type Backend interface {
	Name() string
	Devices(ctx context.Context) (AudioDevices, error)
}

// Activator is implemented by backends that must be told about a selection.
// A returned error rejects the selection.
type Activator interface {
	Activate(ctx context.Context, dir Direction, d AudioDevice) error
}
