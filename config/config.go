// Package config loads audiograph settings.
//
// Priority: defaults, then the YAML file, then AUDIOGRAPH_* environment
// variables.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("audiograph.yaml").
//	    Load()
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/param"
	"github.com/shaban/audiograph/session"
)

// Config is the complete audiograph configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio" env:"AUDIO"`
	Devices DevicesConfig `yaml:"devices" env:"DEVICES"`
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// AudioConfig holds the session audio preferences.
type AudioConfig struct {
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// BufferSize in frames. Zero derives it from LatencyHint.
	BufferSize   int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	LatencyHint  string        `yaml:"latency_hint" env:"LATENCY_HINT"`
	ChannelCount int           `yaml:"channel_count" env:"CHANNEL_COUNT"`
	RampDuration time.Duration `yaml:"ramp_duration" env:"RAMP_DURATION"`
}

// DevicesConfig selects the device backend and the preferred devices.
type DevicesConfig struct {
	// Backend is "auto", "alsa" or "static".
	Backend         string        `yaml:"backend" env:"BACKEND"`
	PreferredInput  string        `yaml:"preferred_input" env:"PREFERRED_INPUT"`
	PreferredOutput string        `yaml:"preferred_output" env:"PREFERRED_OUTPUT"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	Static          StaticDevices `yaml:"static" env:"-"`
}

// StaticDevices lists the devices of the static backend.
type StaticDevices struct {
	Inputs  []StaticDevice `yaml:"inputs"`
	Outputs []StaticDevice `yaml:"outputs"`
}

type StaticDevice struct {
	Name     string `yaml:"name"`
	UID      string `yaml:"uid"`
	Channels int    `yaml:"channels"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:   session.DefaultAudioSpec.PreferredSampleRate,
			LatencyHint:  string(session.LatencyMedium),
			ChannelCount: session.DefaultAudioSpec.ChannelCount,
			RampDuration: param.DefaultRampDuration,
		},
		Devices: DevicesConfig{
			Backend:      "auto",
			PollInterval: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "audiograph",
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []string

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, "audio.sample_rate must be positive")
	}
	if c.Audio.BufferSize < 0 {
		errs = append(errs, "audio.buffer_size must not be negative")
	}
	if _, ok := session.ParseLatencyClass(c.Audio.LatencyHint); !ok {
		errs = append(errs, fmt.Sprintf("audio.latency_hint %q is not low, medium or high", c.Audio.LatencyHint))
	}
	if c.Audio.ChannelCount <= 0 {
		errs = append(errs, "audio.channel_count must be positive")
	}
	if c.Audio.RampDuration < 0 {
		errs = append(errs, "audio.ramp_duration must not be negative")
	}

	switch c.Devices.Backend {
	case "", "auto", "alsa", "static":
	default:
		errs = append(errs, fmt.Sprintf("devices.backend %q is unknown", c.Devices.Backend))
	}
	if c.Devices.PollInterval < 0 {
		errs = append(errs, "devices.poll_interval must not be negative")
	}
	for _, d := range append(append([]StaticDevice(nil), c.Devices.Static.Inputs...), c.Devices.Static.Outputs...) {
		if d.UID == "" {
			errs = append(errs, "devices.static entries need a uid")
			break
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, "metrics.namespace is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// SessionSpec converts the audio settings into session preferences.
func (c AudioConfig) SessionSpec() session.AudioSpec {
	hint, ok := session.ParseLatencyClass(c.LatencyHint)
	if !ok {
		hint = session.LatencyMedium
	}
	return session.AudioSpec{
		PreferredSampleRate: c.SampleRate,
		LatencyHint:         hint,
		ChannelCount:        c.ChannelCount,
		BitDepth:            session.DefaultAudioSpec.BitDepth,
		BufferSize:          c.BufferSize,
	}
}

// StaticList merges the configured static devices. A uid listed as input and
// output becomes one device usable in both directions. The first device of
// each direction is the default.
func (c DevicesConfig) StaticList() devices.AudioDevices {
	var out devices.AudioDevices
	pos := map[string]int{}
	add := func(d StaticDevice) *devices.AudioDevice {
		if i, ok := pos[d.UID]; ok {
			return &out[i]
		}
		name := d.Name
		if name == "" {
			name = d.UID
		}
		pos[d.UID] = len(out)
		out = append(out, devices.AudioDevice{
			Device:     devices.Device{Name: name, UID: d.UID, IsOnline: true},
			DeviceType: "virtual",
		})
		return &out[len(out)-1]
	}
	for i, d := range c.Static.Inputs {
		ad := add(d)
		ad.InputChannelCount = channels(d.Channels)
		ad.IsDefaultInput = i == 0
	}
	for i, d := range c.Static.Outputs {
		ad := add(d)
		ad.OutputChannelCount = channels(d.Channels)
		ad.IsDefaultOutput = i == 0
	}
	return out
}

func channels(n int) int {
	if n <= 0 {
		return 2
	}
	return n
}
