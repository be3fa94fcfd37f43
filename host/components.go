package host

import "github.com/shaban/audiograph/param"

// Well-known components. Parameter addresses equal their index in the tables below.
var (
	ZitaReverb      = Description{Type: "aufx", Subtype: "zita", Manufacturer: "AuKt"}
	Distortion      = Description{Type: "aufx", Subtype: "dist", Manufacturer: "appl"}
	Tremolo         = Description{Type: "aufx", Subtype: "trem", Manufacturer: "AuKt"}
	FluteInstrument = Description{Type: "aumu", Subtype: "flut", Manufacturer: "AuKt"}
	Mixer           = Description{Type: "aumx", Subtype: "mcmx", Manufacturer: "appl"}
)

// Zita reverb parameter addresses.
const (
	ZitaPredelay uint64 = iota
	ZitaCrossoverFrequency
	ZitaLowReleaseTime
	ZitaMidReleaseTime
	ZitaDampingFrequency
	ZitaEqualizerFrequency1
	ZitaEqualizerLevel1
	ZitaEqualizerFrequency2
	ZitaEqualizerLevel2
	ZitaDryWetMix
)

// ZitaReverbParameters describes the feedback delay network reverb with two peaking equalizer sections.
var ZitaReverbParameters = []param.Parameter{
	{Name: "predelay", DisplayName: "Delay in ms before reverberation begins", Address: ZitaPredelay, MinValue: 0, MaxValue: 200, DefaultValue: 60, Unit: "ms"},
	{Name: "crossoverFrequency", DisplayName: "Crossover frequency separating low and middle frequencies", Address: ZitaCrossoverFrequency, MinValue: 10, MaxValue: 1000, DefaultValue: 200, Unit: "Hz", CanRamp: true},
	{Name: "lowReleaseTime", DisplayName: "Time to decay 60 dB in low-frequency band", Address: ZitaLowReleaseTime, MinValue: 1, MaxValue: 8, DefaultValue: 3, Unit: "s", CanRamp: true},
	{Name: "midReleaseTime", DisplayName: "Time to decay 60 dB in mid-frequency band", Address: ZitaMidReleaseTime, MinValue: 1, MaxValue: 8, DefaultValue: 2, Unit: "s", CanRamp: true},
	{Name: "dampingFrequency", DisplayName: "Frequency at which the mid release time is halved", Address: ZitaDampingFrequency, MinValue: 1500, MaxValue: 24000, DefaultValue: 6000, Unit: "Hz", CanRamp: true},
	{Name: "equalizerFrequency1", DisplayName: "Center frequency of second-order Regalia Mitra peaking equalizer section 1", Address: ZitaEqualizerFrequency1, MinValue: 40, MaxValue: 2500, DefaultValue: 315, Unit: "Hz", CanRamp: true},
	{Name: "equalizerLevel1", DisplayName: "Peak level in dB of second-order Regalia-Mitra peaking equalizer section 1", Address: ZitaEqualizerLevel1, MinValue: -15, MaxValue: 15, DefaultValue: 0, Unit: "dB", CanRamp: true},
	{Name: "equalizerFrequency2", DisplayName: "Center frequency of second-order Regalia Mitra peaking equalizer section 2", Address: ZitaEqualizerFrequency2, MinValue: 160, MaxValue: 10000, DefaultValue: 1500, Unit: "Hz", CanRamp: true},
	{Name: "equalizerLevel2", DisplayName: "Peak level in dB of second-order Regalia-Mitra peaking equalizer section 2", Address: ZitaEqualizerLevel2, MinValue: -15, MaxValue: 15, DefaultValue: 0, Unit: "dB", CanRamp: true},
	{Name: "dryWetMix", DisplayName: "0 = all dry, 1 = all wet", Address: ZitaDryWetMix, MinValue: 0, MaxValue: 1, DefaultValue: 1, CanRamp: true},
}

// Distortion parameter addresses.
const (
	DistortionSoftClipGain uint64 = iota
	DistortionFinalMix
)

var DistortionParameters = []param.Parameter{
	{Name: "softClipGain", DisplayName: "Soft Clip Gain", Address: DistortionSoftClipGain, MinValue: -80, MaxValue: 20, DefaultValue: -6, Unit: "dB", CanRamp: true},
	{Name: "finalMix", DisplayName: "Final Mix", Address: DistortionFinalMix, MinValue: 0, MaxValue: 100, DefaultValue: 50, Unit: "%", CanRamp: true},
}

// Tremolo parameter addresses.
const (
	TremoloFrequency uint64 = iota
	TremoloDepth
)

var TremoloParameters = []param.Parameter{
	{Name: "frequency", DisplayName: "Frequency (Hz)", Address: TremoloFrequency, MinValue: 0, MaxValue: 100, DefaultValue: 10, Unit: "Hz", CanRamp: true},
	{Name: "depth", DisplayName: "Depth", Address: TremoloDepth, MinValue: 0, MaxValue: 1, DefaultValue: 1, CanRamp: true},
}

// Flute parameter addresses.
const (
	FluteFrequency uint64 = iota
	FluteAmplitude
)

var FluteParameters = []param.Parameter{
	{Name: "frequency", DisplayName: "Frequency", Address: FluteFrequency, MinValue: 0, MaxValue: 22000, DefaultValue: 440, Unit: "Hz", CanRamp: true},
	{Name: "amplitude", DisplayName: "Amplitude", Address: FluteAmplitude, MinValue: 0, MaxValue: 10, DefaultValue: 0.5, CanRamp: true},
}

// Mixer parameter addresses.
const (
	MixerVolume uint64 = iota
)

var MixerParameters = []param.Parameter{
	{Name: "volume", DisplayName: "Volume", Address: MixerVolume, MinValue: 0, MaxValue: 10, DefaultValue: 1, CanRamp: true},
}

var componentNames = map[Description]string{
	ZitaReverb:      "Zita Reverb",
	Distortion:      "Distortion",
	Tremolo:         "Tremolo",
	FluteInstrument: "Flute",
	Mixer:           "Mixer",
}

// ComponentName returns the display name of a well-known component, or the
// description string for anything else.
func ComponentName(d Description) string {
	if name, ok := componentNames[d]; ok {
		return name
	}
	return d.String()
}

// Category groups components by type.
func (d Description) Category() string {
	switch d.Type {
	case "aufx":
		return "Effect"
	case "aumu":
		return "Instrument"
	case "aumx":
		return "Mixer"
	case "augn":
		return "Generator"
	}
	return "Other"
}
