package nodes

import (
	"fmt"

	"github.com/shaban/audiograph/host"
)

// ZitaReverb is an 8 delay line feedback network reverb with a two band
// release time and two peaking equalizer sections.
type ZitaReverb struct{ *Node }

func NewZitaReverb(name string, cfg Config) (*ZitaReverb, error) {
	n, err := New(host.ZitaReverb, name, host.ZitaReverbParameters, cfg)
	if err != nil {
		return nil, err
	}
	return &ZitaReverb{n}, nil
}

func (r *ZitaReverb) SetPredelay(ms float64) error           { return r.Set("predelay", ms) }
func (r *ZitaReverb) SetCrossoverFrequency(hz float64) error { return r.Set("crossoverFrequency", hz) }
func (r *ZitaReverb) SetLowReleaseTime(s float64) error      { return r.Set("lowReleaseTime", s) }
func (r *ZitaReverb) SetMidReleaseTime(s float64) error      { return r.Set("midReleaseTime", s) }
func (r *ZitaReverb) SetDampingFrequency(hz float64) error   { return r.Set("dampingFrequency", hz) }

// SetEqualizer sets center frequency and level of equalizer section 1 or 2.
func (r *ZitaReverb) SetEqualizer(section int, hz, db float64) error {
	var freq, level string
	switch section {
	case 1:
		freq, level = "equalizerFrequency1", "equalizerLevel1"
	case 2:
		freq, level = "equalizerFrequency2", "equalizerLevel2"
	default:
		return fmt.Errorf("equalizer section %d: want 1 or 2", section)
	}
	if err := r.Set(freq, hz); err != nil {
		return err
	}
	return r.Set(level, db)
}

// SetDryWetMix sets the balance between 0 (dry) and 1 (wet).
func (r *ZitaReverb) SetDryWetMix(mix float64) error { return r.Set("dryWetMix", mix) }

// Distortion is a soft clipper with a dry/wet mix in percent.
type Distortion struct{ *Node }

func NewDistortion(name string, cfg Config) (*Distortion, error) {
	n, err := New(host.Distortion, name, host.DistortionParameters, cfg)
	if err != nil {
		return nil, err
	}
	return &Distortion{n}, nil
}

func (d *Distortion) SetSoftClipGain(db float64) error  { return d.Set("softClipGain", db) }
func (d *Distortion) SetFinalMix(percent float64) error { return d.Set("finalMix", percent) }

// Tremolo modulates amplitude with a low frequency oscillator.
type Tremolo struct{ *Node }

func NewTremolo(name string, cfg Config) (*Tremolo, error) {
	n, err := New(host.Tremolo, name, host.TremoloParameters, cfg)
	if err != nil {
		return nil, err
	}
	return &Tremolo{n}, nil
}

func (t *Tremolo) SetFrequency(hz float64) error { return t.Set("frequency", hz) }
func (t *Tremolo) SetDepth(depth float64) error  { return t.Set("depth", depth) }

// Mixer sums any number of inputs and applies a volume.
type Mixer struct{ *Node }

func NewMixer(name string, cfg Config) (*Mixer, error) {
	n, err := New(host.Mixer, name, host.MixerParameters, cfg)
	if err != nil {
		return nil, err
	}
	return &Mixer{n}, nil
}

func (m *Mixer) SetVolume(v float64) error { return m.Set("volume", v) }

func (m *Mixer) Volume() float64 {
	v, _ := m.Value("volume")
	return v
}
