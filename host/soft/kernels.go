package soft

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/effects/modulation"
	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/param"
)

const (
	butterworthQ = 1 / math.Sqrt2
	maxShelfDB   = 12.0
)

func tableDefaults(params []param.Parameter) []float64 {
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.DefaultValue
	}
	return out
}

// zitaKernel is a feedback delay network reverb followed by a low shelf that
// approximates the separate low band release time and two peaking equalizers.
type zitaKernel struct {
	sampleRate float64
	v          []float64

	fdn      *reverb.FDNReverb
	lowShelf *biquad.Section
	eq1      *biquad.Section
	eq2      *biquad.Section
}

func newZitaKernel() *zitaKernel {
	return &zitaKernel{v: tableDefaults(host.ZitaReverbParameters)}
}

func (k *zitaKernel) Init(sampleRate float64) error {
	fdn, err := reverb.NewFDNReverb(sampleRate)
	if err != nil {
		return err
	}
	// dry/wet balance is applied by the kernel
	if err := fdn.SetDry(0); err != nil {
		return err
	}
	if err := fdn.SetWet(1); err != nil {
		return err
	}
	k.sampleRate = sampleRate
	k.fdn = fdn
	k.lowShelf = biquad.NewSection(biquad.Coefficients{B0: 1})
	k.eq1 = biquad.NewSection(biquad.Coefficients{B0: 1})
	k.eq2 = biquad.NewSection(biquad.Coefficients{B0: 1})
	for i := range k.v {
		k.Set(i, k.v[i])
	}
	return nil
}

func (k *zitaKernel) Set(slot int, value float64) {
	k.v[slot] = value
	if k.fdn == nil {
		return
	}
	switch uint64(slot) {
	case host.ZitaPredelay:
		// sub-sample changes would only reallocate the predelay line
		if math.Abs(value/1000-k.fdn.PreDelay())*k.sampleRate >= 1 {
			_ = k.fdn.SetPreDelay(value / 1000)
		}
	case host.ZitaMidReleaseTime:
		_ = k.fdn.SetRT60(value)
		k.updateLowShelf()
	case host.ZitaCrossoverFrequency, host.ZitaLowReleaseTime:
		k.updateLowShelf()
	case host.ZitaDampingFrequency:
		_ = k.fdn.SetDamp(dampFromFrequency(value))
	case host.ZitaEqualizerFrequency1, host.ZitaEqualizerLevel1:
		k.eq1.Coefficients = design.Peak(k.v[host.ZitaEqualizerFrequency1], k.v[host.ZitaEqualizerLevel1], butterworthQ, k.sampleRate)
	case host.ZitaEqualizerFrequency2, host.ZitaEqualizerLevel2:
		k.eq2.Coefficients = design.Peak(k.v[host.ZitaEqualizerFrequency2], k.v[host.ZitaEqualizerLevel2], butterworthQ, k.sampleRate)
	}
}

func (k *zitaKernel) updateLowShelf() {
	low, mid := k.v[host.ZitaLowReleaseTime], k.v[host.ZitaMidReleaseTime]
	gain := 0.0
	if low > 0 && mid > 0 {
		gain = 20 * math.Log10(low/mid)
	}
	gain = math.Max(-maxShelfDB, math.Min(maxShelfDB, gain))
	k.lowShelf.Coefficients = design.LowShelf(k.v[host.ZitaCrossoverFrequency], gain, butterworthQ, k.sampleRate)
}

// dampFromFrequency maps the damping corner onto the FDN's [0,1] damping amount.
func dampFromFrequency(hz float64) float64 {
	lo, hi := 1500.0, 24000.0
	d := 1 - (hz-lo)/(hi-lo)
	return math.Max(0, math.Min(0.95, d))
}

func (k *zitaKernel) Process(x float64) float64 {
	wet := k.fdn.ProcessSample(x)
	wet = k.lowShelf.ProcessSample(wet)
	wet = k.eq1.ProcessSample(wet)
	wet = k.eq2.ProcessSample(wet)
	mix := k.v[host.ZitaDryWetMix]
	return x*(1-mix) + wet*mix
}

func (k *zitaKernel) Reset() {
	if k.fdn == nil {
		return
	}
	k.fdn.Reset()
	k.lowShelf.Reset()
	k.eq1.Reset()
	k.eq2.Reset()
}

// distortionKernel is a soft clipper with dry/wet mix.
type distortionKernel struct {
	v  []float64
	fx *effects.Distortion
}

func newDistortionKernel() *distortionKernel {
	return &distortionKernel{v: tableDefaults(host.DistortionParameters)}
}

func (k *distortionKernel) Init(sampleRate float64) error {
	fx, err := effects.NewDistortion(sampleRate, effects.WithDistortionMode(effects.DistortionModeSoftClip))
	if err != nil {
		return err
	}
	k.fx = fx
	for i := range k.v {
		k.Set(i, k.v[i])
	}
	return nil
}

func (k *distortionKernel) Set(slot int, value float64) {
	k.v[slot] = value
	if k.fx == nil {
		return
	}
	switch uint64(slot) {
	case host.DistortionSoftClipGain:
		drive := math.Pow(10, value/20)
		_ = k.fx.SetDrive(math.Max(0.01, math.Min(20, drive)))
	case host.DistortionFinalMix:
		_ = k.fx.SetMix(math.Max(0, math.Min(1, value/100)))
	}
}

func (k *distortionKernel) Process(x float64) float64 { return k.fx.ProcessSample(x) }

func (k *distortionKernel) Reset() {
	if k.fx != nil {
		k.fx.Reset()
	}
}

// tremoloKernel modulates amplitude with a sine LFO.
type tremoloKernel struct {
	v  []float64
	fx *modulation.Tremolo
}

const minTremoloRate = 0.001

func newTremoloKernel() *tremoloKernel {
	return &tremoloKernel{v: tableDefaults(host.TremoloParameters)}
}

func (k *tremoloKernel) Init(sampleRate float64) error {
	fx, err := modulation.NewTremolo(sampleRate, modulation.WithTremoloMix(1))
	if err != nil {
		return err
	}
	k.fx = fx
	for i := range k.v {
		k.Set(i, k.v[i])
	}
	return nil
}

func (k *tremoloKernel) Set(slot int, value float64) {
	k.v[slot] = value
	if k.fx == nil {
		return
	}
	switch uint64(slot) {
	case host.TremoloFrequency:
		_ = k.fx.SetRateHz(math.Max(minTremoloRate, value))
	case host.TremoloDepth:
		_ = k.fx.SetDepth(math.Max(0, math.Min(1, value)))
	}
}

func (k *tremoloKernel) Process(x float64) float64 { return k.fx.ProcessSample(x) }

func (k *tremoloKernel) Reset() {
	if k.fx != nil {
		k.fx.Reset()
	}
}

// mixerKernel applies the output volume. Inputs are summed by the engine.
type mixerKernel struct {
	volume float64
}

func newMixerKernel() *mixerKernel {
	return &mixerKernel{volume: host.MixerParameters[host.MixerVolume].DefaultValue}
}

func (k *mixerKernel) Init(float64) error { return nil }

func (k *mixerKernel) Set(slot int, value float64) {
	if uint64(slot) == host.MixerVolume {
		k.volume = value
	}
}

func (k *mixerKernel) Process(x float64) float64 { return x * k.volume }
func (k *mixerKernel) Reset()                    {}

// fluteKernel is a sine excitation with breath noise feeding a single delay line
// bore tuned to the played pitch.
type fluteKernel struct {
	sampleRate float64
	v          []float64

	bore  *delay.Line
	phase float64
	freq  float64

	env      float64
	gate     float64
	velocity float64
	envCoef  float64
	breath   float64
	noise    uint32
	note     int
}

const (
	fluteMinFrequency = 20.0
	fluteBoreFeedback = 0.35
	fluteEnvelopeTime = 0.02
	fluteBreathNoise  = 0.05
)

func newFluteKernel() *fluteKernel {
	k := &fluteKernel{
		v:        tableDefaults(host.FluteParameters),
		velocity: 1,
		noise:    22222,
		note:     -1,
	}
	k.freq = k.v[host.FluteFrequency]
	return k
}

func (k *fluteKernel) Init(sampleRate float64) error {
	line, err := delay.New(int(sampleRate/fluteMinFrequency) + 2)
	if err != nil {
		return err
	}
	k.sampleRate = sampleRate
	k.bore = line
	k.envCoef = 1 - math.Exp(-1/(fluteEnvelopeTime*sampleRate))
	return nil
}

func (k *fluteKernel) Set(slot int, value float64) {
	k.v[slot] = value
	if uint64(slot) == host.FluteFrequency {
		k.freq = value
	}
}

func (k *fluteKernel) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventTrigger:
		if ev.Frequency > 0 {
			k.freq = ev.Frequency
		}
		k.velocity = 1
		k.gate = 1
	case EventNoteOn:
		if ev.Velocity == 0 {
			k.noteOff(int(ev.Note))
			return
		}
		k.note = int(ev.Note)
		k.freq = NoteFrequency(ev.Note)
		k.velocity = float64(ev.Velocity) / 127
		k.gate = 1
	case EventNoteOff:
		k.noteOff(int(ev.Note))
	case EventRelease:
		k.gate = 0
		k.note = -1
	case EventControl:
		k.breath = math.Max(0, math.Min(1, ev.Value/127))
	}
}

func (k *fluteKernel) noteOff(note int) {
	if note == k.note || k.note < 0 {
		k.gate = 0
		k.note = -1
	}
}

func (k *fluteKernel) Process(float64) float64 {
	k.env += (k.gate - k.env) * k.envCoef

	freq := math.Max(fluteMinFrequency, k.freq)
	osc := math.Sin(2 * math.Pi * k.phase)
	k.phase += freq / k.sampleRate
	if k.phase >= 1 {
		k.phase -= math.Floor(k.phase)
	}

	k.noise = k.noise*1664525 + 1013904223
	n := (float64(k.noise)/math.MaxUint32*2 - 1) * fluteBreathNoise * (0.2 + k.breath)

	excitation := (osc + n) * k.v[host.FluteAmplitude] * k.velocity * k.env

	period := int(k.sampleRate / freq)
	if period < 1 {
		period = 1
	}
	if period >= k.bore.Len() {
		period = k.bore.Len() - 1
	}
	y := excitation + fluteBoreFeedback*k.bore.Read(period)
	k.bore.Write(y)
	return y
}

func (k *fluteKernel) Reset() {
	if k.bore != nil {
		k.bore.Reset()
	}
	k.phase = 0
	k.env = 0
	k.gate = 0
	k.note = -1
}

// NoteFrequency converts a MIDI note number to Hz with A4 = 440.
func NoteFrequency(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}
