package soft

import (
	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/param"
)

// DefaultRegistry returns a registry with every built-in software unit.
func DefaultRegistry() *host.Registry {
	r := host.NewRegistry()
	Register(r)
	return r
}

// Register adds the built-in software units to r.
func Register(r *host.Registry, opts ...UnitOption) {
	add := func(d host.Description, params []param.Parameter, newKernel func() Kernel) {
		r.Register(d, func(name string) (host.Unit, error) {
			return NewUnit(name, d, params, newKernel(), opts...)
		})
	}
	add(host.ZitaReverb, host.ZitaReverbParameters, func() Kernel { return newZitaKernel() })
	add(host.Distortion, host.DistortionParameters, func() Kernel { return newDistortionKernel() })
	add(host.Tremolo, host.TremoloParameters, func() Kernel { return newTremoloKernel() })
	add(host.FluteInstrument, host.FluteParameters, func() Kernel { return newFluteKernel() })
	add(host.Mixer, host.MixerParameters, func() Kernel { return newMixerKernel() })
}
