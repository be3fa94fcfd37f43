package testutil

import (
	"testing"

	"github.com/shaban/audiograph/engine/analyze"
	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
)

// SmallSpec returns a default AudioSpec tuned for faster tests.
func SmallSpec() host.AudioSpec {
	s := host.DefaultAudioSpec()
	if s.BufferSize > 256 {
		s.BufferSize = 256
	}
	return s
}

// Mute sets a mixer unit's volume to 0.
func Mute(t *testing.T, mixer host.Unit) {
	t.Helper()
	if mixer == nil {
		t.Fatalf("mixer is nil")
	}
	if err := mixer.SetImmediately(host.MixerVolume, 0); err != nil {
		t.Fatalf("mute %s: %v", mixer.Name(), err)
	}
}

// RMS returns the root mean square of buf.
func RMS(buf []float64) float64 {
	return analyze.Measure(buf).RMS
}

// AssertRMSAbove renders up to slices buffers and fails unless one of them
// exceeds minRMS.
func AssertRMSAbove(t *testing.T, eng *soft.Engine, slices int, minRMS float64) {
	t.Helper()
	if eng == nil {
		t.Fatalf("engine is nil")
	}
	best := 0.0
	for i := 0; i < slices; i++ {
		if r := RMS(eng.Render(eng.Spec().BufferSize)); r > best {
			best = r
			if r >= minRMS {
				return
			}
		}
	}
	t.Fatalf("signal below threshold: wanted >= %.6f within %d slices, best %.6f", minRMS, slices, best)
}
