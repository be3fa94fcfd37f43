package spec

import (
	"github.com/shaban/audiograph/host"
	sess "github.com/shaban/audiograph/session"
)

// Resolve converts session-level AudioSpec preferences into a concrete
// engine AudioSpec. It applies sensible defaults when fields are unset and
// honors explicit BufferSize over LatencyHint.
func Resolve(s sess.AudioSpec) host.AudioSpec {
	eff := host.DefaultAudioSpec()

	if s.PreferredSampleRate > 0 {
		eff.SampleRate = s.PreferredSampleRate
	}

	// Map latency hint to default buffer size unless explicit BufferSize is set.
	if s.BufferSize > 0 {
		eff.BufferSize = s.BufferSize
	} else {
		eff.BufferSize = sess.MapLatencyToBuffer(s.LatencyHint)
	}

	if s.ChannelCount > 0 {
		eff.ChannelCount = s.ChannelCount
	}
	if s.BitDepth > 0 {
		eff.BitDepth = s.BitDepth
	}
	return eff
}
