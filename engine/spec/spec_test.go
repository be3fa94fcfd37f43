package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/shaban/audiograph/host"
	sess "github.com/shaban/audiograph/session"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   sess.AudioSpec
		want host.AudioSpec
	}{
		{
			name: "zero value takes engine defaults",
			in:   sess.AudioSpec{},
			want: host.AudioSpec{SampleRate: 48000, BufferSize: 512, BitDepth: 32, ChannelCount: 2},
		},
		{
			name: "low latency mono",
			in:   sess.AudioSpec{PreferredSampleRate: 96000, LatencyHint: sess.LatencyLow, ChannelCount: 1, BitDepth: 24},
			want: host.AudioSpec{SampleRate: 96000, BufferSize: 256, BitDepth: 24, ChannelCount: 1},
		},
		{
			name: "explicit buffer beats latency hint",
			in:   sess.AudioSpec{LatencyHint: sess.LatencyHigh, BufferSize: 384},
			want: host.AudioSpec{SampleRate: 48000, BufferSize: 384, BitDepth: 32, ChannelCount: 2},
		},
		{
			name: "unknown hint falls back to medium",
			in:   sess.AudioSpec{LatencyHint: "turbo"},
			want: host.AudioSpec{SampleRate: 48000, BufferSize: 512, BitDepth: 32, ChannelCount: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in))
		})
	}
}

func TestResolveAlwaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := sess.AudioSpec{
			PreferredSampleRate: rapid.Float64Range(-1, 192000).Draw(t, "rate"),
			BufferSize:          rapid.IntRange(-8, 4096).Draw(t, "buffer"),
			ChannelCount:        rapid.IntRange(-2, 8).Draw(t, "channels"),
			LatencyHint:         rapid.SampledFrom([]sess.LatencyClass{"", sess.LatencyLow, sess.LatencyMedium, sess.LatencyHigh}).Draw(t, "hint"),
		}
		if err := Resolve(in).Validate(); err != nil {
			t.Fatalf("resolved %+v invalid: %v", in, err)
		}
	})
}
