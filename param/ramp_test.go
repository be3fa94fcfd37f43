package param

import (
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestRampLinear(t *testing.T) {
	var r Ramp
	r.Reset(0)
	r.Start(1, 4)

	want := []float64{0.25, 0.5, 0.75, 1, 1}
	for i, w := range want {
		if got := r.Next(); math.Abs(got-w) > 1e-12 {
			t.Fatalf("frame %d: got %v want %v", i, got, w)
		}
	}
	if r.Active() {
		t.Fatal("ramp still active")
	}
}

func TestRampZeroFramesJumps(t *testing.T) {
	var r Ramp
	r.Reset(3)
	r.Start(5, 0)
	if r.Value() != 5 || r.Active() {
		t.Fatalf("got %v active=%v", r.Value(), r.Active())
	}
}

func TestRampAdvance(t *testing.T) {
	var r Ramp
	r.Reset(0)
	r.Start(10, 10)
	if got := r.Advance(3); math.Abs(got-3) > 1e-12 {
		t.Fatalf("after 3 frames: %v", got)
	}
	if r.Remaining() != 7 {
		t.Fatalf("remaining %d", r.Remaining())
	}
	if got := r.Advance(100); got != 10 {
		t.Fatalf("overshoot: %v", got)
	}
}

func TestRampRetargetMidway(t *testing.T) {
	var r Ramp
	r.Reset(0)
	r.Start(1, 10)
	r.Advance(5)
	r.Start(0, 5)
	r.Advance(5)
	if r.Value() != 0 || r.Target() != 0 {
		t.Fatalf("got %v target %v", r.Value(), r.Target())
	}
}

func TestRampEndsOnTarget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.Float64Range(-10, 10).Draw(rt, "from")
		to := rapid.Float64Range(-10, 10).Draw(rt, "to")
		frames := rapid.IntRange(0, 2048).Draw(rt, "frames")

		var r Ramp
		r.Reset(from)
		r.Start(to, frames)
		lo, hi := math.Min(from, to), math.Max(from, to)
		for i := 0; i < frames; i++ {
			v := r.Next()
			if v < lo-1e-9 || v > hi+1e-9 {
				rt.Fatalf("frame %d: %v outside [%v, %v]", i, v, lo, hi)
			}
		}
		if r.Value() != to {
			rt.Fatalf("ended at %v, want %v", r.Value(), to)
		}
	})
}

func TestFrames(t *testing.T) {
	tests := []struct {
		d    time.Duration
		sr   float64
		want int
	}{
		{20 * time.Millisecond, 48000, 960},
		{0, 48000, 0},
		{time.Second, 0, 0},
		{-time.Second, 44100, 0},
		{time.Second, 44100, 44100},
	}
	for _, tt := range tests {
		if got := Frames(tt.d, tt.sr); got != tt.want {
			t.Errorf("Frames(%v, %v) = %d, want %d", tt.d, tt.sr, got, tt.want)
		}
	}
}
