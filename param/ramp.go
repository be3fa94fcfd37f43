package param

import (
	"math"
	"time"
)

// Ramp linearly interpolates a value towards a target. It is owned by the render thread.
type Ramp struct {
	current   float64
	target    float64
	step      float64
	remaining int
}

// Reset jumps to v and cancels any ramp in progress.
func (r *Ramp) Reset(v float64) {
	r.current = v
	r.target = v
	r.step = 0
	r.remaining = 0
}

// Start begins a ramp to target lasting frames samples. frames <= 0 jumps immediately.
func (r *Ramp) Start(target float64, frames int) {
	if frames <= 0 {
		r.Reset(target)
		return
	}
	r.target = target
	r.remaining = frames
	r.step = (target - r.current) / float64(frames)
}

// Next advances the ramp by one frame and returns the new value.
func (r *Ramp) Next() float64 {
	if r.remaining == 0 {
		return r.current
	}
	r.remaining--
	if r.remaining == 0 {
		r.current = r.target
	} else {
		r.current += r.step
	}
	return r.current
}

// Advance moves the ramp forward by n frames.
func (r *Ramp) Advance(n int) float64 {
	if n >= r.remaining {
		r.current = r.target
		r.remaining = 0
		return r.current
	}
	r.remaining -= n
	r.current += r.step * float64(n)
	return r.current
}

// Value returns the current value.
func (r *Ramp) Value() float64 { return r.current }

// Target returns the value the ramp is heading to.
func (r *Ramp) Target() float64 { return r.target }

// Active reports whether the ramp still has frames to go.
func (r *Ramp) Active() bool { return r.remaining > 0 }

// Remaining returns the number of frames left.
func (r *Ramp) Remaining() int { return r.remaining }

// Frames converts a ramp duration to a frame count at the given sample rate.
func Frames(d time.Duration, sampleRate float64) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * sampleRate))
}
