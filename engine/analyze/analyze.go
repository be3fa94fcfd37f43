// Package analyze measures rendered audio: levels of a buffer or a stream of
// slices, and comparisons between the input and output of a signal path or
// node chain.
package analyze

import (
	"errors"
	"fmt"
	"math"

	timestats "github.com/cwbudde/algo-dsp/stats/time"
)

// Levels summarizes a block of samples.
type Levels struct {
	Frames        int
	RMS           float64
	Peak          float64
	RMSdB         float64 // -Inf for silence
	PeakdB        float64 // -Inf for silence
	DC            float64
	CrestFactor   float64
	ZeroCrossings int
}

func levelsFrom(s timestats.Stats) Levels {
	return Levels{
		Frames:        s.Length,
		RMS:           s.RMS,
		Peak:          s.Peak,
		RMSdB:         s.RMS_dB,
		PeakdB:        s.Peak_dB,
		DC:            s.DC,
		CrestFactor:   s.CrestFactor,
		ZeroCrossings: s.ZeroCrossings,
	}
}

// Measure returns the levels of buf.
func Measure(buf []float64) Levels {
	return levelsFrom(timestats.Calculate(buf))
}

// Frequency estimates the fundamental from zero crossings. It is only
// meaningful for signals dominated by one periodic component.
func (l Levels) Frequency(sampleRate float64) float64 {
	if l.Frames == 0 || sampleRate <= 0 {
		return 0
	}
	seconds := float64(l.Frames) / sampleRate
	return float64(l.ZeroCrossings) / 2 / seconds
}

// Meter accumulates levels over consecutive slices.
type Meter struct {
	stats *timestats.StreamingStats
}

func NewMeter() *Meter {
	return &Meter{stats: timestats.NewStreamingStats()}
}

// Update adds a rendered slice.
func (m *Meter) Update(buf []float64) { m.stats.Update(buf) }

// Levels returns the levels of everything seen since the last Reset.
func (m *Meter) Levels() Levels { return levelsFrom(m.stats.Result()) }

func (m *Meter) Reset() { m.stats.Reset() }

// RenderFunc renders the next frames of a signal.
type RenderFunc func(frames int) ([]float64, error)

// Capture renders total frames in slices of at most slice frames and returns
// them concatenated.
func Capture(render RenderFunc, total, slice int) ([]float64, error) {
	if slice <= 0 {
		return nil, fmt.Errorf("invalid slice size %d", slice)
	}
	out := make([]float64, 0, max(total, 0))
	for len(out) < total {
		buf, err := render(min(slice, total-len(out)))
		if err != nil {
			return out, err
		}
		if len(buf) == 0 {
			return out, errors.New("render returned no frames")
		}
		out = append(out, buf...)
	}
	return out, nil
}

// AnalysisConfig holds detection thresholds.
type AnalysisConfig struct {
	MinSignalLevel float64 // Minimum RMS to consider as signal
	ToleranceDB    float64 // Tolerance for level comparisons (dB)
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MinSignalLevel: 0.001, // -60dB
		ToleranceDB:    1.0,
	}
}

// PathAnalysis compares the signal entering and leaving a path.
type PathAnalysis struct {
	InputDetected  bool
	OutputDetected bool
	InputRMS       float64
	OutputRMS      float64
	GainChange     float64 // dB, 0 unless both sides carry signal
	FramesIn       int
	FramesOut      int
}

// ComparePath measures in and out and reports how the path changed the level.
func ComparePath(in, out []float64, config AnalysisConfig) PathAnalysis {
	li, lo := Measure(in), Measure(out)
	a := PathAnalysis{
		InputDetected:  li.RMS >= config.MinSignalLevel,
		OutputDetected: lo.RMS >= config.MinSignalLevel,
		InputRMS:       li.RMS,
		OutputRMS:      lo.RMS,
		FramesIn:       li.Frames,
		FramesOut:      lo.Frames,
	}
	if li.RMS > 0 && lo.RMS > 0 {
		a.GainChange = 20 * math.Log10(lo.RMS/li.RMS)
	}
	return a
}

// ChainAnalysis describes what a chain of nodes did to its input.
type ChainAnalysis struct {
	PathAnalysis
	IsProcessing bool    // Output differs from input
	Difference   float64 // RMS of out - in
}

// AnalyzeChain compares a chain's output with its input sample by sample.
func AnalyzeChain(in, out []float64, config AnalysisConfig) ChainAnalysis {
	n := min(len(in), len(out))
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = out[i] - in[i]
	}
	d := timestats.RMS(diff)
	return ChainAnalysis{
		PathAnalysis: ComparePath(in, out, config),
		IsProcessing: d >= config.MinSignalLevel,
		Difference:   d,
	}
}

// ValidatePathAnalysis checks if a path analysis meets expectations
func ValidatePathAnalysis(analysis PathAnalysis, expectSignal bool) error {
	if expectSignal {
		if !analysis.InputDetected {
			return fmt.Errorf("expected signal at input but none detected (RMS: %.6f)", analysis.InputRMS)
		}
		if !analysis.OutputDetected {
			return fmt.Errorf("expected signal at output but none detected (RMS: %.6f)", analysis.OutputRMS)
		}
		return nil
	}
	if analysis.OutputDetected {
		return fmt.Errorf("expected no signal at output but detected (RMS: %.6f)", analysis.OutputRMS)
	}
	return nil
}

// ValidateGain checks the path's gain change against want within the
// configured tolerance.
func ValidateGain(analysis PathAnalysis, wantDB float64, config AnalysisConfig) error {
	if !analysis.InputDetected || !analysis.OutputDetected {
		return fmt.Errorf("gain undefined without signal on both sides (in %.6f, out %.6f)",
			analysis.InputRMS, analysis.OutputRMS)
	}
	if diff := math.Abs(analysis.GainChange - wantDB); diff > config.ToleranceDB {
		return fmt.Errorf("gain change %.2f dB, expected %.2f dB (diff: %.2f)", analysis.GainChange, wantDB, diff)
	}
	return nil
}

// ValidateChainAnalysis checks whether a chain altered its input.
func ValidateChainAnalysis(analysis ChainAnalysis, expectProcessing bool) error {
	if expectProcessing {
		if !analysis.OutputDetected {
			return fmt.Errorf("expected output from chain but got none (RMS: %.6f)", analysis.OutputRMS)
		}
		if !analysis.IsProcessing {
			return fmt.Errorf("expected chain to alter its input, difference %.6f", analysis.Difference)
		}
		return nil
	}
	if analysis.IsProcessing {
		return fmt.Errorf("expected chain to pass input through, difference %.6f", analysis.Difference)
	}
	return nil
}
