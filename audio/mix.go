package audio

import (
	"context"
	"math"
)

// MixStats describes what the limiter saw.
type MixStats struct {
	Sources int
	Peak    float64
	Gain    float64
}

// Limited reports whether the hard limiter scaled the mix down.
func (s MixStats) Limited() bool { return s.Gain < 1 }

// Mix averages clips into one ClipSamples-long clip with equal weight 1/N.
// Shorter clips are zero-extended, longer ones truncated. ctx is checked before
// each source is accumulated; a cancelled ctx aborts with ctx.Err().
func Mix(ctx context.Context, clips []Clip) (Clip, MixStats, error) {
	acc := make([]float64, ClipSamples)
	n := float64(len(clips))
	for _, c := range clips {
		if err := ctx.Err(); err != nil {
			return nil, MixStats{}, err
		}
		limit := min(len(c), ClipSamples)
		for t := 0; t < limit; t++ {
			acc[t] += float64(c[t]) / n
		}
	}

	peak, gain := Normalize(acc)
	out := make(Clip, ClipSamples)
	for t, v := range acc {
		out[t] = toSample(v)
	}
	return out, MixStats{Sources: len(clips), Peak: peak, Gain: gain}, nil
}

// Normalize rescales acc in place by MaxAmplitude/peak when the peak exceeds
// MaxAmplitude. It returns the peak before scaling and the gain applied.
func Normalize(acc []float64) (peak float64, gain float64) {
	gain = 1
	for _, v := range acc {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak <= MaxAmplitude {
		return peak, gain
	}
	gain = MaxAmplitude / peak
	for i := range acc {
		acc[i] *= gain
	}
	return peak, gain
}

func toSample(v float64) int16 {
	r := math.Round(v)
	if r > MaxAmplitude {
		return MaxAmplitude
	}
	if r < MinAmplitude {
		return MinAmplitude
	}
	return int16(r)
}
