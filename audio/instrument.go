package audio

import (
	"fmt"
	"strings"
)

// ShortRead decides what happens when a note window runs past the end of the
// reference recording.
type ShortRead int

const (
	// Truncate keeps the short read as-is, yielding a shorter clip.
	Truncate ShortRead = iota
	// PadSilence fills the missing frames with zeros.
	PadSilence
)

func (s ShortRead) String() string {
	if s == PadSilence {
		return "pad"
	}
	return "truncate"
}

// ParseShortRead accepts "truncate" (default when empty) or "pad".
func ParseShortRead(s string) (ShortRead, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate":
		return Truncate, nil
	case "pad", "silence":
		return PadSilence, nil
	default:
		return Truncate, fmt.Errorf("unknown short read mode %q", s)
	}
}

// RenderInstrument slices a reference scale recording into a sequence clip.
//
// The scale holds note k (1-based) in the ClipSamples-long window starting at
// (k-1)*ClipSamples. Digit i of sequence plays note sequence[i] for the i-th
// duration given by rhythm.
func RenderInstrument(scale Clip, sequence []int, rhythm Rhythm, mode ShortRead) Clip {
	durations := noteDurations(rhythm, len(sequence))
	out := make(Clip, 0, Sum(durations))
	for i, digit := range sequence {
		want := durations[i]
		if want <= 0 {
			continue
		}
		start := (digit - 1) * ClipSamples
		end := start + want
		if start < 0 {
			start, end = 0, 0
		}
		if start > len(scale) {
			start = len(scale)
		}
		if end > len(scale) {
			end = len(scale)
		}
		out = append(out, scale[start:end]...)
		if got := end - start; got < want && mode == PadSilence {
			out = append(out, make(Clip, want-got)...)
		}
	}
	return out
}
