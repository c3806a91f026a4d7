package audio

// Rhythm turns the number of digits in an instrument sequence into segment
// lengths, in samples. It is swappable so rooms can carry their own themes.
type Rhythm func(n int) []int

// TimedSequence is the default rhythm.
//
// When n has the 2-bit set (n&2, not a parity test: 2, 3, 6, 7, ...) the clip
// is split into n equal notes. Otherwise n quarter-second notes are followed by
// one trailing segment that fills the rest of the clip. Downstream timing
// depends on the n&2 condition; keep it unless product signs off on a change.
func TimedSequence(n int) []int {
	if n <= 0 {
		n = 0
	}
	if n&2 != 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = ClipSamples / n
		}
		return out
	}

	out := make([]int, n, n+1)
	for i := range out {
		out[i] = SampleRate / 4
	}
	if n <= 8 {
		out = append(out, (ClipSamples/8)*(8-n))
	}
	return out
}

// noteDurations maps a rhythm onto exactly one duration per digit. A trailing
// segment beyond the last digit sustains that digit's note.
func noteDurations(r Rhythm, n int) []int {
	if r == nil {
		r = TimedSequence
	}
	segs := r(n)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := 0; i < n && i < len(segs); i++ {
		out[i] = segs[i]
	}
	for _, extra := range segs[min(n, len(segs)):] {
		if extra > 0 {
			out[n-1] += extra
		}
	}
	return out
}

// Sum adds up segment lengths.
func Sum(segs []int) int {
	total := 0
	for _, s := range segs {
		total += s
	}
	return total
}
