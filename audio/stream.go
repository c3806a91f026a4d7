package audio

import (
	"fmt"

	"github.com/gopxl/beep/v2"
)

// Format is the beep format every clip in this package uses.
var Format = beep.Format{
	SampleRate:  beep.SampleRate(SampleRate),
	NumChannels: numChannels,
	Precision:   bitsPerSample / 8,
}

// Streamer exposes the clip to beep for playback.
func (c Clip) Streamer() beep.StreamSeeker {
	return &clipStreamer{clip: c}
}

type clipStreamer struct {
	clip Clip
	pos  int
}

func (s *clipStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.clip) {
		return 0, false
	}
	for i := range samples {
		if s.pos >= len(s.clip) {
			break
		}
		v := float64(s.clip[s.pos]) / (MaxAmplitude + 1)
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
		n++
	}
	return n, true
}

func (s *clipStreamer) Err() error    { return nil }
func (s *clipStreamer) Len() int      { return len(s.clip) }
func (s *clipStreamer) Position() int { return s.pos }

func (s *clipStreamer) Seek(p int) error {
	if p < 0 || p > len(s.clip) {
		return fmt.Errorf("seek %d out of range [0, %d]", p, len(s.clip))
	}
	s.pos = p
	return nil
}
