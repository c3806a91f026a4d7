//go:build (linux && cgo) || windows || darwin

package playback

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"soundscape/server/audio"
)

// AudioAvailable reports whether this build can reach an audio device.
const AudioAvailable = true

type speakerSink struct {
	mu          sync.Mutex
	initialized bool
}

// NewSpeakerSink plays through the default output device.
func NewSpeakerSink() Sink { return &speakerSink{} }

func (s *speakerSink) Play(clip audio.Clip, volume float64, loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		rate := audio.Format.SampleRate
		if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
			return err
		}
		s.initialized = true
	}

	var src beep.Streamer = clip.Streamer()
	if loop {
		src = beep.Loop(-1, clip.Streamer())
	}
	speaker.Clear()
	speaker.Play(&effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   math.Log2(volume),
		Silent:   volume <= 0,
	})
	return nil
}

func (s *speakerSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		speaker.Clear()
	}
}
