//go:build !((linux && cgo) || windows || darwin)

package playback

import (
	"log"

	"soundscape/server/audio"
)

// AudioAvailable reports whether this build can reach an audio device.
// Audio needs cgo on linux.
const AudioAvailable = false

type logSink struct{}

// NewSpeakerSink only logs in builds without audio support.
func NewSpeakerSink() Sink { return logSink{} }

func (logSink) Play(clip audio.Clip, volume float64, loop bool) error {
	log.Printf("playback unavailable: would play %d samples at volume %.2f (loop=%v)", len(clip), volume, loop)
	return nil
}

func (logSink) Stop() {}
