package audio

import "testing"

// scale builds a reference recording whose note k window is the constant k*100.
func scale(notes int) Clip {
	c := make(Clip, notes*ClipSamples)
	for k := 1; k <= notes; k++ {
		for i := (k - 1) * ClipSamples; i < k*ClipSamples; i++ {
			c[i] = int16(k * 100)
		}
	}
	return c
}

func TestRenderInstrumentTwoNotes(t *testing.T) {
	clip := RenderInstrument(scale(8), []int{3, 5}, TimedSequence, Truncate)
	if len(clip) != ClipSamples {
		t.Fatalf("len = %d, want %d", len(clip), ClipSamples)
	}
	half := ClipSamples / 2
	if clip[0] != 300 || clip[half-1] != 300 {
		t.Fatalf("first note = %d..%d, want 300", clip[0], clip[half-1])
	}
	if clip[half] != 500 || clip[ClipSamples-1] != 500 {
		t.Fatalf("second note = %d..%d, want 500", clip[half], clip[ClipSamples-1])
	}
}

func TestRenderInstrumentSustainsTail(t *testing.T) {
	clip := RenderInstrument(scale(8), []int{7}, TimedSequence, Truncate)
	if len(clip) != ClipSamples {
		t.Fatalf("len = %d", len(clip))
	}
	for _, i := range []int{0, SampleRate / 4, ClipSamples - 1} {
		if clip[i] != 700 {
			t.Fatalf("clip[%d] = %d, want 700", i, clip[i])
		}
	}
}

func TestRenderInstrumentShortRead(t *testing.T) {
	short := scale(2)
	truncated := RenderInstrument(short, []int{2, 4}, TimedSequence, Truncate)
	if len(truncated) != ClipSamples/2 {
		t.Fatalf("truncate len = %d, want %d", len(truncated), ClipSamples/2)
	}

	padded := RenderInstrument(short, []int{2, 4}, TimedSequence, PadSilence)
	if len(padded) != ClipSamples {
		t.Fatalf("pad len = %d, want %d", len(padded), ClipSamples)
	}
	if padded[ClipSamples-1] != 0 {
		t.Fatalf("padding = %d, want silence", padded[ClipSamples-1])
	}
}

func TestParseShortRead(t *testing.T) {
	for in, want := range map[string]ShortRead{"": Truncate, "Truncate": Truncate, "pad": PadSilence, " silence ": PadSilence} {
		got, err := ParseShortRead(in)
		if err != nil || got != want {
			t.Errorf("ParseShortRead(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseShortRead("loop"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
