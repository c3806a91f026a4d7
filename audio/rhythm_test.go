package audio

import "testing"

func TestTimedSequenceFillsClip(t *testing.T) {
	for n := 1; n <= 8; n++ {
		if got := Sum(TimedSequence(n)); got != ClipSamples {
			t.Errorf("n=%d: sum %d, want %d", n, got, ClipSamples)
		}
		if got := Sum(noteDurations(TimedSequence, n)); got != ClipSamples {
			t.Errorf("n=%d: note durations sum %d, want %d", n, got, ClipSamples)
		}
	}
}

func TestTimedSequenceShapes(t *testing.T) {
	cases := []struct {
		n    int
		want []int
	}{
		{1, []int{11025, 77175}},
		{2, []int{44100, 44100}},
		{3, []int{29400, 29400, 29400}},
		{4, []int{11025, 11025, 11025, 11025, 44100}},
		{8, []int{11025, 11025, 11025, 11025, 11025, 11025, 11025, 11025, 0}},
	}
	for _, tc := range cases {
		got := TimedSequence(tc.n)
		if len(got) != len(tc.want) {
			t.Fatalf("n=%d: %v, want %v", tc.n, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("n=%d: %v, want %v", tc.n, got, tc.want)
			}
		}
	}
}

func TestTimedSequencePastEight(t *testing.T) {
	if got := TimedSequence(9); len(got) != 9 || Sum(got) != 9*SampleRate/4 {
		t.Fatalf("n=9: %v", got)
	}
	got := TimedSequence(10)
	if len(got) != 10 || got[0] != ClipSamples/10 {
		t.Fatalf("n=10: %v", got)
	}
}

func TestNoteDurationsSustainLastNote(t *testing.T) {
	got := noteDurations(TimedSequence, 1)
	if len(got) != 1 || got[0] != ClipSamples {
		t.Fatalf("durations = %v", got)
	}
	if noteDurations(TimedSequence, 0) != nil {
		t.Fatal("empty sequence should have no durations")
	}
}
