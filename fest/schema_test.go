package fest_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"soundscape/server/fest"
)

type seq struct{ n uint64 }

func (s *seq) NextSeq() uint64 { s.n++; return s.n }

func TestSchema_ValidatesEnvelopes(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "schemas", "fest_message.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	validate := func(v any) error {
		t.Helper()
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return schema.Validate(doc)
	}

	c := fest.NewComposite("sound/fest/backing_track.wav")
	c.Add(fest.Instrument(1, "sound/fest/i1.wav", []int{3, 5}))
	c.Add(fest.Instrument(2, "sound/fest/i2.wav", nil))
	c.Add(fest.Loop(12, "sound/fest/guitar2.wav"))
	if err := validate(c.SnapshotFor(&seq{}).Envelope()); err != nil {
		t.Fatalf("validate snapshot envelope: %v", err)
	}

	bad := map[string]any{"classname": "FestMessage", "handle": "x", "seq_num": 1, "len": 1, "0": "instrument,1,i1.wav"}
	if err := validate(bad); err == nil {
		t.Fatalf("expected schema violation for 3-field instrument record")
	}
}
