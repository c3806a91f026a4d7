package fest

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	ServerHandle      = "***SERVER***"
	EnvelopeClassname = "FestMessage"
)

// Envelope is the serialized form of a snapshot: one comma-joined record per
// source under the keys "0".."len-1", next to the source count.
type Envelope struct {
	Seq     uint64
	Handle  string
	Records []string
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Records)+4)
	out["classname"] = EnvelopeClassname
	out["handle"] = e.Handle
	out["seq_num"] = e.Seq
	out["len"] = len(e.Records)
	for i, rec := range e.Records {
		out[strconv.Itoa(i)] = rec
	}
	return json.Marshal(out)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var n int
	lenRaw, ok := raw["len"]
	if !ok {
		return fmt.Errorf("fest envelope: missing len")
	}
	if err := json.Unmarshal(lenRaw, &n); err != nil {
		return fmt.Errorf("fest envelope: len: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("fest envelope: negative len %d", n)
	}
	if n > len(raw) {
		return fmt.Errorf("fest envelope: len %d exceeds %d entries", n, len(raw))
	}
	if v, ok := raw["seq_num"]; ok {
		_ = json.Unmarshal(v, &e.Seq)
	}
	if v, ok := raw["handle"]; ok {
		_ = json.Unmarshal(v, &e.Handle)
	}

	e.Records = make([]string, n)
	for i := 0; i < n; i++ {
		// Missing or non-string entries are kept as "" and rejected by ParseDescriptor.
		if v, ok := raw[strconv.Itoa(i)]; ok {
			_ = json.Unmarshal(v, &e.Records[i])
		}
	}
	return nil
}

// Descriptors parses every record. Malformed records are dropped and reported
// individually; the rest are still returned.
func (e Envelope) Descriptors() ([]Descriptor, []error) {
	var (
		out     = make([]Descriptor, 0, len(e.Records))
		dropped []error
	)
	for i, rec := range e.Records {
		d, err := ParseDescriptor(rec)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, d)
	}
	return out, dropped
}

// ParseEnvelope decodes a JSON envelope and its records. The error is only
// non-nil when the envelope itself is unreadable.
func ParseEnvelope(data []byte) ([]Descriptor, []error, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nil, err
	}
	descs, dropped := e.Descriptors()
	return descs, dropped, nil
}
