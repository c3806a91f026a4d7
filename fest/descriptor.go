// Package fest holds the set of currently active sound sources of a soundscape
// room and the comma-joined wire form clients exchange for it.
package fest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a descriptor as a verbatim loop or a sequenced instrument.
type Kind string

const (
	KindLoop       Kind = "loop"
	KindInstrument Kind = "instrument"
)

// AmbientTileID is reserved for the always-present backing track.
const AmbientTileID = -1

// ErrMalformedDescriptor is returned when a wire record cannot be parsed.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// Descriptor describes one active audio source, keyed by the tile it came from.
// Sequence is only meaningful for instruments.
type Descriptor struct {
	Kind     Kind   `json:"kind"`
	TileID   int    `json:"tile_id"`
	Path     string `json:"path"`
	Sequence []int  `json:"sequence,omitempty"`
}

func Loop(tileID int, path string) Descriptor {
	return Descriptor{Kind: KindLoop, TileID: tileID, Path: path}
}

func Instrument(tileID int, path string, sequence []int) Descriptor {
	return Descriptor{Kind: KindInstrument, TileID: tileID, Path: path, Sequence: cloneInts(sequence)}
}

// Ambient is the backing track every composite starts with.
func Ambient(path string) Descriptor {
	return Loop(AmbientTileID, path)
}

// Clone returns a copy that shares no memory with d.
func (d Descriptor) Clone() Descriptor {
	d.Sequence = cloneInts(d.Sequence)
	return d
}

// Digits renders the sequence as a digit string, e.g. [3 5] -> "35".
func (d Descriptor) Digits() string {
	var b strings.Builder
	for _, n := range d.Sequence {
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Encode produces "loop,<id>,<path>" or "instrument,<id>,<path>,<digits>".
func (d Descriptor) Encode() string {
	id := strconv.Itoa(d.TileID)
	if d.Kind == KindInstrument {
		return strings.Join([]string{string(KindInstrument), id, d.Path, d.Digits()}, ",")
	}
	return strings.Join([]string{string(KindLoop), id, d.Path}, ",")
}

func (d Descriptor) String() string { return d.Encode() }

// ParseDescriptor is the inverse of Encode. Paths must not contain commas.
func ParseDescriptor(record string) (Descriptor, error) {
	fields := strings.Split(record, ",")
	if len(fields) < 3 {
		return Descriptor{}, fmt.Errorf("%w: %q: want at least 3 fields, got %d", ErrMalformedDescriptor, record, len(fields))
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: tile id: %v", ErrMalformedDescriptor, record, err)
	}

	switch Kind(fields[0]) {
	case KindLoop:
		if len(fields) != 3 {
			return Descriptor{}, fmt.Errorf("%w: %q: loop wants 3 fields, got %d", ErrMalformedDescriptor, record, len(fields))
		}
		return Loop(id, fields[2]), nil
	case KindInstrument:
		if len(fields) != 4 {
			return Descriptor{}, fmt.Errorf("%w: %q: instrument wants 4 fields, got %d", ErrMalformedDescriptor, record, len(fields))
		}
		seq := make([]int, 0, len(fields[3]))
		for _, r := range fields[3] {
			if r < '0' || r > '9' {
				return Descriptor{}, fmt.Errorf("%w: %q: sequence character %q", ErrMalformedDescriptor, record, r)
			}
			seq = append(seq, int(r-'0'))
		}
		return Descriptor{Kind: KindInstrument, TileID: id, Path: fields[2], Sequence: seq}, nil
	default:
		return Descriptor{}, fmt.Errorf("%w: %q: unknown kind %q", ErrMalformedDescriptor, record, fields[0])
	}
}

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	return out
}
