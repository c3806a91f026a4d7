package fest

import "github.com/samber/lo"

// Recipient hands out a monotonically increasing message sequence number.
type Recipient interface {
	NextSeq() uint64
}

// Composite is the change-tracked set of active sources of one room. It is owned
// by a single goroutine (the room loop) and is not safe for concurrent use; the
// renderer and the network only ever see Snapshot copies.
type Composite struct {
	order []int
	byID  map[int]*Descriptor
	dirty bool
}

// NewComposite returns a composite seeded with the ambient backing track.
func NewComposite(backingTrack string) *Composite {
	c := &Composite{byID: make(map[int]*Descriptor)}
	c.Add(Ambient(backingTrack))
	return c
}

// Add inserts d, or updates the descriptor already held for d.TileID in place
// (keeping its position). Always marks the composite dirty.
func (c *Composite) Add(d Descriptor) {
	c.dirty = true
	if existing, ok := c.byID[d.TileID]; ok {
		if existing.Kind == KindInstrument && d.Kind == KindInstrument {
			existing.Sequence = cloneInts(d.Sequence)
			existing.Path = d.Path
			return
		}
		*existing = d.Clone()
		return
	}
	stored := d.Clone()
	c.byID[d.TileID] = &stored
	c.order = append(c.order, d.TileID)
}

// RemoveByTileID drops the descriptor for tileID. Absent ids and the ambient
// backing track are left alone and do not touch the dirty flag.
func (c *Composite) RemoveByTileID(tileID int) bool {
	if tileID == AmbientTileID {
		return false
	}
	if _, ok := c.byID[tileID]; !ok {
		return false
	}
	delete(c.byID, tileID)
	c.order = lo.Without(c.order, tileID)
	c.dirty = true
	return true
}

// Get returns a copy of the descriptor held for tileID.
func (c *Composite) Get(tileID int) (Descriptor, bool) {
	d, ok := c.byID[tileID]
	if !ok {
		return Descriptor{}, false
	}
	return d.Clone(), true
}

func (c *Composite) Len() int { return len(c.order) }

func (c *Composite) Dirty() bool { return c.dirty }

// MarkDirty forces a full resend even though nothing changed.
func (c *Composite) MarkDirty() { c.dirty = true }

// ClearDirty is called by the owner once the current state was handed to the renderer.
func (c *Composite) ClearDirty() { c.dirty = false }

// Descriptors returns a deep copy of the active sources in insertion order.
func (c *Composite) Descriptors() []Descriptor {
	return lo.Map(c.order, func(id int, _ int) Descriptor {
		return c.byID[id].Clone()
	})
}

// References reports whether any active source points at path.
func (c *Composite) References(path string) bool {
	return lo.SomeBy(c.order, func(id int) bool {
		return c.byID[id].Path == path
	})
}

// SnapshotFor captures an immutable view for one recipient and stamps it with
// the recipient's next sequence number. It does not clear the dirty flag.
func (c *Composite) SnapshotFor(r Recipient) Snapshot {
	var seq uint64
	if r != nil {
		seq = r.NextSeq()
	}
	return Snapshot{Seq: seq, Descriptors: c.Descriptors()}
}

// Snapshot is a recipient-scoped, immutable copy of a composite.
type Snapshot struct {
	Seq         uint64
	Descriptors []Descriptor
}

func (s Snapshot) Len() int { return len(s.Descriptors) }

// Envelope converts the snapshot to its wire envelope.
func (s Snapshot) Envelope() Envelope {
	return Envelope{
		Seq:     s.Seq,
		Handle:  ServerHandle,
		Records: lo.Map(s.Descriptors, func(d Descriptor, _ int) string { return d.Encode() }),
	}
}
