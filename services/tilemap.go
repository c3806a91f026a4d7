package services

import (
	"fmt"
	"log"
	"slices"

	"soundscape/server/fest"
	"soundscape/server/models"
)

// GridSide is the number of tiles per row and column of a tile map.
const GridSide = 4

// MaxDigit is the highest note a sequenced tile accepts.
const MaxDigit = 8

// TileCatalog lists the sound of every tile id, indexed by id-1.
type TileCatalog struct {
	Paths        []string `yaml:"paths"`
	BackingTrack string   `yaml:"backing_track"`
	Sequenced    []int    `yaml:"sequenced"`
	Seed         []int    `yaml:"seed"`
}

// DefaultCatalog is the funfest house: four instrument scales followed by twelve loops.
func DefaultCatalog() TileCatalog {
	return TileCatalog{
		Paths: []string{
			"sound/fest/i1.wav", "sound/fest/i2.wav", "sound/fest/i3.wav", "sound/fest/i4.wav",
			"sound/fest/arp1.wav",
			"sound/fest/yeah.wav",
			"sound/fest/awful.wav",
			"sound/fest/clarinet.wav",
			"sound/fest/replacement.wav",
			"sound/fest/bass.wav",
			"sound/fest/guitar1.wav",
			"sound/fest/guitar2.wav",
			"sound/fest/drum1.wav",
			"sound/fest/drums2.wav",
			"sound/fest/drums3.wav",
			"sound/fest/drums4s.wav",
		},
		BackingTrack: "sound/fest/backing_track.wav",
		Sequenced:    []int{1, 2, 3, 4},
		Seed:         []int{4, 4, 8, 8},
	}
}

// All returns every sample the catalog references, backing track last.
func (c TileCatalog) All() []string {
	out := slices.Clone(c.Paths)
	if c.BackingTrack != "" {
		out = append(out, c.BackingTrack)
	}
	return out
}

// Tile is one rectangle of the map. Tiles are shared: every holder of a tile
// sees sequence edits made through any other holder.
type Tile struct {
	ID        int
	Bounds    models.Rect
	SoundPath string
	Sequenced bool
	sequence  []int
}

// Sequence returns a copy of the stored digits, or nil for loop tiles.
func (t *Tile) Sequence() []int {
	if !t.Sequenced {
		return nil
	}
	return slices.Clone(t.sequence)
}

// Descriptor is the active source this tile contributes while occupied.
func (t *Tile) Descriptor() fest.Descriptor {
	if t.Sequenced {
		return fest.Instrument(t.ID, t.SoundPath, t.sequence)
	}
	return fest.Loop(t.ID, t.SoundPath)
}

func (t *Tile) String() string {
	return fmt.Sprintf("tile %d", t.ID)
}

type tileKey struct {
	id     int
	bounds models.Rect
}

// TileArena interns tiles by id and bounds. An arena belongs to one map, so
// sequences never leak between rooms.
type TileArena struct {
	tiles map[tileKey]*Tile
}

func NewTileArena() *TileArena {
	return &TileArena{tiles: make(map[tileKey]*Tile)}
}

// Intern returns the tile for (id, bounds), creating it on first use. The
// path and sequencing arguments only apply to a newly created tile.
func (a *TileArena) Intern(id int, bounds models.Rect, path string, sequenced bool, seed []int) *Tile {
	key := tileKey{id: id, bounds: bounds}
	if t, ok := a.tiles[key]; ok {
		return t
	}
	t := &Tile{ID: id, Bounds: bounds, SoundPath: path, Sequenced: sequenced}
	if sequenced {
		t.sequence = slices.Clone(seed)
	}
	a.tiles[key] = t
	return t
}

func (a *TileArena) Len() int { return len(a.tiles) }

// TileObserver receives occupancy and sequence changes from a TileMap.
type TileObserver interface {
	OnTileActivated(tile *Tile, who models.Occupant) error
	OnTileDeactivated(tile *Tile, who models.Occupant) error
	OnSequenceUpdated(tile *Tile) error
}

// TileMap tracks which tile every occupant stands on. It is owned by the room
// loop and is not safe for concurrent use.
type TileMap struct {
	arena     *TileArena
	tiles     []*Tile
	byID      map[int]*Tile
	current   map[string]*Tile
	observers []TileObserver
	log       *log.Logger
}

// NewTileMap generates a GridSide x GridSide map starting at origin.
func NewTileMap(origin models.Coord, tileSize int, catalog TileCatalog, logger *log.Logger) (*TileMap, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &TileMap{
		arena:   NewTileArena(),
		byID:    make(map[int]*Tile),
		current: make(map[string]*Tile),
		log:     logger,
	}
	if err := m.Generate(origin, tileSize, catalog); err != nil {
		return nil, err
	}
	return m, nil
}

// Generate lays out tiles row-major (rows follow Y), ids 1..GridSide*GridSide.
// Regenerating with the same geometry returns the same tile instances.
func (m *TileMap) Generate(origin models.Coord, tileSize int, catalog TileCatalog) error {
	if tileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", tileSize)
	}
	if len(catalog.Paths) < GridSide*GridSide {
		return fmt.Errorf("tile catalog has %d paths, need %d", len(catalog.Paths), GridSide*GridSide)
	}
	for _, d := range catalog.Seed {
		if d < 1 || d > MaxDigit {
			return fmt.Errorf("seed digit %d out of range 1-%d", d, MaxDigit)
		}
	}

	m.tiles = m.tiles[:0]
	clear(m.byID)
	id := 1
	for row := 0; row < GridSide; row++ {
		for col := 0; col < GridSide; col++ {
			topLeft := models.Coord{X: origin.X + col*tileSize, Y: origin.Y + row*tileSize}
			bounds := models.Rect{
				TopLeft:     topLeft,
				BottomRight: models.Coord{X: topLeft.X + tileSize - 1, Y: topLeft.Y + tileSize - 1},
			}
			t := m.arena.Intern(id, bounds, catalog.Paths[id-1], slices.Contains(catalog.Sequenced, id), catalog.Seed)
			m.tiles = append(m.tiles, t)
			m.byID[id] = t
			id++
		}
	}
	return nil
}

// AddObserver registers o. Observers are notified in registration order.
func (m *TileMap) AddObserver(o TileObserver) {
	m.observers = append(m.observers, o)
}

func (m *TileMap) Tiles() []*Tile { return slices.Clone(m.tiles) }

func (m *TileMap) Tile(id int) (*Tile, bool) {
	t, ok := m.byID[id]
	return t, ok
}

// TileAt returns the first tile containing c.
func (m *TileMap) TileAt(c models.Coord) *Tile {
	for _, t := range m.tiles {
		if t.Bounds.Contains(c) {
			return t
		}
	}
	return nil
}

// CurrentTile is the tile the occupant stood on at its last position check.
func (m *TileMap) CurrentTile(occupantID string) *Tile {
	return m.current[occupantID]
}

// CheckPosition updates the occupant's tile and fires exit then enter events.
// Leaving a sequenced tile wipes its sequence. tileID is 0 and tile nil when
// the occupant stands on no tile.
func (m *TileMap) CheckPosition(who models.Occupant) (tileID int, tile *Tile, path string) {
	matched := m.TileAt(who.CurrentPosition())
	previous := m.current[who.OccupantID()]

	if previous != nil && previous != matched {
		if previous.Sequenced {
			previous.sequence = previous.sequence[:0]
		}
		m.dispatch("deactivated", func(o TileObserver) error { return o.OnTileDeactivated(previous, who) })
	}
	if matched != nil && matched != previous {
		m.dispatch("activated", func(o TileObserver) error { return o.OnTileActivated(matched, who) })
	}

	m.current[who.OccupantID()] = matched
	if matched == nil {
		return 0, nil, ""
	}
	return matched.ID, matched, matched.SoundPath
}

// Leave fires the exit event for the occupant's tile and forgets the occupant.
func (m *TileMap) Leave(who models.Occupant) {
	previous := m.current[who.OccupantID()]
	delete(m.current, who.OccupantID())
	if previous == nil {
		return
	}
	if previous.Sequenced {
		previous.sequence = previous.sequence[:0]
	}
	m.dispatch("deactivated", func(o TileObserver) error { return o.OnTileDeactivated(previous, who) })
}

// StoreDigits appends digits to a sequenced tile and notifies observers.
func (m *TileMap) StoreDigits(tile *Tile, digits ...int) error {
	if !tile.Sequenced {
		return fmt.Errorf("%s does not take a sequence", tile)
	}
	for _, d := range digits {
		if d < 1 || d > MaxDigit {
			return fmt.Errorf("digit %d out of range 1-%d", d, MaxDigit)
		}
	}
	tile.sequence = append(tile.sequence, digits...)
	m.dispatch("sequence updated", func(o TileObserver) error { return o.OnSequenceUpdated(tile) })
	return nil
}

// ClearSequence empties a sequenced tile and notifies observers.
func (m *TileMap) ClearSequence(tile *Tile) error {
	if !tile.Sequenced {
		return fmt.Errorf("%s does not take a sequence", tile)
	}
	tile.sequence = tile.sequence[:0]
	m.dispatch("sequence updated", func(o TileObserver) error { return o.OnSequenceUpdated(tile) })
	return nil
}

// RestoreSequence replaces a stored sequence without notifying anyone. Used
// when loading persisted state before any occupant joins.
func (m *TileMap) RestoreSequence(id int, digits []int) bool {
	t, ok := m.byID[id]
	if !ok || !t.Sequenced {
		return false
	}
	t.sequence = slices.Clone(digits)
	return true
}

func (m *TileMap) dispatch(event string, call func(TileObserver) error) {
	for i, o := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Printf("tile observer %d panicked on %s: %v", i, event, r)
				}
			}()
			if err := call(o); err != nil {
				m.log.Printf("tile observer %d failed on %s: %v", i, event, err)
			}
		}()
	}
}

// OccupiedByOthers reports whether anyone except who stands on tile.
func (m *TileMap) OccupiedByOthers(tile *Tile, who models.Occupant) bool {
	for id, t := range m.current {
		if t == tile && id != who.OccupantID() {
			return true
		}
	}
	return false
}
