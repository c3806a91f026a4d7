package services

import (
	"errors"
	"io"
	"log"
	"slices"
	"testing"

	"soundscape/server/fest"
	"soundscape/server/models"
)

type event struct {
	kind string
	tile int
	who  string
}

type recorder struct {
	events []event
	fail   bool
	panic  bool
}

func (r *recorder) OnTileActivated(t *Tile, who models.Occupant) error {
	return r.record("activated", t.ID, who.OccupantID())
}

func (r *recorder) OnTileDeactivated(t *Tile, who models.Occupant) error {
	return r.record("deactivated", t.ID, who.OccupantID())
}

func (r *recorder) OnSequenceUpdated(t *Tile) error {
	return r.record("sequence", t.ID, "")
}

func (r *recorder) record(kind string, tile int, who string) error {
	r.events = append(r.events, event{kind, tile, who})
	if r.panic {
		panic("observer blew up")
	}
	if r.fail {
		return errors.New("observer failed")
	}
	return nil
}

func (r *recorder) reset() { r.events = nil }

func newTestMap(t *testing.T) (*TileMap, *recorder) {
	t.Helper()
	m, err := NewTileMap(models.Coord{X: 10, Y: 10}, 4, DefaultCatalog(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	m.AddObserver(rec)
	return m, rec
}

func at(x, y int) *models.Player {
	return &models.Player{ID: "test_player", X: x, Y: y}
}

func TestTileForPositions(t *testing.T) {
	cases := []struct {
		y, x   int
		id     int
		path   string
		active bool
	}{
		{11, 11, 1, "sound/fest/i1.wav", true},
		{11, 15, 2, "sound/fest/i2.wav", true},
		{15, 11, 5, "sound/fest/arp1.wav", false},
		{15, 15, 6, "sound/fest/yeah.wav", false},
	}
	m, rec := newTestMap(t)
	for _, tc := range cases {
		rec.reset()
		id, tile, path := m.CheckPosition(at(tc.x, tc.y))
		if id != tc.id || path != tc.path {
			t.Fatalf("(%d,%d): got tile %d %q, want %d %q", tc.y, tc.x, id, path, tc.id, tc.path)
		}
		if tile.Sequenced != tc.active {
			t.Fatalf("tile %d sequenced = %v", id, tile.Sequenced)
		}
		var activated []event
		for _, e := range rec.events {
			if e.kind == "activated" {
				activated = append(activated, e)
			}
		}
		if len(activated) != 1 || activated[0].tile != tc.id || activated[0].who != "test_player" {
			t.Fatalf("(%d,%d): activations %v", tc.y, tc.x, activated)
		}
	}
}

func TestCheckPositionOutsideMap(t *testing.T) {
	m, rec := newTestMap(t)
	id, tile, path := m.CheckPosition(at(0, 0))
	if id != 0 || tile != nil || path != "" {
		t.Fatalf("got %d %v %q", id, tile, path)
	}
	if len(rec.events) != 0 {
		t.Fatalf("events %v", rec.events)
	}
}

func TestSameTileIsNoop(t *testing.T) {
	m, rec := newTestMap(t)
	m.CheckPosition(at(11, 11))
	rec.reset()
	m.CheckPosition(at(12, 12))
	if len(rec.events) != 0 {
		t.Fatalf("moving within a tile fired %v", rec.events)
	}
}

func TestExitClearsSequenceAndFiresInOrder(t *testing.T) {
	m, rec := newTestMap(t)
	_, tile, _ := m.CheckPosition(at(11, 11))
	if err := m.StoreDigits(tile, 3, 5); err != nil {
		t.Fatal(err)
	}
	if got := tile.Sequence(); !slices.Equal(got, []int{4, 4, 8, 8, 3, 5}) {
		t.Fatalf("sequence = %v", got)
	}
	rec.reset()

	m.CheckPosition(at(15, 11))
	want := []event{{"deactivated", 1, "test_player"}, {"activated", 2, "test_player"}}
	if !slices.Equal(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if got := tile.Sequence(); len(got) != 0 {
		t.Fatalf("sequence after exit = %v", got)
	}
}

func TestTilesAreShared(t *testing.T) {
	m, _ := newTestMap(t)
	first, _ := m.Tile(1)
	if err := m.Generate(models.Coord{X: 10, Y: 10}, 4, DefaultCatalog()); err != nil {
		t.Fatal(err)
	}
	again, _ := m.Tile(1)
	if first != again {
		t.Fatal("regenerating the same geometry should reuse tile instances")
	}
	if m.arena.Len() != GridSide*GridSide {
		t.Fatalf("arena holds %d tiles", m.arena.Len())
	}

	other, _ := newTestMap(t)
	theirs, _ := other.Tile(1)
	if theirs == first {
		t.Fatal("maps must not share tiles")
	}
}

func TestStoreDigitsValidation(t *testing.T) {
	m, rec := newTestMap(t)
	loop, _ := m.Tile(5)
	if err := m.StoreDigits(loop, 1); err == nil {
		t.Fatal("loop tiles take no sequence")
	}
	inst, _ := m.Tile(1)
	if err := m.StoreDigits(inst, 9); err == nil {
		t.Fatal("digit 9 accepted")
	}
	if len(rec.events) != 0 {
		t.Fatalf("rejected input fired %v", rec.events)
	}
	if err := m.ClearSequence(inst); err != nil {
		t.Fatal(err)
	}
	if len(inst.Sequence()) != 0 || len(rec.events) != 1 || rec.events[0].kind != "sequence" {
		t.Fatalf("clear: seq %v events %v", inst.Sequence(), rec.events)
	}
}

func TestObserverFailureIsIsolated(t *testing.T) {
	m, _ := newTestMap(t)
	bad := &recorder{panic: true}
	failing := &recorder{fail: true}
	good := &recorder{}
	m.observers = []TileObserver{bad, failing, good}

	id, _, _ := m.CheckPosition(at(11, 11))
	if id != 1 {
		t.Fatalf("tile = %d", id)
	}
	if len(good.events) != 1 {
		t.Fatalf("later observer saw %v", good.events)
	}
	if m.CurrentTile("test_player") == nil {
		t.Fatal("occupancy not recorded after observer failure")
	}
}

func TestLeaveFiresExit(t *testing.T) {
	m, rec := newTestMap(t)
	p := at(11, 11)
	m.CheckPosition(p)
	rec.reset()
	m.Leave(p)
	if len(rec.events) != 1 || rec.events[0].kind != "deactivated" {
		t.Fatalf("events = %v", rec.events)
	}
	if m.CurrentTile(p.ID) != nil {
		t.Fatal("occupancy record kept after leave")
	}
}

func TestTileDescriptor(t *testing.T) {
	m, _ := newTestMap(t)
	inst, _ := m.Tile(1)
	if d := inst.Descriptor(); d.Kind != fest.KindInstrument || d.Encode() != "instrument,1,sound/fest/i1.wav,4488" {
		t.Fatalf("descriptor = %s", d)
	}
	loop, _ := m.Tile(6)
	if d := loop.Descriptor(); d.Encode() != "loop,6,sound/fest/yeah.wav" {
		t.Fatalf("descriptor = %s", d)
	}
}
