package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"soundscape/server/audio"
	"soundscape/server/models"
	"soundscape/server/services"
)

func readAll(t *testing.T, path string) []Event {
	t.Helper()
	var out []Event
	if err := ReadFile(path, func(ev Event) error {
		out = append(out, ev)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestJournalRecordsTileAndRenderEvents(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	j := Open(dir, "FunFestHouse", nil)
	j.w.now = func() time.Time { return clock }

	m, err := services.NewTileMap(models.Coord{X: 10, Y: 10}, 4, services.DefaultCatalog(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m.AddObserver(j)
	p := &models.Player{ID: "p1", X: 11, Y: 11}
	m.CheckPosition(p)
	tile := m.CurrentTile("p1")
	if err := m.StoreDigits(tile, 2); err != nil {
		t.Fatal(err)
	}
	p.X = 15
	m.CheckPosition(p)

	j.OnRender(audio.Result{Generation: 3, OutputPath: "sound/fest/output.wav", Sources: 2, Peak: 0.5, Elapsed: 12 * time.Millisecond})
	j.OnRender(audio.Result{Generation: 2, Err: fmt.Errorf("%w: generation 2", audio.ErrRenderSuperseded)})
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	events := readAll(t, filepath.Join(dir, "FunFestHouse", "events-2026-03-01-14.jsonl.zst"))
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
		if ev.Room != "FunFestHouse" || !ev.Time.Equal(clock) {
			t.Errorf("event %d: room %q time %v", i, ev.Room, ev.Time)
		}
	}
	want := []string{KindTileActivated, KindSequenceUpdated, KindTileDeactivated, KindTileActivated, KindRender, KindRender}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if got := events[1].Sequence; fmt.Sprint(got) != "[4 4 8 8 2]" {
		t.Errorf("sequence = %v", got)
	}
	if events[3].TileID != 2 {
		t.Errorf("second activation tile = %d, want 2", events[3].TileID)
	}
	if events[4].Generation != 3 || events[4].ElapsedMS != 12 || events[4].Superseded {
		t.Errorf("render event = %+v", events[4])
	}
	if !events[5].Superseded || events[5].Error == "" {
		t.Errorf("superseded render event = %+v", events[5])
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "events")
	w.now = func() time.Time { return clock }

	if err := w.Write(Event{Kind: "a"}); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(Event{Kind: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	for file, kind := range map[string]string{
		"events-2026-03-01-23.jsonl.zst": "a",
		"events-2026-03-02-00.jsonl.zst": "b",
	} {
		events := readAll(t, filepath.Join(dir, file))
		if len(events) != 1 || events[0].Kind != kind {
			t.Errorf("%s: %+v", file, events)
		}
	}
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, kind := range []string{"first", "second"} {
		w := NewJSONLZstdWriter(dir, "events")
		w.now = func() time.Time { return clock }
		if err := w.Write(Event{Kind: kind}); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	events := readAll(t, filepath.Join(dir, "events-2026-03-01-09.jsonl.zst"))
	if len(events) != 2 || events[0].Kind != "first" || events[1].Kind != "second" {
		t.Fatalf("events = %+v", events)
	}
}

func TestReadFileMissing(t *testing.T) {
	err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl.zst"), func(Event) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
