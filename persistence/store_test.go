package persistence

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"soundscape/server/models"
)

func openStores(t *testing.T) map[string]Storage {
	t.Helper()
	dir := t.TempDir()
	js, err := Open("json", "", filepath.Join(dir, "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	sq, err := Open("sqlite", "", filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Storage{"json": js, "sqlite": sq}
}

func TestPlayers(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			p := &models.Player{ID: "p1", Username: "ada", X: 3, Y: 4, Room: "funfest", CreatedAt: time.Now()}
			if err := s.SavePlayer(p); err != nil {
				t.Fatal(err)
			}
			p.X = 9
			if err := s.SavePlayer(p); err != nil {
				t.Fatal(err)
			}

			got, err := s.LoadPlayerByUsername("ada")
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != "p1" || got.X != 9 || got.Y != 4 || got.Room != "funfest" {
				t.Fatalf("got %+v", got)
			}
			if _, err := s.LoadPlayer("p1"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.LoadPlayer("nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSequences(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SaveSequence("funfest", 1, []int{3, 5}); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveSequence("funfest", 2, nil); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveSequence("funfest", 1, []int{7}); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveSequence("elsewhere", 1, []int{1}); err != nil {
				t.Fatal(err)
			}

			got, err := s.LoadSequences("funfest")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || !slices.Equal(got[1], []int{7}) || len(got[2]) != 0 {
				t.Fatalf("sequences = %v", got)
			}
		})
	}
}

func TestRenders(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for gen := uint64(1); gen <= 3; gen++ {
				rec := &models.RenderRecord{
					Room: "funfest", Generation: gen, OutputPath: "sound/fest/output.wav",
					Sources: int(gen), Peak: 1000, CreatedAt: time.Now(),
				}
				if gen == 2 {
					rec.Skipped = []string{"sound/fest/gone.wav"}
				}
				if err := s.SaveRender(rec); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.RecentRenders("funfest", 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Generation != 3 || got[1].Generation != 2 {
				t.Fatalf("renders = %+v", got)
			}
			if !slices.Equal(got[1].Skipped, []string{"sound/fest/gone.wav"}) || got[0].Skipped != nil {
				t.Fatalf("skipped = %v / %v", got[1].Skipped, got[0].Skipped)
			}
		})
	}
}

func TestJSONStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	first, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SaveSequence("funfest", 4, []int{8, 8}); err != nil {
		t.Fatal(err)
	}

	second, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := second.LoadSequences("funfest")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got[4], []int{8, 8}) {
		t.Fatalf("sequences = %v", got)
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	if _, err := Open("mongo", "", ""); err == nil {
		t.Fatal("expected error")
	}
}
