package services

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"soundscape/server/models"
	"soundscape/server/persistence"
)

func TestLoginCreatesThenReloads(t *testing.T) {
	db, err := persistence.NewJSONStore(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	ps := NewPlayerService(db, "FunFestHouse", models.Coord{X: 17, Y: 39})

	p, err := ps.Login("ada")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Fatalf("id %q is not a uuid: %v", p.ID, err)
	}
	if p.X != 17 || p.Y != 39 {
		t.Fatalf("new player at (%d,%d)", p.X, p.Y)
	}
	if _, err := ps.Login("ada"); err == nil {
		t.Fatal("second login accepted")
	}

	p.X = 12
	if err := db.SavePlayer(p); err != nil {
		t.Fatal(err)
	}
	ps.Logout(p)
	again, err := ps.Login("ada")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != p.ID || again.X != 12 {
		t.Fatalf("reloaded %+v", again)
	}
	if ps.Online() != 1 {
		t.Fatalf("online = %d", ps.Online())
	}
}
