package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"soundscape/server/audio"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundscape.yaml")
	raw := `
tick_rate_hz: 10
render:
  short_read: pad
room:
  tile_size: 3
store:
  kind: sqlite
  file: data/soundscape.sqlite
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TickRateHz != 10 || cfg.Room.TileSize != 3 || cfg.Store.Kind != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Room.Width != 36 || cfg.Render.OutputPath != "sound/fest/output.wav" {
		t.Fatal("unset keys should keep their defaults")
	}
	if cfg.RendererConfig().ShortRead != audio.PadSilence {
		t.Fatal("short read not applied")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := Defaults()
	env := map[string]string{"PORT": "9000", "DB_TYPE": "postgres", "DATABASE_URL": "postgres://x"}
	cfg.applyEnv(func(k string) string { return env[k] })
	if cfg.Addr != ":9000" || cfg.Store.Kind != "postgres" || cfg.Store.DSN != "postgres://x" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Kind = "mongo"
	cfg.Render.ShortRead = "stretch"
	cfg.Catalog.Paths = cfg.Catalog.Paths[:3]
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"mongo", "stretch", "catalog.paths"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
