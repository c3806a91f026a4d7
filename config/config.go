// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"soundscape/server/audio"
	"soundscape/server/models"
	"soundscape/server/services"
)

type Config struct {
	Addr           string               `yaml:"addr"`
	TickRateHz     int                  `yaml:"tick_rate_hz"`
	ResourceRoot   string               `yaml:"resource_root"`
	WatchResources bool                 `yaml:"watch_resources"`
	JournalDir     string               `yaml:"journal_dir"`
	Render         RenderConfig         `yaml:"render"`
	Store          StoreConfig          `yaml:"store"`
	Room           RoomConfig           `yaml:"room"`
	Catalog        services.TileCatalog `yaml:"catalog"`
}

type RenderConfig struct {
	OutputPath    string `yaml:"output_path"`
	InstrumentDir string `yaml:"instrument_dir"`
	ShortRead     string `yaml:"short_read"`
	CacheSize     int    `yaml:"cache_size"`
	TimeoutMs     int    `yaml:"timeout_ms"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"` // json, postgres or sqlite
	DSN  string `yaml:"dsn"`
	File string `yaml:"file"`
}

type RoomConfig struct {
	Name     string       `yaml:"name"`
	Width    int          `yaml:"width"`
	Height   int          `yaml:"height"`
	Entry    models.Coord `yaml:"entry"`
	Origin   models.Coord `yaml:"origin"`
	TileSize int          `yaml:"tile_size"`
}

// Defaults is the funfest house as it ships.
func Defaults() Config {
	return Config{
		Addr:         ":8080",
		TickRateHz:   5,
		ResourceRoot: "resources",
		JournalDir:   "data/journal",
		Render: RenderConfig{
			OutputPath:    "sound/fest/output.wav",
			InstrumentDir: "sound/fest/instruments",
			ShortRead:     "truncate",
			CacheSize:     32,
			TimeoutMs:     10000,
		},
		Store: StoreConfig{
			Kind: "json",
			DSN:  "host=localhost user=soundscape password=soundscape dbname=soundscape sslmode=disable",
			File: "db.json",
		},
		Room: RoomConfig{
			Name:     "FunFestHouse",
			Width:    36,
			Height:   40,
			Entry:    models.Coord{X: 17, Y: 39},
			Origin:   models.Coord{X: 10, Y: 10},
			TileSize: 4,
		},
		Catalog: services.DefaultCatalog(),
	}
}

// Load reads path over Defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if kind := getenv("DB_TYPE"); kind != "" {
		c.Store.Kind = kind
	}
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		c.Store.DSN = dsn
	}
	if file := getenv("DB_FILE"); file != "" {
		c.Store.File = file
	}
	if root := getenv("RESOURCE_ROOT"); root != "" {
		c.ResourceRoot = root
	}
}

func (c Config) Validate() error {
	var problems []string
	if c.TickRateHz <= 0 {
		problems = append(problems, "tick_rate_hz must be positive")
	}
	if c.ResourceRoot == "" {
		problems = append(problems, "resource_root is required")
	}
	if c.Render.OutputPath == "" {
		problems = append(problems, "render.output_path is required")
	}
	if _, err := audio.ParseShortRead(c.Render.ShortRead); err != nil {
		problems = append(problems, "render."+err.Error())
	}
	switch c.Store.Kind {
	case "json", "sqlite":
		if c.Store.File == "" {
			problems = append(problems, "store.file is required for "+c.Store.Kind)
		}
	case "postgres":
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.kind %q", c.Store.Kind))
	}
	if c.Room.TileSize <= 0 {
		problems = append(problems, "room.tile_size must be positive")
	}
	layout := c.Layout()
	if !layout.InBounds(c.Room.Entry) {
		problems = append(problems, "room.entry is outside the room")
	}
	if n := services.GridSide * services.GridSide; len(c.Catalog.Paths) != n {
		problems = append(problems, fmt.Sprintf("catalog.paths needs %d entries, has %d", n, len(c.Catalog.Paths)))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Layout() models.RoomLayout {
	return models.RoomLayout{Name: c.Room.Name, Width: c.Room.Width, Height: c.Room.Height, Entry: c.Room.Entry}
}

// RendererConfig assumes Validate passed.
func (c Config) RendererConfig() audio.Config {
	mode, _ := audio.ParseShortRead(c.Render.ShortRead)
	return audio.Config{
		ResourceRoot:  c.ResourceRoot,
		OutputPath:    c.Render.OutputPath,
		InstrumentDir: c.Render.InstrumentDir,
		ShortRead:     mode,
		CacheSize:     c.Render.CacheSize,
		Timeout:       time.Duration(c.Render.TimeoutMs) * time.Millisecond,
	}
}

func (c Config) RoomConfig() services.RoomConfig {
	return services.RoomConfig{
		Layout:     c.Layout(),
		Origin:     c.Room.Origin,
		TileSize:   c.Room.TileSize,
		Catalog:    c.Catalog,
		TickRateHz: c.TickRateHz,
		OutputPath: c.Render.OutputPath,
	}
}
