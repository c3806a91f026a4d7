package journal

import (
	"errors"
	"log"
	"path/filepath"
	"time"

	"soundscape/server/audio"
	"soundscape/server/models"
	"soundscape/server/services"
)

// Event kinds.
const (
	KindTileActivated   = "tile_activated"
	KindTileDeactivated = "tile_deactivated"
	KindSequenceUpdated = "sequence_updated"
	KindRender          = "render"
)

// Event is one journal line. Only the fields relevant to Kind are set.
type Event struct {
	Time     time.Time `json:"time"`
	Room     string    `json:"room"`
	Kind     string    `json:"kind"`
	TileID   int       `json:"tile_id,omitempty"`
	Occupant string    `json:"occupant,omitempty"`
	Sequence []int     `json:"sequence,omitempty"`

	Generation uint64   `json:"generation,omitempty"`
	Output     string   `json:"output,omitempty"`
	Sources    int      `json:"sources,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
	Peak       float64  `json:"peak,omitempty"`
	Limited    bool     `json:"limited,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms,omitempty"`
	Superseded bool     `json:"superseded,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Journal observes one room's tile map and renderer. Write failures are
// logged and never reach the room.
type Journal struct {
	room string
	w    *JSONLZstdWriter
	log  *log.Logger
}

var (
	_ services.TileObserver   = (*Journal)(nil)
	_ services.RenderListener = (*Journal)(nil)
)

// Open journals the named room under dir/<room>/.
func Open(dir, room string, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.Default()
	}
	return &Journal{
		room: room,
		w:    NewJSONLZstdWriter(filepath.Join(dir, room), "events"),
		log:  logger,
	}
}

func (j *Journal) Close() error { return j.w.Close() }

func (j *Journal) OnTileActivated(tile *services.Tile, who models.Occupant) error {
	return j.write(Event{Kind: KindTileActivated, TileID: tile.ID, Occupant: who.OccupantID()})
}

func (j *Journal) OnTileDeactivated(tile *services.Tile, who models.Occupant) error {
	return j.write(Event{Kind: KindTileDeactivated, TileID: tile.ID, Occupant: who.OccupantID()})
}

func (j *Journal) OnSequenceUpdated(tile *services.Tile) error {
	return j.write(Event{Kind: KindSequenceUpdated, TileID: tile.ID, Sequence: tile.Sequence()})
}

func (j *Journal) OnRender(res audio.Result) {
	ev := Event{
		Kind:       KindRender,
		Generation: res.Generation,
		Output:     res.OutputPath,
		Sources:    res.Sources,
		Skipped:    res.Skipped,
		Peak:       res.Peak,
		Limited:    res.Limited,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Superseded: errors.Is(res.Err, audio.ErrRenderSuperseded),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if err := j.write(ev); err != nil {
		j.log.Printf("journal %s: %v", j.room, err)
	}
}

func (j *Journal) write(ev Event) error {
	ev.Time = j.w.now().UTC()
	ev.Room = j.room
	return j.w.Write(ev)
}
