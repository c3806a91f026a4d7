package persistence

import (
	"errors"

	"soundscape/server/models"
)

// ErrNotFound is returned when a player lookup misses.
var ErrNotFound = errors.New("not found")

// Storage defines the interface for data persistence
type Storage interface {
	SavePlayer(player *models.Player) error
	LoadPlayer(playerID string) (*models.Player, error)
	LoadPlayerByUsername(username string) (*models.Player, error)
	// SaveSequence stores the digits of one sequenced tile. An empty sequence is stored as such.
	SaveSequence(room string, tileID int, sequence []int) error
	LoadSequences(room string) (map[int][]int, error)
	SaveRender(record *models.RenderRecord) error
	// RecentRenders returns up to limit records of room, newest first.
	RecentRenders(room string, limit int) ([]models.RenderRecord, error)
	Close() error
}
