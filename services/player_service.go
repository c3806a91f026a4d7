package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"soundscape/server/models"
	"soundscape/server/persistence"
)

// PlayerService manages player-related operations
type PlayerService struct {
	db     persistence.Storage
	room   string
	entry  models.Coord
	online map[string]string // username -> player id
	mutex  sync.Mutex
}

// NewPlayerService creates a new player service. New players start at entry.
func NewPlayerService(db persistence.Storage, room string, entry models.Coord) *PlayerService {
	return &PlayerService{
		db:     db,
		room:   room,
		entry:  entry,
		online: make(map[string]string),
	}
}

// Login gets or creates the player for username and marks it online. A
// username can only be online once.
func (ps *PlayerService) Login(username string) (*models.Player, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("empty username")
	}

	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if _, ok := ps.online[username]; ok {
		return nil, fmt.Errorf("%s is already logged in", username)
	}

	player, err := ps.db.LoadPlayerByUsername(username)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		now := time.Now()
		player = &models.Player{
			ID:        uuid.NewString(),
			Username:  username,
			X:         ps.entry.X,
			Y:         ps.entry.Y,
			Room:      ps.room,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := ps.db.SavePlayer(player); err != nil {
			return nil, fmt.Errorf("failed to save new player to database: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	ps.online[username] = player.ID
	return player, nil
}

// Logout releases the username. The room persists the final position.
func (ps *PlayerService) Logout(player *models.Player) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	if ps.online[player.Username] == player.ID {
		delete(ps.online, player.Username)
	}
}

func (ps *PlayerService) Online() int {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return len(ps.online)
}
